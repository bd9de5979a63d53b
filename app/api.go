package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/calehh/oracle-node/config"
	"github.com/calehh/oracle-node/indexer"
	"github.com/calehh/oracle-node/tx"
	"github.com/calehh/oracle-node/types"
	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

const (
	// SenderHeader names the party a transaction is submitted on behalf of.
	SenderHeader = "X-Oracle-Account"

	MaxTxBytes        = 64 << 10
	ReadHeaderTimeout = 10 * time.Second
	ShutdownTimeout   = 5 * time.Second
)

type TxResponse struct {
	Code      uint32          `json:"code"`
	Codespace string          `json:"codespace,omitempty"`
	Log       string          `json:"log,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type Server struct {
	app    *OracleApp
	logger cmtlog.Logger
	addr   string
	engine *gin.Engine
}

// NewServer builds the HTTP surface of app. Indexer reads are mounted
// under /index when the indexer is enabled.
func NewServer(app *OracleApp, cfg *config.APIConfig, logger cmtlog.Logger) *Server {
	s := &Server{
		app:    app,
		logger: logger.With("module", "api"),
		addr:   cfg.ListenAddress,
		engine: gin.New(),
	}
	s.engine.Use(gin.Recovery())
	s.engine.POST("/tx", s.handleTx)
	s.engine.GET("/requests", s.handleListRequests)
	s.engine.GET("/requests/:id", s.handleGetRequest)
	s.engine.GET("/accounts/:address", s.handleGetAccount)
	s.engine.GET("/status", s.handleStatus)
	if cfg.Metrics {
		s.engine.GET("/metrics", gin.WrapH(app.Metrics().Handler()))
	}
	if app.Indexer() != nil {
		indexer.NewService(app.Indexer()).Register(s.engine.Group("/index"))
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves until ctx ends, then shuts the listener down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := http.Server{
		Handler:           s.engine,
		Addr:              s.addr,
		ReadHeaderTimeout: ReadHeaderTimeout,
	}
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("api shutdown fail", "err", err)
		}
	}()

	s.logger.Info("api server listening", "addr", s.addr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		s.logger.Info("api server closed", "addr", s.addr)
		return nil
	}
	return err
}

// httpStatus maps a result code onto the HTTP status returned with it.
func httpStatus(code uint32) int {
	switch code {
	case tx.CodeTypeOK:
		return http.StatusOK
	case tx.CodeTypeEncoding, tx.CodeTypeInput:
		return http.StatusBadRequest
	case tx.CodeTypePrecondition:
		return http.StatusConflict
	case tx.CodeTypeAuthorization:
		return http.StatusForbidden
	case tx.CodeTypeResource:
		return http.StatusPaymentRequired
	case tx.CodeTypeNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func parseSender(c *gin.Context) (sender common.Address, err error) {
	h := c.GetHeader(SenderHeader)
	if h == "" {
		return
	}
	if !common.IsHexAddress(h) {
		err = tx.ErrInvalidSender
		return
	}
	sender = common.HexToAddress(h)
	return
}

func (s *Server) handleTx(c *gin.Context) {
	sender, err := parseSender(c)
	if err != nil {
		c.JSON(http.StatusForbidden, TxResponse{Code: tx.CodeOf(err), Log: err.Error()})
		return
	}
	dat, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxTxBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, TxResponse{Code: tx.CodeTypeEncoding, Log: err.Error()})
		return
	}

	var res TxResponse
	if c.Query("check") == "true" {
		check := s.app.CheckTx(c.Request.Context(), sender, dat)
		res = TxResponse{Code: check.Code, Codespace: check.Codespace, Log: check.Log}
	} else {
		exec := s.app.DeliverTx(c.Request.Context(), sender, dat)
		res = TxResponse{Code: exec.Code, Codespace: exec.Codespace, Log: exec.Log, Data: exec.Data}
	}
	c.JSON(httpStatus(res.Code), res)
}

func (s *Server) query(c *gin.Context, path string, data []byte) {
	res, err := s.app.Query(c.Request.Context(), &abcitypes.RequestQuery{Path: path, Data: data})
	if err != nil {
		s.logger.Error("query fail", "path", path, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if res.Code != tx.CodeTypeOK {
		c.JSON(httpStatus(res.Code), gin.H{"error": res.Log, "codespace": res.Codespace})
		return
	}
	c.Data(http.StatusOK, "application/json", res.Value)
}

func (s *Server) handleListRequests(c *gin.Context) {
	var data []byte
	if status := c.Query("status"); status != "" {
		st, ok := types.ParseRequestStatus(status)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
			return
		}
		data = []byte{byte(st)}
	}
	s.query(c, "/requests", data)
}

func (s *Server) handleGetRequest(c *gin.Context) {
	id := c.Param("id")
	if !common.IsHexAddress(id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}
	s.query(c, "/requests", common.HexToAddress(id).Bytes())
}

func (s *Server) handleGetAccount(c *gin.Context) {
	addr := c.Param("address")
	if !common.IsHexAddress(addr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return
	}
	s.query(c, "/accounts", common.HexToAddress(addr).Bytes())
}

func (s *Server) handleStatus(c *gin.Context) {
	s.query(c, "/status", nil)
}
