package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/calehh/oracle-node/config"
	"github.com/calehh/oracle-node/events"
	"github.com/calehh/oracle-node/indexer"
	"github.com/calehh/oracle-node/ledger"
	"github.com/calehh/oracle-node/oracle"
	"github.com/calehh/oracle-node/scoring"
	"github.com/calehh/oracle-node/state"
	"github.com/calehh/oracle-node/tx"
	"github.com/calehh/oracle-node/tx/handler"
	"github.com/calehh/oracle-node/types"
	"github.com/calehh/oracle-node/upkeep"
	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

var ErrChainIDMismatch = errors.New("genesis chain id does not match config")

type OracleApp struct {
	cfg    *config.Config
	logger cmtlog.Logger

	db       *state.StateDB
	ledger   *ledger.Ledger
	bus      *events.Bus
	metrics  *Metrics
	oracle   *oracle.Coordinator
	indexer  *indexer.Indexer
	keeper   *upkeep.Keeper
	txHdlrs  map[tx.OracleTxType]handler.TxHandler
	queriers map[string]Querier

	indexSub *events.Subscription
}

// NewOracleApp opens the state store under cfg.Home and wires the node.
// On a fresh store the genesis balances are deposited into the ledger.
func NewOracleApp(cfg *config.Config, genesis *types.GenesisDoc, logger cmtlog.Logger, opts ...oracle.Option) (app *OracleApp, err error) {
	logger = logger.With("module", "app")
	if genesis != nil && cfg.ChainID != "" && genesis.ChainID != cfg.ChainID {
		return nil, fmt.Errorf("%w: %q != %q", ErrChainIDMismatch, genesis.ChainID, cfg.ChainID)
	}

	db, err := state.NewStateDB(cfg.DBDir(), logger)
	if err != nil {
		return nil, err
	}
	app = &OracleApp{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		bus:      events.NewBus(logger),
		metrics:  NewMetrics(),
		txHdlrs:  make(map[tx.OracleTxType]handler.TxHandler),
		queriers: make(map[string]Querier),
	}
	defer func() {
		if err != nil {
			app.Stop()
			app = nil
		}
	}()

	app.ledger, err = ledger.NewLedger(db, logger)
	if err != nil {
		return
	}
	if err = app.initGenesis(genesis); err != nil {
		return
	}

	opts = append([]oracle.Option{
		oracle.WithLogger(logger),
		oracle.WithEventSink(oracle.MultiSink{app.bus, app.metrics}),
	}, opts...)
	if cfg.Scoring.URL != "" {
		scorer := scoring.NewHTTPClient(cfg.Scoring.URL, cfg.Scoring.RetryMax, cfg.Scoring.Timeout, logger)
		opts = append(opts, oracle.WithScorer(scorer))
	}
	app.oracle, err = oracle.NewCoordinator(*cfg.Oracle, db, app.ledger, opts...)
	if err != nil {
		return
	}
	app.keeper = upkeep.NewKeeper(app.oracle, cfg.Upkeep.Interval, logger)

	if cfg.Indexer.Enabled {
		app.indexer, err = indexer.NewIndexer(logger, cfg.IndexerDBPath())
		if err != nil {
			return
		}
	}
	app.registerTxHandler()
	app.registerQuerier()
	app.metrics.setVersion(db.Header().Version)
	return
}

func (app *OracleApp) initGenesis(genesis *types.GenesisDoc) error {
	header := app.db.Header()
	if genesis == nil || header.Version > 0 {
		return nil
	}
	for _, acc := range genesis.Accounts {
		if acc.Balance == 0 {
			continue
		}
		if err := app.ledger.Deposit(acc.Addr(), acc.Balance); err != nil {
			app.logger.Error("genesis deposit fail", "address", acc.Address, "err", err)
			return err
		}
	}
	app.logger.Info("genesis applied", "chain", genesis.ChainID, "accounts", len(genesis.Accounts), "supply", app.ledger.Supply())
	return nil
}

func (app *OracleApp) registerTxHandler() {
	app.txHdlrs = map[tx.OracleTxType]handler.TxHandler{
		tx.OracleTxTypeCreateRequest: handler.NewCreateRequestTxHandler(app.oracle, app.logger),
		tx.OracleTxTypePropose:       handler.NewProposeTxHandler(app.oracle, app.logger),
		tx.OracleTxTypeChallenge:     handler.NewChallengeTxHandler(app.oracle, app.logger),
		tx.OracleTxTypeReview:        handler.NewReviewTxHandler(app.oracle, app.logger),
		tx.OracleTxTypeFinalize:      handler.NewFinalizeTxHandler(app.oracle, app.logger),
		tx.OracleTxTypeCancel:        handler.NewCancelTxHandler(app.oracle, app.logger),
		tx.OracleTxTypeScore:         handler.NewScoreTxHandler(app.oracle, app.logger),
	}
}

func (app *OracleApp) registerQuerier() {
	app.queriers["/accounts/"] = NewAccountQuerier(app.ledger, app.logger)
	app.queriers["/requests/"] = NewRequestQuerier(app.oracle, app.logger)
	app.queriers["/status/"] = NewStatusQuerier(app.db, app.cfg.ChainID)
}

// Start starts the event bus and subscribes the indexer. Events emitted
// after Start returns reach the indexer.
func (app *OracleApp) Start(ctx context.Context) (err error) {
	if err = app.bus.Start(); err != nil {
		return
	}
	if app.indexer != nil {
		app.indexSub, err = app.indexer.Attach(ctx, app.bus)
		if err != nil {
			return
		}
	}
	app.logger.Info("oracle app started", "version", app.db.Header().Version, "hash", app.db.Hash())
	return
}

// Run serves the API and runs the upkeep loop and the indexer until ctx
// ends or the API or upkeep loop fails. The indexer only feeds read models,
// so its failure is logged and leaves the node serving.
func (app *OracleApp) Run(ctx context.Context, srv *Server) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(ctx)
	})
	g.Go(func() error {
		return app.keeper.Run(ctx)
	})
	if app.indexSub != nil {
		g.Go(func() error {
			if err := app.indexer.Run(ctx, app.indexSub); err != nil {
				app.logger.Error("indexer stopped, read models are stale", "err", err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (app *OracleApp) Stop() error {
	var err error
	if app.bus.IsRunning() {
		err = multierr.Append(err, app.bus.Stop())
	}
	if app.indexer != nil {
		err = multierr.Append(err, app.indexer.Close())
	}
	err = multierr.Append(err, app.db.Close())
	if err != nil {
		app.logger.Error("stop fail", "err", err)
		return err
	}
	app.logger.Info("oracle app stopped")
	return nil
}

func (app *OracleApp) Oracle() *oracle.Coordinator {
	return app.oracle
}

func (app *OracleApp) Ledger() *ledger.Ledger {
	return app.ledger
}

func (app *OracleApp) Indexer() *indexer.Indexer {
	return app.indexer
}

func (app *OracleApp) Metrics() *Metrics {
	return app.metrics
}

func (app *OracleApp) parseTx(txDat []byte) (btx *tx.OracleTx, h handler.TxHandler, err error) {
	btx, err = tx.UnmarshalOracleTx(txDat)
	if err != nil {
		return
	}
	h, ok := app.txHdlrs[btx.Type]
	if !ok {
		err = fmt.Errorf("%w: %v", tx.ErrUnsupportedTxType, btx.Type)
	}
	return
}

// CheckTx runs the preconditions of a transaction without changing state.
func (app *OracleApp) CheckTx(ctx context.Context, sender common.Address, txDat []byte) (res *abcitypes.ResponseCheckTx) {
	btx, h, err := app.parseTx(txDat)
	if err != nil {
		app.logger.Error("parse tx fail", "err", err)
		return &abcitypes.ResponseCheckTx{Code: tx.CodeOf(err), Log: err.Error()}
	}
	res, err = h.Check(ctx, sender, btx)
	if err != nil {
		app.logger.Error("check tx fail", "type", btx.Type, "err", err)
		res = &abcitypes.ResponseCheckTx{Code: tx.CodeOf(err), Codespace: types.CodeOf(err), Log: err.Error()}
	}
	return
}

// DeliverTx executes a transaction on behalf of sender.
func (app *OracleApp) DeliverTx(ctx context.Context, sender common.Address, txDat []byte) (res *abcitypes.ExecTxResult) {
	btx, h, err := app.parseTx(txDat)
	if err != nil {
		app.logger.Error("parse tx fail", "err", err)
		return &abcitypes.ExecTxResult{Code: tx.CodeOf(err), Log: err.Error()}
	}
	res, err = h.Deliver(ctx, sender, btx)
	if err != nil {
		app.logger.Info("deliver tx fail", "type", btx.Type, "sender", sender, "err", err)
		res = &abcitypes.ExecTxResult{Code: tx.CodeOf(err), Codespace: types.CodeOf(err), Log: err.Error()}
	}
	app.metrics.observeTx(btx.Type, res.Code)
	app.metrics.setVersion(app.db.Header().Version)
	return
}
