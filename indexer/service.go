package indexer

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"
	"github.com/shopspring/decimal"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
	ratePrecision   = 4
)

type Service struct {
	indexer *Indexer
}

func NewService(indexer *Indexer) *Service {
	return &Service{indexer: indexer}
}

// Register mounts the read endpoints on r.
func (s *Service) Register(r gin.IRoutes) {
	r.GET("/requests", s.handleGetRequests)
	r.GET("/requests/:id/reviews", s.handleGetReviews)
	r.GET("/parties/:address", s.handleGetParty)
	r.GET("/dashboard", s.handleGetDashboard)
}

type PartyInfo struct {
	PartyStat
	SuccessRate decimal.Decimal `json:"success_rate"`
}

// WinRate is wins over decided disputes, zero before the first one.
func (p PartyStat) WinRate() decimal.Decimal {
	decided := p.Wins + p.Losses
	if decided == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(p.Wins)).DivRound(decimal.NewFromInt(int64(decided)), ratePrecision)
}

type GetRequestsReq struct {
	Status   string `form:"status"`
	Party    string `form:"party"`
	Page     int    `form:"page"`
	PageSize int    `form:"pageSize"`
}

type GetRequestsResponse struct {
	Requests []RequestRecord `json:"requests"`
	Total    uint64          `json:"total"`
}

func (s *Service) handleGetRequests(c *gin.Context) {
	var requestData GetRequestsReq
	if err := c.ShouldBindQuery(&requestData); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if requestData.Party != "" {
		if !common.IsHexAddress(requestData.Party) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid party address"})
			return
		}
		requestData.Party = common.HexToAddress(requestData.Party).Hex()
	}
	if requestData.Page < 0 {
		requestData.Page = 0
	}
	if requestData.PageSize <= 0 || requestData.PageSize > maxPageSize {
		requestData.PageSize = defaultPageSize
	}
	records, total, err := s.indexer.getRequests(requestData.Status, requestData.Party, requestData.Page, requestData.PageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	response := GetRequestsResponse{Requests: make([]RequestRecord, 0, len(records)), Total: total}
	response.Requests = append(response.Requests, records...)
	c.JSON(http.StatusOK, response)
}

type GetReviewsResponse struct {
	Request RequestRecord  `json:"request"`
	Reviews []ReviewRecord `json:"reviews"`
}

func (s *Service) handleGetReviews(c *gin.Context) {
	id := c.Param("id")
	if !common.IsHexAddress(id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}
	id = common.HexToAddress(id).Hex()
	record, err := s.indexer.getRequestById(id)
	if gorm.IsRecordNotFoundError(err) {
		c.JSON(http.StatusNotFound, gin.H{"error": "request not indexed"})
		return
	} else if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	reviews, err := s.indexer.getReviewsByRequest(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, GetReviewsResponse{Request: record, Reviews: append(make([]ReviewRecord, 0, len(reviews)), reviews...)})
}

type GetPartyResponse struct {
	Address string      `json:"address"`
	Roles   []PartyInfo `json:"roles"`
}

func (s *Service) handleGetParty(c *gin.Context) {
	address := c.Param("address")
	if !common.IsHexAddress(address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return
	}
	address = common.HexToAddress(address).Hex()
	stats, err := s.indexer.getPartyStats(address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	response := GetPartyResponse{Address: address, Roles: make([]PartyInfo, 0, len(stats))}
	for _, stat := range stats {
		response.Roles = append(response.Roles, PartyInfo{PartyStat: stat, SuccessRate: stat.WinRate()})
	}
	c.JSON(http.StatusOK, response)
}

func (s *Service) handleGetDashboard(c *gin.Context) {
	d, err := s.indexer.getDashboard()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, d)
}
