package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hyperdb/hyperdb/internal/schema"
	"github.com/hyperdb/hyperdb/internal/store"
)

// statusFor maps a store error kind onto an HTTP status code.
func statusFor(err error) int {
	switch store.KindOf(err) {
	case store.KindUnknownModel, store.KindUnknownRecord:
		return http.StatusNotFound
	case store.KindModelExists:
		return http.StatusConflict
	case store.KindInvalidModel, store.KindMissingRequired, store.KindTypeMismatch:
		return http.StatusBadRequest
	case store.KindMiningAborted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) errorJSON(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{
		"error": err.Error(),
		"kind":  string(store.KindOf(err)),
	})
}

// Health handles GET /healthz.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type createModelRequest struct {
	Name        string             `json:"name" binding:"required"`
	Fields      []schema.FieldSpec `json:"fields" binding:"required"`
	Description string             `json:"description"`
}

// CreateModel handles POST /models.
func (s *Server) CreateModel(c *gin.Context) {
	var req createModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	err := s.store.CreateModel(c.Request.Context(), req.Name, req.Fields, req.Description)
	pending := s.store.PendingCount()
	s.mu.Unlock()

	if err != nil {
		s.errorJSON(c, err)
		return
	}
	setPendingGauge(pending)
	c.JSON(http.StatusCreated, gin.H{"name": req.Name})
}

// ListModels handles GET /models.
func (s *Server) ListModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"models": s.store.Models()})
}

type createRecordRequest struct {
	ModelName string         `json:"model_name" binding:"required"`
	Data      map[string]any `json:"data"`
}

// CreateRecord handles POST /records.
func (s *Server) CreateRecord(c *gin.Context) {
	var req createRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	id, err := s.store.AddRecord(c.Request.Context(), req.ModelName, req.Data)
	pending := s.store.PendingCount()
	s.mu.Unlock()

	if err != nil {
		s.errorJSON(c, err)
		return
	}
	recordCreated()
	setPendingGauge(pending)
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// GetRecord handles GET /records/:id.
func (s *Server) GetRecord(c *gin.Context) {
	rec, err := s.store.GetRecord(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.errorJSON(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

type updateRecordRequest struct {
	Data map[string]any `json:"data" binding:"required"`
}

// UpdateRecord handles PUT /records/:id. The payload replaces the stored
// one wholesale.
func (s *Server) UpdateRecord(c *gin.Context) {
	var req updateRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	err := s.store.UpdateRecord(c.Request.Context(), c.Param("id"), req.Data)
	pending := s.store.PendingCount()
	s.mu.Unlock()

	if err != nil {
		s.errorJSON(c, err)
		return
	}
	setPendingGauge(pending)
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
}

// ListRecords handles GET /records?model=Name.
func (s *Server) ListRecords(c *gin.Context) {
	records, err := s.store.ListRecords(c.Request.Context(), c.Query("model"))
	if err != nil {
		s.errorJSON(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}

type searchRequest struct {
	ModelName string         `json:"model_name"`
	Criteria  map[string]any `json:"criteria"`
}

// SearchRecords handles POST /records/search.
func (s *Server) SearchRecords(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	records, err := s.store.SearchRecords(c.Request.Context(), req.ModelName, req.Criteria)
	if err != nil {
		s.errorJSON(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}

// Mine handles POST /mine. With nothing staged it reports mined=false.
func (s *Server) Mine(c *gin.Context) {
	s.mu.Lock()
	summary, err := s.store.Mine(c.Request.Context())
	pending := s.store.PendingCount()
	s.mu.Unlock()

	if err != nil {
		s.errorJSON(c, err)
		return
	}
	setPendingGauge(pending)
	if summary == nil {
		c.JSON(http.StatusOK, gin.H{"mined": false})
		return
	}
	blockMined()
	c.JSON(http.StatusOK, gin.H{"mined": true, "block": summary})
}

// LedgerInfo handles GET /ledger.
func (s *Server) LedgerInfo(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Info())
}

// LedgerVerify handles GET /ledger/verify.
func (s *Server) LedgerVerify(c *gin.Context) {
	if err := s.store.VerifyChain(); err != nil {
		s.logger.Warn("chain integrity check failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"valid": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// LedgerBlock handles GET /ledger/blocks/:idx.
func (s *Server) LedgerBlock(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil || idx < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "idx must be a non-negative integer"})
		return
	}
	block, ok := s.store.ChainBlock(idx)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "block not found"})
		return
	}
	c.JSON(http.StatusOK, block)
}

// LedgerBalance handles GET /ledger/balance/:address.
func (s *Server) LedgerBalance(c *gin.Context) {
	address := c.Param("address")
	c.JSON(http.StatusOK, gin.H{
		"address": address,
		"balance": s.store.BalanceOf(address),
	})
}

// Export handles GET /export.
func (s *Server) Export(c *gin.Context) {
	doc, err := s.store.Export(c.Request.Context())
	if err != nil {
		s.errorJSON(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}
