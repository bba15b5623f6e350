// Package api exposes the record store over HTTP. It is thin glue: every
// endpoint delegates to the store and translates its error kinds into
// status codes. Because the core is single-writer, the server serializes
// all mutating requests behind one mutex.
package api

import (
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hyperdb/hyperdb/internal/store"
)

// Server mounts the HTTP surface over one RecordStore session.
type Server struct {
	store  *store.RecordStore
	logger *zap.Logger

	// mu serializes mutating operations; the store itself has no locking.
	mu sync.Mutex
}

// NewServer creates a Server.
func NewServer(st *store.RecordStore, logger *zap.Logger) *Server {
	return &Server{store: st, logger: logger}
}

// Router builds the gin engine with middleware and all routes mounted.
// corsOrigins may be empty to disable CORS; rps <= 0 disables rate
// limiting.
func (s *Server) Router(corsOrigins []string, rps int) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(PrometheusMiddleware())
	if rps > 0 {
		r.Use(s.rateLimit(rps))
	}
	if len(corsOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     corsOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/healthz", s.Health)
	r.GET("/metrics", MetricsHandler())

	v1 := r.Group("/api/v1")
	{
		v1.POST("/models", s.CreateModel)
		v1.GET("/models", s.ListModels)

		v1.POST("/records", s.CreateRecord)
		v1.GET("/records", s.ListRecords)
		v1.GET("/records/:id", s.GetRecord)
		v1.PUT("/records/:id", s.UpdateRecord)
		v1.POST("/records/search", s.SearchRecords)

		v1.POST("/mine", s.Mine)

		v1.GET("/ledger", s.LedgerInfo)
		v1.GET("/ledger/verify", s.LedgerVerify)
		v1.GET("/ledger/blocks/:idx", s.LedgerBlock)
		v1.GET("/ledger/balance/:address", s.LedgerBalance)

		v1.GET("/export", s.Export)
	}
	return r
}
