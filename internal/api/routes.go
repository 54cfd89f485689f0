// routes.go - Route registration helpers
package api

import (
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/olx-analyzer/backend/internal/config"
	"github.com/olx-analyzer/backend/internal/storage"
	"github.com/olx-analyzer/backend/internal/upload"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store      storage.Store
	SessionMgr SessionManager
	UploadMgr  *upload.Manager
	// ExportDir receives files written by the export endpoints.
	ExportDir string
	// DefaultFilter is the filter config file used when a request names none.
	DefaultFilter string
	// AllowedTypes lists accepted upload extensions; empty accepts any.
	AllowedTypes []string
	Version      string
}

// Handlers holds all handler instances
type Handlers struct {
	Health  HealthHandler
	Upload  UploadHandler
	Session SessionHandler
	Case    CaseHandler
	Diff    DiffHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	filters := &filterSource{defaultPath: deps.DefaultFilter}
	return &Handlers{
		Health:  NewHealthHandler(deps.Version),
		Upload:  NewUploadHandler(deps.Store, deps.SessionMgr, deps.UploadMgr, deps.AllowedTypes),
		Session: NewSessionHandler(deps.Store, deps.SessionMgr, filters),
		Case:    NewCaseHandler(deps.SessionMgr, filters, deps.ExportDir),
		Diff:    NewDiffHandler(deps.SessionMgr, filters, deps.ExportDir),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	e.GET("/health", handlers.Health.HandleHealth)

	files := e.Group("/api/files")
	files.POST("/upload", handlers.Upload.HandleUploadBinary)
	files.POST("/upload/chunk", handlers.Upload.HandleUploadChunk)
	files.POST("/upload/complete", handlers.Upload.HandleCompleteUpload)
	files.GET("/upload/jobs/:jobId", handlers.Upload.HandleUploadJobStatus)
	files.GET("/recent", handlers.Upload.HandleGetRecentFiles)
	files.GET("/:id", handlers.Upload.HandleGetFile)
	files.DELETE("/:id", handlers.Upload.HandleDeleteFile)
	files.PUT("/:id", handlers.Upload.HandleRenameFile)

	sessions := e.Group("/api/sessions")
	sessions.POST("", handlers.Session.HandleStartSession)
	sessions.GET("", handlers.Session.HandleListSessions)
	sessions.GET("/:sessionId/status", handlers.Session.HandleSessionStatus)
	sessions.POST("/:sessionId/keepalive", handlers.Session.HandleSessionKeepAlive)
	sessions.DELETE("/:sessionId", handlers.Session.HandleDeleteSession)
	sessions.GET("/:sessionId/progress", handlers.Session.HandleSessionProgress)

	cases := e.Group("/api/case/:sessionId")
	cases.GET("/header", handlers.Case.HandleCaseHeader)
	cases.GET("/records/:type", handlers.Case.HandleCaseRecords)
	cases.POST("/filter", handlers.Case.HandleCaseFilter)
	cases.POST("/export", handlers.Case.HandleCaseExport)

	diffs := e.Group("/api/diff/:sessionId")
	diffs.GET("/header", handlers.Diff.HandleDiffHeader)
	diffs.GET("/stats", handlers.Diff.HandleDiffStats)
	diffs.POST("/filter", handlers.Diff.HandleDiffFilter)
	diffs.GET("/model", handlers.Diff.HandleDiffModel)
	diffs.POST("/export", handlers.Diff.HandleDiffExport)
	diffs.GET("/changes", handlers.Diff.HandleDiffChanges)
	diffs.GET("/changes/:changeId", handlers.Diff.HandleDiffChange)
	diffs.GET("/counts", handlers.Diff.HandleDiffCounts)
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, cfg *config.AppConfig) {
	e.HTTPErrorHandler = ErrorHandler
	e.Use(middleware.Recover())

	if cfg == nil {
		return
	}
	if cfg.Server.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))
	}
	if cfg.Server.EnableCORS {
		origins := []string{"*"}
		if cfg.Server.AllowOrigins != "" {
			origins = strings.Split(cfg.Server.AllowOrigins, ",")
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: origins}))
	}
	if cfg.Advanced.EnableRequestLogging {
		e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
			LogMethod:  true,
			LogURI:     true,
			LogStatus:  true,
			LogLatency: true,
			LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
				glog.Infof("[HTTP] %s %s %d %s", v.Method, v.URI, v.Status, v.Latency.Round(time.Millisecond))
				return nil
			},
		}))
	}
}
