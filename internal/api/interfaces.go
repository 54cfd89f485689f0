// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/olx-analyzer/backend/internal/diffstore"
	"github.com/olx-analyzer/backend/internal/models"
	"github.com/olx-analyzer/backend/internal/olx"
	"github.com/olx-analyzer/backend/internal/session"
)

// UploadHandler handles file upload operations
type UploadHandler interface {
	HandleUploadBinary(c echo.Context) error
	HandleUploadChunk(c echo.Context) error
	HandleCompleteUpload(c echo.Context) error
	HandleUploadJobStatus(c echo.Context) error
	HandleGetRecentFiles(c echo.Context) error
	HandleGetFile(c echo.Context) error
	HandleDeleteFile(c echo.Context) error
	HandleRenameFile(c echo.Context) error
}

// SessionHandler handles document loading sessions
type SessionHandler interface {
	HandleStartSession(c echo.Context) error
	HandleListSessions(c echo.Context) error
	HandleSessionStatus(c echo.Context) error
	HandleSessionKeepAlive(c echo.Context) error
	HandleDeleteSession(c echo.Context) error
	HandleSessionProgress(c echo.Context) error
}

// CaseHandler queries loaded network cases
type CaseHandler interface {
	HandleCaseHeader(c echo.Context) error
	HandleCaseRecords(c echo.Context) error
	HandleCaseFilter(c echo.Context) error
	HandleCaseExport(c echo.Context) error
}

// DiffHandler queries loaded case comparisons
type DiffHandler interface {
	HandleDiffHeader(c echo.Context) error
	HandleDiffStats(c echo.Context) error
	HandleDiffFilter(c echo.Context) error
	HandleDiffModel(c echo.Context) error
	HandleDiffExport(c echo.Context) error
	HandleDiffChanges(c echo.Context) error
	HandleDiffChange(c echo.Context) error
	HandleDiffCounts(c echo.Context) error
}

// HealthHandler handles health check endpoints
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// SessionManager is the part of session.Manager the handlers use.
type SessionManager interface {
	StartSession(fileID, path string, kind models.DocumentKind, so session.StartOptions) (*models.DocumentSession, error)
	GetSession(id string) (*models.DocumentSession, bool)
	ListSessions() []*models.DocumentSession
	TouchSession(id string) bool
	DeleteSession(id string) bool
	DeleteFileData(fileID string) int
	Wait(ctx context.Context, id string) (*models.DocumentSession, error)
	Case(id string) (*olx.Case, error)
	Diff(id string) (*olx.Diff, error)
	Streamed(id string) (*diffstore.Store, *olx.StreamResult, error)
}

var _ SessionManager = (*session.Manager)(nil)
