// handlers_session.go - Document session handlers
package api

import (
	"net/http"

	"github.com/golang/glog"
	"github.com/labstack/echo/v4"
	"github.com/olx-analyzer/backend/internal/models"
	"github.com/olx-analyzer/backend/internal/session"
	"github.com/olx-analyzer/backend/internal/storage"
)

// SessionHandlerImpl implements the SessionHandler interface
type SessionHandlerImpl struct {
	store      storage.Store
	sessionMgr SessionManager
	filters    *filterSource
	progress   *progressStreamer
}

// NewSessionHandler creates a new session handler instance
func NewSessionHandler(store storage.Store, sessionMgr SessionManager, filters *filterSource) SessionHandler {
	return &SessionHandlerImpl{
		store:      store,
		sessionMgr: sessionMgr,
		filters:    filters,
		progress:   newProgressStreamer(sessionMgr),
	}
}

type startSessionRequest struct {
	FileID string `json:"fileId"`
	// Successive streams a diff into a record store regardless of its size.
	Successive bool `json:"successive"`
	filterRequest
}

// HandleStartSession starts loading an uploaded file
func (h *SessionHandlerImpl) HandleStartSession(c echo.Context) error {
	var req startSessionRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.FileID == "" {
		return NewValidationError("fileId")
	}

	info, err := h.store.Get(req.FileID)
	if err != nil {
		return mapError(err, "file", req.FileID)
	}
	if info.Kind != models.KindCase && info.Kind != models.KindDiff {
		return NewBadRequestError(info.Name+" is neither an ASPEN case nor a case comparison", nil)
	}
	path, err := h.store.GetFilePath(req.FileID)
	if err != nil {
		return mapError(err, "file", req.FileID)
	}

	so := session.StartOptions{Successive: req.Successive}
	if info.Kind == models.KindDiff && (len(req.Config) > 0 || req.ConfigPath != "") {
		if so.Predicate, err = h.filters.options(&req.filterRequest); err != nil {
			return mapError(err, "filter config", req.ConfigPath)
		}
	}

	sess, err := h.sessionMgr.StartSession(req.FileID, path, info.Kind, so)
	if err != nil {
		return NewInternalError("failed to start session", err)
	}
	if err := h.store.SetStatus(req.FileID, "loading"); err != nil {
		glog.Warningf("[Session] %v", err)
	}
	return c.JSON(http.StatusAccepted, sess)
}

// HandleListSessions returns every live session
func (h *SessionHandlerImpl) HandleListSessions(c echo.Context) error {
	return c.JSON(http.StatusOK, h.sessionMgr.ListSessions())
}

// HandleSessionStatus returns the current status of a session
func (h *SessionHandlerImpl) HandleSessionStatus(c echo.Context) error {
	id, err := sessionParam(c)
	if err != nil {
		return err
	}
	sess, ok := h.sessionMgr.GetSession(id)
	if !ok {
		return NewNotFoundError("session", id)
	}
	h.sessionMgr.TouchSession(id)
	h.syncFileStatus(sess)
	return c.JSON(http.StatusOK, sess)
}

// syncFileStatus mirrors a finished load onto the file list.
func (h *SessionHandlerImpl) syncFileStatus(sess *models.DocumentSession) {
	var status string
	switch sess.Status {
	case models.SessionStatusComplete:
		status = "loaded"
	case models.SessionStatusError:
		status = "error"
	default:
		return
	}
	if err := h.store.SetStatus(sess.FileID, status); err != nil {
		glog.V(1).Infof("[Session] file of %s: %v", shortID(sess.ID), err)
	}
}

// HandleSessionKeepAlive extends session lifetime for active viewing
func (h *SessionHandlerImpl) HandleSessionKeepAlive(c echo.Context) error {
	id, err := sessionParam(c)
	if err != nil {
		return err
	}
	if ok := h.sessionMgr.TouchSession(id); !ok {
		return NewNotFoundError("session", id)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleDeleteSession releases a session and its record store
func (h *SessionHandlerImpl) HandleDeleteSession(c echo.Context) error {
	id, err := sessionParam(c)
	if err != nil {
		return err
	}
	if !h.sessionMgr.DeleteSession(id) {
		return NewNotFoundError("session", id)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleSessionProgress streams session progress over a websocket
func (h *SessionHandlerImpl) HandleSessionProgress(c echo.Context) error {
	id, err := sessionParam(c)
	if err != nil {
		return err
	}
	if _, ok := h.sessionMgr.GetSession(id); !ok {
		return NewNotFoundError("session", id)
	}
	return h.progress.serve(c, id, h.syncFileStatus)
}
