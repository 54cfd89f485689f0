// Package session loads case and diff files in the background and keeps the
// loaded documents for the API to query.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/olx-analyzer/backend/internal/diffstore"
	"github.com/olx-analyzer/backend/internal/filter"
	"github.com/olx-analyzer/backend/internal/models"
	"github.com/olx-analyzer/backend/internal/olx"
	"github.com/olx-analyzer/backend/internal/parser"
)

// MaxSessions limits concurrent sessions to prevent memory exhaustion
const MaxSessions = 10

// SessionKeepAliveWindow is how long to keep sessions that are actively being used
const SessionKeepAliveWindow = 5 * time.Minute

var (
	// ErrNotFound is returned for an unknown session id.
	ErrNotFound = errors.New("session not found")
	// ErrNotReady is returned while a session is still loading or has failed.
	ErrNotReady = errors.New("session not ready")
	// ErrWrongKind is returned when a case operation targets a diff session or the reverse.
	ErrWrongKind = errors.New("session holds a different document kind")
)

// Options configures a Manager.
type Options struct {
	TempDir string
	// SuccessiveThreshold streams diff files larger than this many bytes
	// into a record store. Zero never streams unless asked.
	SuccessiveThreshold int64
	ProgressEvery       int
	// Persist, when set, keeps the stores of unfiltered streamed diffs
	// between sessions.
	Persist *PersistentStores
}

// StartOptions tune a single load.
type StartOptions struct {
	// Successive forces streaming of a diff regardless of its size.
	Successive bool
	// Predicate selects the records a streamed diff keeps.
	Predicate *filter.Options
}

// Manager handles document sessions.
type Manager struct {
	sessions map[string]*SessionState
	mu       sync.RWMutex
	opts     Options
}

// SessionState holds the session metadata and whichever document it loaded.
type SessionState struct {
	Session *models.DocumentSession
	Case    *olx.Case
	Diff    *olx.Diff
	// Store and Stream are set for streamed diffs.
	Store        *diffstore.Store
	Stream       *olx.StreamResult
	Predicate    *filter.Options
	LastAccessed time.Time
	fileID       string
	done         chan struct{}
}

// NewManager creates a session manager writing stores under opts.TempDir.
func NewManager(opts Options) *Manager {
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	os.MkdirAll(opts.TempDir, 0755)
	return &Manager{
		sessions: make(map[string]*SessionState),
		opts:     opts,
	}
}

// StartSession begins loading path in the background.
func (m *Manager) StartSession(fileID, path string, kind models.DocumentKind, so StartOptions) (*models.DocumentSession, error) {
	if kind != models.KindCase && kind != models.KindDiff {
		return nil, fmt.Errorf("cannot load %s document", kind)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	m.cleanupOldSessionsIfNeeded()

	session := models.NewDocumentSession(uuid.New().String(), fileID, kind)
	session.Status = models.SessionStatusParsing
	session.Successive = kind == models.KindDiff &&
		(so.Successive || (m.opts.SuccessiveThreshold > 0 && info.Size() > m.opts.SuccessiveThreshold))

	state := &SessionState{
		fileID:       fileID,
		Session:      session,
		Predicate:    so.Predicate,
		LastAccessed: time.Now(),
		done:         make(chan struct{}),
	}

	m.mu.Lock()
	m.sessions[session.ID] = state
	m.mu.Unlock()

	go m.runLoad(state, path)

	snapshot := *session
	return &snapshot, nil
}

func (m *Manager) runLoad(state *SessionState, path string) {
	id := state.Session.ID
	short := shortID(id)
	defer close(state.done)
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("[Session %s] PANIC recovered: %v", short, r)
			m.updateSessionError(id, fmt.Sprintf("load panicked: %v", r))
		}
	}()

	start := time.Now()
	glog.Infof("[Session %s] loading %s (%s, successive=%v)", short, path, state.Session.Kind, state.Session.Successive)

	popts := parser.ParseOptions{
		Label:         path,
		ProgressEvery: m.opts.ProgressEvery,
		OnProgress:    m.progressFunc(id),
	}

	var err error
	switch {
	case state.Session.Successive:
		err = m.loadSuccessive(state, path, popts)
	case state.Session.Kind == models.KindCase:
		var c *olx.Case
		if c, err = olx.OpenCase(path, popts); err == nil {
			m.mu.Lock()
			state.Case = c
			state.Session.RecordCount = countCaseRecords(c)
			m.mu.Unlock()
		}
	default:
		var d *olx.Diff
		if d, err = olx.LoadDiff(path, popts); err == nil {
			m.mu.Lock()
			state.Diff = d
			state.Session.RecordCount = len(d.Records())
			m.mu.Unlock()
		}
	}
	if err != nil {
		glog.Errorf("[Session %s] load failed: %v", short, err)
		m.updateSessionError(id, err.Error())
		return
	}

	m.mu.Lock()
	state.Session.Status = models.SessionStatusComplete
	state.Session.Progress = 100
	state.Session.ProcessingTimeMs = time.Since(start).Milliseconds()
	m.mu.Unlock()
	glog.Infof("[Session %s] loaded %d records in %v", short, state.Session.RecordCount, time.Since(start).Round(time.Millisecond))
}

func (m *Manager) loadSuccessive(state *SessionState, path string, popts parser.ParseOptions) error {
	persist := m.opts.Persist
	if state.Predicate != nil {
		persist = nil
	}
	if persist != nil {
		if store, err := persist.Open(state.fileID); err != nil {
			glog.Warningf("[Session %s] %v, streaming again", shortID(state.Session.ID), err)
		} else if store != nil {
			return m.reuseStore(state, path, store)
		}
	}

	var store *diffstore.Store
	var err error
	if persist != nil {
		store, err = persist.Create(state.fileID)
	} else {
		store, err = diffstore.New(m.opts.TempDir, state.Session.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to create record store: %w", err)
	}
	res, err := olx.ProcessSuccessivelyFile(path, olx.StreamOptions{
		Predicate:     state.Predicate,
		Sink:          store,
		ProgressEvery: popts.ProgressEvery,
		OnProgress:    popts.OnProgress,
	})
	if err == nil {
		err = store.Finalize()
	}
	if err != nil {
		store.Close()
		if persist != nil {
			persist.Delete(state.fileID)
		}
		return err
	}
	if persist != nil {
		persist.MarkComplete(state.fileID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	state.Store = store
	state.Stream = res
	state.Session.RecordCount = res.Total
	state.Session.MatchedCount = res.Matched
	return nil
}

// reuseStore rebuilds the stream summary of a stored unfiltered diff.
func (m *Manager) reuseStore(state *SessionState, path string, store *diffstore.Store) error {
	header, err := olx.ReadDiffHeader(path)
	if err != nil {
		store.Close()
		return err
	}
	stats, err := store.Counts(context.Background())
	if err != nil {
		store.Close()
		return err
	}
	res := &olx.StreamResult{Header: header, Total: store.Len(), Matched: store.Len(), Stats: stats}

	m.mu.Lock()
	defer m.mu.Unlock()
	state.Store = store
	state.Stream = res
	state.Session.RecordCount = res.Total
	state.Session.MatchedCount = res.Matched
	return nil
}

func countCaseRecords(c *olx.Case) int {
	n := 0
	for _, t := range c.TableNames() {
		n += len(c.Records(t))
	}
	return n
}

// progressFunc maps parse progress to 0-90%; the rest is finalization.
func (m *Manager) progressFunc(id string) parser.ProgressCallback {
	return func(elements int, bytesRead, totalBytes int64) {
		progress := 0.0
		if totalBytes > 0 {
			progress = float64(bytesRead) * 90.0 / float64(totalBytes)
		}
		if progress > 89.9 {
			progress = 89.9
		}

		m.mu.Lock()
		if state, ok := m.sessions[id]; ok {
			state.Session.Progress = progress
			state.Session.ElementCount = elements
		}
		m.mu.Unlock()

		if glog.V(2) {
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			glog.Infof("[Session %s] %.1f%% (%d elements) alloc=%.1fMB", shortID(id), progress, elements, float64(ms.Alloc)/1024/1024)
		}
	}
}

func (m *Manager) updateSessionError(id, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return
	}
	state.Session.Status = models.SessionStatusError
	state.Session.Errors = append(state.Session.Errors, reason)
}

func (state *SessionState) release() {
	if state.Store != nil {
		state.Store.Close()
		state.Store = nil
	}
	state.Case, state.Diff = nil, nil
}

func finished(s *models.DocumentSession) bool {
	return s.Status == models.SessionStatusComplete || s.Status == models.SessionStatusError
}

// cleanupOldSessionsIfNeeded removes finished sessions, least recently used
// first, until there is room for one more.
func (m *Manager) cleanupOldSessionsIfNeeded() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for len(m.sessions) >= MaxSessions {
		var oldest string
		var oldestAt time.Time
		for id, state := range m.sessions {
			if !finished(state.Session) {
				continue
			}
			if oldest == "" || state.LastAccessed.Before(oldestAt) {
				oldest, oldestAt = id, state.LastAccessed
			}
		}
		if oldest == "" {
			return
		}
		m.sessions[oldest].release()
		delete(m.sessions, oldest)
		glog.V(1).Infof("[Session] evicted %s to free memory", shortID(oldest))
	}
}

// CleanupOldSessions removes finished sessions not accessed within maxAge.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if maxAge < SessionKeepAliveWindow {
		maxAge = SessionKeepAliveWindow
	}
	cutoff := time.Now().Add(-maxAge)
	for id, state := range m.sessions {
		if !finished(state.Session) || state.LastAccessed.After(cutoff) {
			continue
		}
		state.release()
		delete(m.sessions, id)
		glog.V(1).Infof("[Session] cleaned up aged session %s (last accessed %s ago)",
			shortID(id), time.Since(state.LastAccessed).Round(time.Second))
	}
}

// DeleteSession releases a session immediately.
func (m *Manager) DeleteSession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return false
	}
	if finished(state.Session) {
		state.release()
	} else {
		go func() {
			<-state.done
			m.mu.Lock()
			state.release()
			m.mu.Unlock()
		}()
	}
	delete(m.sessions, id)
	return true
}

// DeleteFileData drops every session of fileID together with its persisted
// record store. It returns the number of sessions released.
func (m *Manager) DeleteFileData(fileID string) int {
	m.mu.RLock()
	var ids []string
	for id, state := range m.sessions {
		if state.fileID == fileID {
			ids = append(ids, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range ids {
		m.DeleteSession(id)
	}
	if m.opts.Persist != nil && m.opts.Persist.Has(fileID) {
		if err := m.opts.Persist.Delete(fileID); err != nil {
			glog.Warningf("[Session] removing stored diff of %s: %v", shortID(fileID), err)
		}
	}
	return len(ids)
}

// Close releases every session.
func (m *Manager) Close() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.DeleteSession(id)
	}
}

// GetSession returns a snapshot of a session's metadata.
func (m *Manager) GetSession(id string) (*models.DocumentSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	snapshot := *state.Session
	snapshot.Errors = append([]string(nil), state.Session.Errors...)
	return &snapshot, true
}

// ListSessions returns snapshots of every session.
func (m *Manager) ListSessions() []*models.DocumentSession {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.DocumentSession, 0, len(m.sessions))
	for _, state := range m.sessions {
		snapshot := *state.Session
		out = append(out, &snapshot)
	}
	return out
}

// Wait blocks until a session finishes loading or ctx ends.
func (m *Manager) Wait(ctx context.Context, id string) (*models.DocumentSession, error) {
	m.mu.RLock()
	state, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	select {
	case <-state.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	s, _ := m.GetSession(id)
	return s, nil
}

// TouchSession updates the LastAccessed timestamp for a session.
func (m *Manager) TouchSession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return false
	}
	state.LastAccessed = time.Now()
	return true
}

func (m *Manager) ready(id string, kind models.DocumentKind) (*SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if state.Session.Status != models.SessionStatusComplete {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotReady, id, state.Session.Status)
	}
	if state.Session.Kind != kind {
		return nil, fmt.Errorf("%w: %s is a %s", ErrWrongKind, id, state.Session.Kind)
	}
	state.LastAccessed = time.Now()
	return state, nil
}

// Case returns the loaded case of a session.
func (m *Manager) Case(id string) (*olx.Case, error) {
	state, err := m.ready(id, models.KindCase)
	if err != nil {
		return nil, err
	}
	return state.Case, nil
}

// Diff returns the loaded diff of a session. Streamed sessions have no
// in-memory diff and report ErrWrongKind.
func (m *Manager) Diff(id string) (*olx.Diff, error) {
	state, err := m.ready(id, models.KindDiff)
	if err != nil {
		return nil, err
	}
	if state.Diff == nil {
		return nil, fmt.Errorf("%w: %s was streamed", ErrWrongKind, id)
	}
	return state.Diff, nil
}

// Streamed returns the record store and stream summary of a streamed diff.
func (m *Manager) Streamed(id string) (*diffstore.Store, *olx.StreamResult, error) {
	state, err := m.ready(id, models.KindDiff)
	if err != nil {
		return nil, nil, err
	}
	if state.Store == nil {
		return nil, nil, fmt.Errorf("%w: %s was loaded whole", ErrWrongKind, id)
	}
	return state.Store, state.Stream, nil
}
