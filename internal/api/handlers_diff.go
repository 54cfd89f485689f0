// handlers_diff.go - Case comparison query handlers
package api

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang/glog"
	"github.com/labstack/echo/v4"
	"github.com/olx-analyzer/backend/internal/diffstore"
	"github.com/olx-analyzer/backend/internal/models"
	"github.com/olx-analyzer/backend/internal/olx"
	"github.com/olx-analyzer/backend/internal/session"
)

// DiffHandlerImpl implements the DiffHandler interface
type DiffHandlerImpl struct {
	sessionMgr SessionManager
	filters    *filterSource
	exportDir  string
}

// NewDiffHandler creates a new diff handler instance
func NewDiffHandler(sessionMgr SessionManager, filters *filterSource, exportDir string) DiffHandler {
	return &DiffHandlerImpl{
		sessionMgr: sessionMgr,
		filters:    filters,
		exportDir:  exportDir,
	}
}

// loadedDiff is either a whole diff or a streamed one.
type loadedDiff struct {
	id     string
	whole  *olx.Diff
	store  *diffstore.Store
	stream *olx.StreamResult
}

func (h *DiffHandlerImpl) load(c echo.Context) (*loadedDiff, error) {
	id, err := sessionParam(c)
	if err != nil {
		return nil, err
	}
	d, err := h.sessionMgr.Diff(id)
	if err == nil {
		return &loadedDiff{id: id, whole: d}, nil
	}
	if !errors.Is(err, session.ErrWrongKind) {
		return nil, mapError(err, "session", id)
	}
	store, res, serr := h.sessionMgr.Streamed(id)
	if serr != nil {
		// A case session reports the kind mismatch of the first lookup.
		return nil, mapError(err, "session", id)
	}
	return &loadedDiff{id: id, store: store, stream: res}, nil
}

// loadWhole is load restricted to diffs held in memory.
func (h *DiffHandlerImpl) loadWhole(c echo.Context) (string, *olx.Diff, error) {
	id, err := sessionParam(c)
	if err != nil {
		return "", nil, err
	}
	d, err := h.sessionMgr.Diff(id)
	if err != nil {
		return id, nil, mapError(err, "session", id)
	}
	return id, d, nil
}

func (l *loadedDiff) header() olx.DiffHeader {
	if l.whole != nil {
		return l.whole.Header()
	}
	return l.stream.Header
}

type diffHeaderResponse struct {
	olx.DiffHeader
	Successive bool `json:"successive" msgpack:"successive"`
	Records    int  `json:"records" msgpack:"records"`
	// Comparison is the header scope as filter config keys.
	Comparison map[string]string `json:"comparison" msgpack:"comparison"`
}

// HandleDiffHeader returns the compared files and comparison settings
func (h *DiffHandlerImpl) HandleDiffHeader(c echo.Context) error {
	l, err := h.load(c)
	if err != nil {
		return err
	}
	hdr := l.header()
	resp := diffHeaderResponse{DiffHeader: hdr, Successive: l.store != nil, Comparison: hdr.ComparisonConfig()}
	if l.whole != nil {
		resp.Records = len(l.whole.Records())
	} else {
		resp.Records = l.store.Len()
	}
	return respond(c, http.StatusOK, resp)
}

// HandleDiffStats answers a change statistics query. Whole diffs read the
// CHANGESTAT block; streamed diffs count the records that were kept.
func (h *DiffHandlerImpl) HandleDiffStats(c echo.Context) error {
	l, err := h.load(c)
	if err != nil {
		return err
	}
	action := models.Action(strings.ToUpper(c.QueryParam("action")))
	objType := strings.ToUpper(c.QueryParam("type"))

	var res *olx.StatResult
	if l.whole != nil {
		res, err = l.whole.ChangeStatistics(action, objType)
	} else {
		res, err = olx.Statistics(l.stream.Stats, action, objType)
	}
	if err != nil {
		return mapError(err, "", "")
	}
	return respond(c, http.StatusOK, res)
}

type diffFilterResponse struct {
	Summary []string       `json:"summary" msgpack:"summary"`
	Total   int            `json:"total" msgpack:"total"`
	Matched []int          `json:"matched" msgpack:"matched"`
	Stats   map[string]int `json:"stats" msgpack:"stats"`
	// Changes holds the matching records when filterOut was requested.
	Changes []diffstore.Change `json:"changes,omitempty" msgpack:"changes,omitempty"`
}

// HandleDiffFilter evaluates filter options against the records of a
// whole diff. Without a config the diff's own comparison scope is used.
func (h *DiffHandlerImpl) HandleDiffFilter(c echo.Context) error {
	_, d, err := h.loadWhole(c)
	if err != nil {
		return err
	}
	req, err := bindFilter(c)
	if err != nil {
		return err
	}
	if c.QueryParam("scope") == "header" && len(req.Config) == 0 {
		req.Config = d.ComparisonConfig()
	}
	pred, err := h.filters.options(req)
	if err != nil {
		return mapError(err, "filter config", req.ConfigPath)
	}

	mask := d.FilterRecords(pred)
	resp := diffFilterResponse{Summary: pred.Summary(), Total: len(mask), Matched: []int{}}
	var kept []*olx.Record
	for i, ok := range mask {
		if !ok {
			continue
		}
		rec := d.Records()[i]
		resp.Matched = append(resp.Matched, i)
		kept = append(kept, rec)
		if req.FilterOut {
			resp.Changes = append(resp.Changes, diffstore.NewChange(i, rec))
		}
	}
	resp.Stats = olx.CountChanges(kept)
	return respond(c, http.StatusOK, resp)
}

// HandleDiffModel rebuilds the diff as flat field maps. ?ref names a case
// session whose bus index reconciles terminal GUIDs and bus numbers.
func (h *DiffHandlerImpl) HandleDiffModel(c echo.Context) error {
	_, d, err := h.loadWhole(c)
	if err != nil {
		return err
	}
	var ref *olx.Case
	if refID := c.QueryParam("ref"); refID != "" {
		if ref, err = h.sessionMgr.Case(refID); err != nil {
			return mapError(err, "reference session", refID)
		}
	}
	return respond(c, http.StatusOK, d.BuildDiffModel(ref))
}

// HandleDiffExport writes the diff, or the records matching a filter, to
// the export directory with CHANGESTAT recomputed.
func (h *DiffHandlerImpl) HandleDiffExport(c echo.Context) error {
	id, d, err := h.loadWhole(c)
	if err != nil {
		return err
	}
	req, err := bindFilter(c)
	if err != nil {
		return err
	}

	f, path, err := exportTarget(h.exportDir, "diff", id, ".adx")
	if err != nil {
		return NewInternalError("failed to create export file", err)
	}
	defer f.Close()

	written := len(d.Records())
	if len(req.Config) == 0 && req.ConfigPath == "" {
		err = d.ExportFull(f)
	} else {
		pred, perr := h.filters.options(req)
		if perr != nil {
			return mapError(perr, "filter config", req.ConfigPath)
		}
		mask := d.FilterRecords(pred)
		written = 0
		for _, ok := range mask {
			if ok {
				written++
			}
		}
		err = d.ExportFiltered(mask, f)
	}
	if err != nil {
		return NewInternalError("failed to export diff", err)
	}
	glog.Infof("[Export] diff %s: %d records to %s", shortID(id), written, path)

	if c.QueryParam("download") == "1" {
		if err := f.Close(); err != nil {
			return NewInternalError("failed to export diff", err)
		}
		return c.Attachment(path, filepath.Base(path))
	}
	return c.JSON(http.StatusCreated, exportResponse{Path: path, Records: written})
}

func queryParams(c echo.Context) diffstore.QueryParams {
	return diffstore.QueryParams{
		Action:  models.Action(strings.ToUpper(c.QueryParam("action"))),
		ObjType: strings.ToUpper(c.QueryParam("type")),
		Search:  c.QueryParam("search"),
	}
}

// HandleDiffChanges returns one page of change records, optionally
// narrowed by action, type and a search term
func (h *DiffHandlerImpl) HandleDiffChanges(c echo.Context) error {
	l, err := h.load(c)
	if err != nil {
		return err
	}
	page, pageSize, err := pageQuery(c)
	if err != nil {
		return err
	}
	params := queryParams(c)

	if l.store != nil {
		items, total, err := l.store.Query(c.Request().Context(), params, page, pageSize)
		if err != nil {
			return NewInternalError("failed to query changes", err)
		}
		return respond(c, http.StatusOK, pageResponse{Total: total, Page: page, PageSize: pageSize, Items: items})
	}

	var matched []diffstore.Change
	for i, rec := range l.whole.Records() {
		ch := diffstore.NewChange(i, rec)
		ch.ID = i
		if params.Matches(ch) {
			matched = append(matched, ch)
		}
	}
	start, end := pageBounds(len(matched), page, pageSize)
	items := append([]diffstore.Change{}, matched[start:end]...)
	return respond(c, http.StatusOK, pageResponse{Total: len(matched), Page: page, PageSize: pageSize, Items: items})
}

// HandleDiffChange returns a single change record by id
func (h *DiffHandlerImpl) HandleDiffChange(c echo.Context) error {
	l, err := h.load(c)
	if err != nil {
		return err
	}
	raw := c.Param("changeId")
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return NewValidationError("changeId")
	}

	if l.store != nil {
		ch, err := l.store.Get(c.Request().Context(), n)
		if err != nil {
			return mapError(err, "change", raw)
		}
		return respond(c, http.StatusOK, ch)
	}
	recs := l.whole.Records()
	if n >= len(recs) {
		return NewNotFoundError("change", raw)
	}
	ch := diffstore.NewChange(n, recs[n])
	ch.ID = n
	return respond(c, http.StatusOK, ch)
}

// HandleDiffCounts returns the number of records per CHANGESTAT key
func (h *DiffHandlerImpl) HandleDiffCounts(c echo.Context) error {
	l, err := h.load(c)
	if err != nil {
		return err
	}
	if l.whole != nil {
		return respond(c, http.StatusOK, olx.CountChanges(l.whole.Records()))
	}
	counts, err := l.store.Counts(c.Request().Context())
	if err != nil {
		return NewInternalError("failed to count changes", err)
	}
	return respond(c, http.StatusOK, counts)
}
