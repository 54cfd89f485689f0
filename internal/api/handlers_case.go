// handlers_case.go - Network case query handlers
package api

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	"github.com/labstack/echo/v4"
	"github.com/olx-analyzer/backend/internal/filter"
	"github.com/olx-analyzer/backend/internal/models"
	"github.com/olx-analyzer/backend/internal/olx"
	"github.com/olx-analyzer/backend/internal/report"
)

// CaseHandlerImpl implements the CaseHandler interface
type CaseHandlerImpl struct {
	sessionMgr SessionManager
	filters    *filterSource
	exportDir  string
}

// NewCaseHandler creates a new case handler instance
func NewCaseHandler(sessionMgr SessionManager, filters *filterSource, exportDir string) CaseHandler {
	return &CaseHandlerImpl{
		sessionMgr: sessionMgr,
		filters:    filters,
		exportDir:  exportDir,
	}
}

func (h *CaseHandlerImpl) loadCase(c echo.Context) (string, *olx.Case, error) {
	id, err := sessionParam(c)
	if err != nil {
		return "", nil, err
	}
	doc, err := h.sessionMgr.Case(id)
	if err != nil {
		return id, nil, mapError(err, "session", id)
	}
	return id, doc, nil
}

type tableView struct {
	Name    string `json:"name" msgpack:"name"`
	Records int    `json:"records" msgpack:"records"`
}

type caseHeaderResponse struct {
	*olx.CaseHeader
	Tables []tableView `json:"tables" msgpack:"tables"`
}

// HandleCaseHeader returns the case header and its table sizes
func (h *CaseHandlerImpl) HandleCaseHeader(c echo.Context) error {
	_, doc, err := h.loadCase(c)
	if err != nil {
		return err
	}
	resp := caseHeaderResponse{CaseHeader: doc.Header()}
	for _, name := range doc.TableNames() {
		resp.Tables = append(resp.Tables, tableView{Name: name, Records: len(doc.Records(name))})
	}
	return respond(c, http.StatusOK, resp)
}

// recordView is one OLXREC as returned to clients.
type recordView struct {
	Index       int               `json:"index" msgpack:"index"`
	ObjType     string            `json:"objType" msgpack:"objType"`
	GUID        string            `json:"guid,omitempty" msgpack:"guid,omitempty"`
	NetID       string            `json:"netId,omitempty" msgpack:"netId,omitempty"`
	Description string            `json:"description" msgpack:"description"`
	Fields      map[string]string `json:"fields" msgpack:"fields"`
}

func newRecordView(idx int, rec *olx.Record, style report.Style) recordView {
	v := recordView{
		Index:       idx,
		ObjType:     rec.ObjType(),
		GUID:        rec.GUID(),
		NetID:       rec.NetID(),
		Description: style.Describe(rec),
		Fields:      make(map[string]string),
	}
	for _, f := range rec.DataFields() {
		name := f.AttrOr("NAME", "")
		if name != "" {
			v.Fields[name] = rec.FieldString(name)
		}
	}
	return v
}

type pageResponse struct {
	Total    int         `json:"total" msgpack:"total"`
	Page     int         `json:"page" msgpack:"page"`
	PageSize int         `json:"pageSize" msgpack:"pageSize"`
	Items    interface{} `json:"items" msgpack:"items"`
}

// pageBounds returns the slice bounds of page within total items.
func pageBounds(total, page, pageSize int) (int, int) {
	if page-1 > total/pageSize {
		return total, total
	}
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	return start, min(start+pageSize, total)
}

// HandleCaseRecords returns one page of the records of a table
func (h *CaseHandlerImpl) HandleCaseRecords(c echo.Context) error {
	_, doc, err := h.loadCase(c)
	if err != nil {
		return err
	}
	objType := strings.ToUpper(c.Param("type"))
	if !models.IsObjectType(objType) {
		return mapError(&models.InvalidArgumentError{Name: "object type", Value: objType, Valid: models.ObjectTypes}, "", "")
	}
	page, pageSize, err := pageQuery(c)
	if err != nil {
		return err
	}

	recs := doc.Records(objType)
	start, end := pageBounds(len(recs), page, pageSize)
	items := make([]recordView, 0, end-start)
	for i := start; i < end; i++ {
		items = append(items, newRecordView(i, recs[i], report.Style{}))
	}
	return respond(c, http.StatusOK, pageResponse{Total: len(recs), Page: page, PageSize: pageSize, Items: items})
}

type tableMatch struct {
	Total   int   `json:"total" msgpack:"total"`
	Matched []int `json:"matched" msgpack:"matched"`
}

type caseFilterResponse struct {
	Summary []string               `json:"summary" msgpack:"summary"`
	Tables  map[string]*tableMatch `json:"tables" msgpack:"tables"`
	// Records holds the selected records when filterOut was requested.
	Records map[string][]recordView `json:"records,omitempty" msgpack:"records,omitempty"`
}

// HandleCaseFilter evaluates filter options against every record
func (h *CaseHandlerImpl) HandleCaseFilter(c echo.Context) error {
	_, doc, err := h.loadCase(c)
	if err != nil {
		return err
	}
	req, err := bindFilter(c)
	if err != nil {
		return err
	}
	pred, err := h.filters.options(req)
	if err != nil {
		return mapError(err, "filter config", req.ConfigPath)
	}

	selected, flags := doc.FilteredData(pred, req.FilterOut)
	resp := caseFilterResponse{Summary: pred.Summary(), Tables: make(map[string]*tableMatch)}
	for name, results := range flags {
		tm := &tableMatch{Total: len(results), Matched: []int{}}
		for i, ok := range results {
			if ok {
				tm.Matched = append(tm.Matched, i)
			}
		}
		resp.Tables[name] = tm
	}
	if req.FilterOut {
		style := report.StyleFor(pred)
		resp.Records = make(map[string][]recordView)
		for name, recs := range selected {
			idx := resp.Tables[name].Matched
			for i, rec := range recs {
				resp.Records[name] = append(resp.Records[name], newRecordView(idx[i], rec, style))
			}
		}
	}
	return respond(c, http.StatusOK, resp)
}

// HandleCaseExport writes the case, or the records matching a filter, as an
// OLX file in the export directory. ?download=1 returns the file itself.
func (h *CaseHandlerImpl) HandleCaseExport(c echo.Context) error {
	id, doc, err := h.loadCase(c)
	if err != nil {
		return err
	}
	req, err := bindFilter(c)
	if err != nil {
		return err
	}

	f, path, err := exportTarget(h.exportDir, "case", id, ".olx")
	if err != nil {
		return NewInternalError("failed to create export file", err)
	}
	defer f.Close()

	var written int
	if len(req.Config) == 0 && req.ConfigPath == "" {
		for _, name := range doc.TableNames() {
			written += len(doc.Records(name))
		}
		err = doc.ExportFull(f)
	} else {
		var pred *filter.Options
		if pred, err = h.filters.options(req); err != nil {
			return mapError(err, "filter config", req.ConfigPath)
		}
		selected, _ := doc.FilteredData(pred, true)
		for _, recs := range selected {
			written += len(recs)
		}
		err = doc.ExportFiltered(selected, f)
	}
	if err != nil {
		return NewInternalError("failed to export case", err)
	}
	glog.Infof("[Export] case %s: %d records to %s", shortID(id), written, path)

	if c.QueryParam("download") == "1" {
		if err := f.Close(); err != nil {
			return NewInternalError("failed to export case", err)
		}
		return c.Attachment(path, filepath.Base(path))
	}
	return c.JSON(http.StatusCreated, exportResponse{Path: path, Records: written})
}
