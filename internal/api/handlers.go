// handlers.go - Shared request and response helpers
package api

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/olx-analyzer/backend/internal/diffstore"
	"github.com/olx-analyzer/backend/internal/filter"
	"github.com/vmihailenco/msgpack/v5"
)

const mimeMsgpack = "application/x-msgpack"

// respond writes v as msgpack when the client asks for it with
// ?format=msgpack or an Accept header, and as JSON otherwise.
func respond(c echo.Context, status int, v interface{}) error {
	if wantsMsgpack(c) {
		data, err := msgpack.Marshal(v)
		if err != nil {
			return NewInternalError("failed to encode response", err)
		}
		return c.Blob(status, mimeMsgpack, data)
	}
	return c.JSON(status, v)
}

func wantsMsgpack(c echo.Context) bool {
	if c.QueryParam("format") == "msgpack" {
		return true
	}
	return strings.Contains(c.Request().Header.Get(echo.HeaderAccept), mimeMsgpack)
}

func sessionParam(c echo.Context) (string, error) {
	id := c.Param("sessionId")
	if id == "" {
		return "", NewValidationError("sessionId")
	}
	return id, nil
}

// intQuery parses an optional positive integer query parameter.
func intQuery(c echo.Context, name string, def int) (int, error) {
	s := c.QueryParam(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, NewBadRequestError("invalid "+name, err)
	}
	return n, nil
}

// pageQuery reads page and pageSize, rejecting pages larger than
// diffstore.MaxPageSize.
func pageQuery(c echo.Context) (int, int, error) {
	page, err := intQuery(c, "page", 1)
	if err != nil {
		return 0, 0, err
	}
	if page > math.MaxInt32 {
		return 0, 0, NewBadRequestError("invalid page", nil)
	}
	pageSize, err := intQuery(c, "pageSize", 100)
	if err != nil {
		return 0, 0, err
	}
	if pageSize > diffstore.MaxPageSize {
		return 0, 0, NewBadRequestError(fmt.Sprintf("pageSize must not exceed %d", diffstore.MaxPageSize), nil)
	}
	return page, pageSize, nil
}

// filterRequest selects records of a loaded document. Config takes
// precedence over ConfigPath; with neither the server default applies.
type filterRequest struct {
	Config     map[string]string `json:"config"`
	ConfigPath string            `json:"configPath"`
	// FilterOut drops non-matching records from the returned data.
	FilterOut bool `json:"filterOut"`
}

// filterSource resolves the filter options of a request.
type filterSource struct {
	defaultPath string
}

func (f *filterSource) options(req *filterRequest) (*filter.Options, error) {
	switch {
	case req != nil && len(req.Config) > 0:
		return filter.FromConfig(req.Config)
	case req != nil && req.ConfigPath != "":
		return filter.LoadConfig(req.ConfigPath)
	case f != nil && f.defaultPath != "":
		return filter.LoadConfig(f.defaultPath)
	}
	return filter.Default(), nil
}

// bindFilter reads an optional filterRequest body.
func bindFilter(c echo.Context) (*filterRequest, error) {
	req := &filterRequest{}
	if c.Request().ContentLength == 0 {
		return req, nil
	}
	if err := c.Bind(req); err != nil {
		return nil, NewBadRequestError("invalid request body", err)
	}
	return req, nil
}

// exportTarget opens a new file in dir named after the session.
func exportTarget(dir, prefix, sessionID, ext string) (*os.File, string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, "", err
	}
	name := prefix + "_" + shortID(sessionID) + "_" + time.Now().Format("20060102_150405") + ext
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return nil, "", err
	}
	return f, path, nil
}

type exportResponse struct {
	Path    string `json:"path"`
	Records int    `json:"records"`
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
