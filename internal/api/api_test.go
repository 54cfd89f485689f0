package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/olx-analyzer/backend/internal/models"
	"github.com/olx-analyzer/backend/internal/session"
	"github.com/olx-analyzer/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

const testCaseXML = `<?xml version="1.0" encoding="UTF-8"?>
<ASPENOLXDB OLRVERSION="15.4" DATETIME="2024-03-01 10:00">
  <OBJCOUNT BUS="2" LINE="1"/>
  <SYSTEMPARAMS BASEMVA="100">
    <FILECOMMENTS>api test</FILECOMMENTS>
  </SYSTEMPARAMS>
  <OLXDBTABLE NAME="BUS" RECCOUNT="2">
    <OLXREC OBJTYPE="BUS" OLNETID="1" OBJGUID="{B1}">
      <OLNET>
        <OLNETFIELD NAME="BUSNAME1" VALUE="NEVADA"/>
        <OLNETFIELD NAME="BUSKV1" VALUE="132"/>
      </OLNET>
      <DATAFIELD VALUE="1" NAME="AREANO"/>
      <DATAFIELD VALUE="10" NAME="ZONENO"/>
      <DATAFIELD VALUE="101" NAME="BUSNO"/>
    </OLXREC>
    <OLXREC OBJTYPE="BUS" OLNETID="2" OBJGUID="{B2}">
      <OLNET>
        <OLNETFIELD NAME="BUSNAME1" VALUE="OHIO"/>
        <OLNETFIELD NAME="BUSKV1" VALUE="132"/>
      </OLNET>
      <DATAFIELD VALUE="2" NAME="AREANO"/>
      <DATAFIELD VALUE="20" NAME="ZONENO"/>
      <DATAFIELD VALUE="102" NAME="BUSNO"/>
    </OLXREC>
  </OLXDBTABLE>
  <OLXDBTABLE NAME="LINE" RECCOUNT="1">
    <OLXREC OBJTYPE="LINE" OLNETID="3" OBJGUID="{L1}">
      <OLNET>
        <OLNETFIELD NAME="BUSNAME1" VALUE="NEVADA"/>
        <OLNETFIELD NAME="BUSKV1" VALUE="132"/>
        <OLNETFIELD NAME="BUSNAME2" VALUE="OHIO"/>
        <OLNETFIELD NAME="BUSKV2" VALUE="132"/>
        <OLNETFIELD NAME="CKTID" VALUE="1"/>
      </OLNET>
      <DATAFIELD VALUE="0.01" NAME="R"/>
    </OLXREC>
  </OLXDBTABLE>
</ASPENOLXDB>
`

const testDiffXML = `<ASPENOLX>
  <OLXDIFF FILEA="a.olr" FILEB="b.olr" AREAS="1" COMPEXTENT="2">
    <CHANGESTAT BUS_ADD="1" GEN_DEL="1" LINE_MOD="1"/>
    <CHANGEREC ACTION="ADD" OBJTYPE="BUS" OBJGUID="{B3}">
      <OLNET OBJTYPE="BUS">
        <OLNETFIELD NAME="BUSNAME1" VALUE="UTAH"/>
        <OLNETFIELD NAME="BUSKV1" VALUE="132"/>
      </OLNET>
      <OBJSCOPE><SCOPEFIELD NAME="AREA" VALUE="1"/><SCOPEFIELD NAME="KV" VALUE="132"/></OBJSCOPE>
      <CHANGEFIELD LABEL="Area" NAME="AREANO" VALUE="1"/>
    </CHANGEREC>
    <CHANGEREC ACTION="DELETE" OBJTYPE="GEN" OBJGUID="{G1}">
      <OLNET OBJTYPE="GEN">
        <OLNETFIELD NAME="BUSNAME1" VALUE="OHIO"/>
        <OLNETFIELD NAME="BUSKV1" VALUE="132"/>
      </OLNET>
      <OBJSCOPE><SCOPEFIELD NAME="AREA" VALUE="2"/><SCOPEFIELD NAME="KV" VALUE="132"/></OBJSCOPE>
    </CHANGEREC>
    <CHANGEREC ACTION="MODIFY" OBJTYPE="LINE" OBJGUID="{L1}">
      <OLNET OBJTYPE="LINE">
        <OLNETFIELD NAME="BUSNAME1" VALUE="NEVADA"/>
        <OLNETFIELD NAME="BUSKV1" VALUE="132"/>
        <OLNETFIELD NAME="BUSNAME2" VALUE="OHIO"/>
        <OLNETFIELD NAME="BUSKV2" VALUE="132"/>
        <OLNETFIELD NAME="CKTID" VALUE="1"/>
      </OLNET>
      <OBJSCOPE><SCOPEFIELD NAME="AREA" VALUE="1"/><SCOPEFIELD NAME="KV" VALUE="132"/><SCOPEFIELD NAME="CKTID" VALUE="1"/></OBJSCOPE>
      <CHANGEFIELD LABEL="R" NAME="R" VALUEA="0.1" VALUEB="0.2"/>
    </CHANGEREC>
  </OLXDIFF>
</ASPENOLX>
`

// checkPaging covers the page and pageSize limits of a paged endpoint.
func checkPaging(t *testing.T, ts *testServer, url string, total int) {
	t.Helper()
	rec := ts.do(t, http.MethodGet, url+"?pageSize=1001", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(t, http.MethodGet, url+"?page=4611686018427387904&pageSize=4", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, url+"?page=2147483647&pageSize=1000", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Total int               `json:"total"`
		Items []json.RawMessage `json:"items"`
	}
	decode(t, rec, &page)
	assert.Equal(t, total, page.Total)
	assert.Empty(t, page.Items)
}

type testServer struct {
	e       *echo.Echo
	store   *testutil.MockStorage
	mgr     *session.Manager
	exports string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := testutil.NewMockStorage(t.TempDir())
	mgr := session.NewManager(session.Options{TempDir: t.TempDir()})
	t.Cleanup(mgr.Close)

	ts := &testServer{e: echo.New(), store: store, mgr: mgr, exports: t.TempDir()}
	SetupMiddleware(ts.e, nil)
	RegisterRoutes(ts.e, NewHandlers(&Dependencies{
		Store:        store,
		SessionMgr:   mgr,
		ExportDir:    ts.exports,
		AllowedTypes: allowedTypes,
		Version:      "test",
	}))
	return ts
}

func (ts *testServer) do(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, target, bytes.NewReader(data))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func waitSession(t *testing.T, mgr *session.Manager, id string) *models.DocumentSession {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sess, err := mgr.Wait(ctx, id)
	require.NoError(t, err)
	return sess
}

// load uploads data and returns the id of a finished session over it.
func (ts *testServer) load(t *testing.T, name, data string, successive bool) string {
	t.Helper()
	info := ts.store.AddFile("file-"+name, name, []byte(data))

	rec := ts.do(t, http.MethodPost, "/api/sessions", map[string]interface{}{
		"fileId":     info.ID,
		"successive": successive,
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var sess models.DocumentSession
	decode(t, rec, &sess)

	done := waitSession(t, ts.mgr, sess.ID)
	require.Equal(t, models.SessionStatusComplete, done.Status, done.Errors)
	return sess.ID
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	decode(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestSessions_Lifecycle(t *testing.T) {
	ts := newTestServer(t)
	id := ts.load(t, "net.olx", testCaseXML, false)

	rec := ts.do(t, http.MethodGet, "/api/sessions/"+id+"/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sess models.DocumentSession
	decode(t, rec, &sess)
	assert.Equal(t, models.KindCase, sess.Kind)
	assert.Equal(t, 3, sess.RecordCount)

	info, err := ts.store.Get("file-net.olx")
	require.NoError(t, err)
	assert.Equal(t, "loaded", info.Status)

	rec = ts.do(t, http.MethodGet, "/api/sessions", nil)
	var list []models.DocumentSession
	decode(t, rec, &list)
	assert.Len(t, list, 1)

	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodPost, "/api/sessions/"+id+"/keepalive", nil).Code)
	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, "/api/sessions/"+id, nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/sessions/"+id+"/status", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/api/sessions/"+id+"/keepalive", nil).Code)
}

func TestSessions_StartErrors(t *testing.T) {
	ts := newTestServer(t)
	ts.store.AddFile("other", "other.xml", []byte("<Foo/>"))

	tests := []struct {
		name     string
		body     map[string]interface{}
		status   int
		wantCode string
	}{
		{"missing file id", map[string]interface{}{}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown file", map[string]interface{}{"fileId": "nope"}, http.StatusNotFound, "NOT_FOUND"},
		{"unrecognized document", map[string]interface{}{"fileId": "other"}, http.StatusBadRequest, "BAD_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/sessions", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			var apiErr APIError
			decode(t, rec, &apiErr)
			assert.Equal(t, tt.wantCode, apiErr.Code)
		})
	}
}

func TestCase_Endpoints(t *testing.T) {
	ts := newTestServer(t)
	id := ts.load(t, "net.olx", testCaseXML, false)
	base := "/api/case/" + id

	t.Run("header", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, base+"/header", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var hdr struct {
			Version string      `json:"version"`
			Tables  []tableView `json:"tables"`
		}
		decode(t, rec, &hdr)
		assert.Equal(t, "15.4", hdr.Version)
		assert.Equal(t, []tableView{{Name: "BUS", Records: 2}, {Name: "LINE", Records: 1}}, hdr.Tables)
	})

	t.Run("records page", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, base+"/records/bus?page=2&pageSize=1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var page struct {
			Total int          `json:"total"`
			Items []recordView `json:"items"`
		}
		decode(t, rec, &page)
		assert.Equal(t, 2, page.Total)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "{B2}", page.Items[0].GUID)
		assert.Equal(t, "102", page.Items[0].Fields["BUSNO"])
	})

	t.Run("records paging limits", func(t *testing.T) {
		checkPaging(t, ts, base+"/records/bus", 2)
	})

	t.Run("records of unknown type", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, base+"/records/WIDGET", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("filter", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, base+"/filter", map[string]interface{}{
			"config":    map[string]string{"AREAS": "1", "COMPEXTENT": "2", "COMPTIES": "1"},
			"filterOut": true,
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp caseFilterResponse
		decode(t, rec, &resp)
		assert.Equal(t, []int{0}, resp.Tables["BUS"].Matched)
		assert.Equal(t, 2, resp.Tables["BUS"].Total)
		assert.Equal(t, []int{0}, resp.Tables["LINE"].Matched)
		require.Len(t, resp.Records["BUS"], 1)
		assert.Equal(t, "{B1}", resp.Records["BUS"][0].GUID)
		assert.NotEmpty(t, resp.Summary)
	})

	t.Run("bad filter config", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, base+"/filter", map[string]interface{}{
			"config": map[string]string{"KVRANGE": "high"},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("export", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, base+"/export", map[string]interface{}{
			"config": map[string]string{"AREAS": "2", "COMPEXTENT": "2", "COMPTIES": "0"},
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var resp exportResponse
		decode(t, rec, &resp)
		assert.Equal(t, 1, resp.Records)
		data, err := os.ReadFile(resp.Path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `OBJGUID="{B2}"`)
		assert.NotContains(t, string(data), `OBJGUID="{B1}"`)
	})

	t.Run("diff endpoint on a case session", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/diff/"+id+"/header", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestDiff_WholeEndpoints(t *testing.T) {
	ts := newTestServer(t)
	id := ts.load(t, "changes.adx", testDiffXML, false)
	base := "/api/diff/" + id

	t.Run("header", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, base+"/header", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var hdr diffHeaderResponse
		decode(t, rec, &hdr)
		assert.Equal(t, "a.olr", hdr.FileA)
		assert.False(t, hdr.Successive)
		assert.Equal(t, 3, hdr.Records)
		assert.Equal(t, "1", hdr.Comparison["AREAS"])
	})

	t.Run("stats", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, base+"/stats?type=bus&action=add", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var res struct {
			Count int `json:"count"`
		}
		decode(t, rec, &res)
		assert.Equal(t, 1, res.Count)

		rec = ts.do(t, http.MethodGet, base+"/stats?type=WIDGET", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "valid values")
	})

	t.Run("filter", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, base+"/filter", map[string]interface{}{
			"config":    map[string]string{"ACTIONS": "ADD"},
			"filterOut": true,
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp diffFilterResponse
		decode(t, rec, &resp)
		assert.Equal(t, 3, resp.Total)
		assert.Equal(t, []int{0}, resp.Matched)
		assert.Equal(t, map[string]int{"BUS_ADD": 1}, resp.Stats)
		require.Len(t, resp.Changes, 1)
		assert.Equal(t, "{B3}", resp.Changes[0].GUID)
	})

	t.Run("filter by header scope", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, base+"/filter?scope=header", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp diffFilterResponse
		decode(t, rec, &resp)
		assert.Equal(t, []int{0, 2}, resp.Matched)
	})

	t.Run("model", func(t *testing.T) {
		ref := ts.load(t, "net.olx", testCaseXML, false)
		rec := ts.do(t, http.MethodGet, base+"/model?ref="+ref, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var model map[string]map[string]interface{}
		decode(t, rec, &model)
		assert.Len(t, model["add"], 1)
		assert.Len(t, model["delete"], 1)

		rec = ts.do(t, http.MethodGet, base+"/model?ref=missing", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("changes", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, base+"/changes?search=ohio", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var page struct {
			Total int `json:"total"`
			Items []struct {
				ID   int    `json:"id"`
				GUID string `json:"guid"`
			} `json:"items"`
		}
		decode(t, rec, &page)
		assert.Equal(t, 2, page.Total)

		rec = ts.do(t, http.MethodGet, base+"/changes/2", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"guid":"{L1}"`)

		assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, base+"/changes/9", nil).Code)
		assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, base+"/changes/x", nil).Code)
	})

	t.Run("changes paging limits", func(t *testing.T) {
		checkPaging(t, ts, base+"/changes", 3)
	})

	t.Run("changes search is literal", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, base+"/changes?search=O_IO", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"total":0`)
	})

	t.Run("counts", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, base+"/counts", nil)
		var counts map[string]int
		decode(t, rec, &counts)
		assert.Equal(t, map[string]int{"BUS_ADD": 1, "GEN_DEL": 1, "LINE_MOD": 1}, counts)
	})

	t.Run("export", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, base+"/export", map[string]interface{}{
			"config": map[string]string{"ACTIONS": "DELETE"},
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var resp exportResponse
		decode(t, rec, &resp)
		assert.Equal(t, 1, resp.Records)
		data, err := os.ReadFile(resp.Path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `GEN_DEL="1"`)
		assert.NotContains(t, string(data), "{B3}")
	})

	t.Run("msgpack", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, base+"/counts?format=msgpack", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, mimeMsgpack, rec.Header().Get(echo.HeaderContentType))
		var counts map[string]int
		require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &counts))
		assert.Equal(t, 1, counts["GEN_DEL"])
	})
}

func TestDiff_SuccessiveEndpoints(t *testing.T) {
	ts := newTestServer(t)
	id := ts.load(t, "changes.adx", testDiffXML, true)
	base := "/api/diff/" + id

	rec := ts.do(t, http.MethodGet, base+"/header", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var hdr diffHeaderResponse
	decode(t, rec, &hdr)
	assert.True(t, hdr.Successive)
	assert.Equal(t, 3, hdr.Records)

	rec = ts.do(t, http.MethodGet, base+"/changes?action=modify", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Total int `json:"total"`
		Items []struct {
			GUID  string `json:"guid"`
			CktID string `json:"cktId"`
		} `json:"items"`
	}
	decode(t, rec, &page)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "{L1}", page.Items[0].GUID)

	checkPaging(t, ts, base+"/changes", 3)

	rec = ts.do(t, http.MethodGet, base+"/changes?search=O_IO", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":0`)

	rec = ts.do(t, http.MethodGet, base+"/stats?action=delete", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = ts.do(t, http.MethodGet, base+"/counts", nil)
	var counts map[string]int
	decode(t, rec, &counts)
	assert.Equal(t, 1, counts["BUS_ADD"])

	for _, path := range []string{"/filter", "/export"} {
		rec = ts.do(t, http.MethodPost, base+path, nil)
		assert.Equal(t, http.StatusConflict, rec.Code, path)
	}
}

func TestFiles_DeleteReleasesSessions(t *testing.T) {
	ts := newTestServer(t)
	id := ts.load(t, "net.olx", testCaseXML, false)

	rec := ts.do(t, http.MethodDelete, "/api/files/file-net.olx", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	_, ok := ts.mgr.GetSession(id)
	assert.False(t, ok)
	rec = ts.do(t, http.MethodGet, "/api/files/file-net.olx", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "NOT_FOUND"))
}
