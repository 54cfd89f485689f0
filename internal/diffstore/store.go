// Package diffstore keeps streamed change records in a temporary DuckDB file
// so huge diffs can be browsed without holding them in memory.
package diffstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/marcboeker/go-duckdb"
	"github.com/olx-analyzer/backend/internal/models"
	"github.com/olx-analyzer/backend/internal/olx"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultBatchSize is how many rows are buffered before an Appender flush.
const DefaultBatchSize = 20000

// MaxPageSize caps the rows Query returns at once.
const MaxPageSize = 1000

// FieldChange is one changed field as stored in a row payload.
type FieldChange struct {
	Name   string `json:"name" msgpack:"n"`
	Label  string `json:"label,omitempty" msgpack:"l,omitempty"`
	Before string `json:"before,omitempty" msgpack:"b,omitempty"`
	After  string `json:"after,omitempty" msgpack:"a,omitempty"`
}

// Change is one stored change record.
type Change struct {
	ID      int           `json:"id" msgpack:"id"`
	Index   int           `json:"index" msgpack:"index"`
	Action  models.Action `json:"action" msgpack:"action"`
	ObjType string        `json:"objType" msgpack:"objType"`
	GUID    string        `json:"guid" msgpack:"guid"`
	NetID   string        `json:"netId" msgpack:"netId"`
	Buses   string        `json:"buses" msgpack:"buses"`
	Areas   string        `json:"areas,omitempty" msgpack:"areas,omitempty"`
	Zones   string        `json:"zones,omitempty" msgpack:"zones,omitempty"`
	CktID   string        `json:"cktId,omitempty" msgpack:"cktId,omitempty"`
	Fields  []FieldChange `json:"fields,omitempty" msgpack:"fields,omitempty"`
}

type row struct {
	index   int
	action  string
	objType string
	guid    string
	netID   string
	buses   string
	areas   string
	zones   string
	cktID   string
	payload []byte
}

// Store is a DuckDB-backed table of change records. Writes come from a
// single streaming goroutine; queries may run concurrently afterwards.
type Store struct {
	db        *sql.DB
	dbPath    string
	keep      bool
	count     int
	batchSize int
	batch     []row

	countCache   map[string]int
	countCacheMu sync.RWMutex

	// querySem limits concurrent queries.
	querySem chan struct{}
}

var _ olx.RecordSink = (*Store)(nil)

// New creates a store file in tempDir named after the session.
func New(tempDir, sessionID string) (*Store, error) {
	return NewAtPath(filepath.Join(tempDir, fmt.Sprintf("changes_%s.duckdb", sessionID)))
}

func pragmas(strict bool) func(driver.ExecerContext) error {
	return func(execer driver.ExecerContext) error {
		for _, p := range []string{
			"PRAGMA memory_limit='1GB'",
			"PRAGMA threads=4",
			"PRAGMA enable_progress_bar=false",
		} {
			if _, err := execer.ExecContext(context.Background(), p, nil); err != nil {
				if strict {
					return err
				}
				glog.Warningf("[DiffStore] pragma %q: %v", p, err)
			}
		}
		return nil
	}
}

// NewAtPath creates an empty store at dbPath.
func NewAtPath(dbPath string) (*Store, error) {
	glog.V(1).Infof("[DiffStore] creating database at %s", dbPath)
	connector, err := duckdb.NewConnector(dbPath, pragmas(true))
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}
	db := sql.OpenDB(connector)

	_, err = db.Exec(`
		CREATE TABLE changes (
			id       INTEGER PRIMARY KEY,
			idx      INTEGER NOT NULL,
			action   VARCHAR NOT NULL,
			obj_type VARCHAR NOT NULL,
			guid     VARCHAR,
			net_id   VARCHAR,
			buses    VARCHAR,
			areas    VARCHAR,
			zones    VARCHAR,
			ckt_id   VARCHAR,
			payload  BLOB
		)
	`)
	if err != nil {
		db.Close()
		os.Remove(dbPath)
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &Store{
		db:         db,
		dbPath:     dbPath,
		batchSize:  DefaultBatchSize,
		batch:      make([]row, 0, 1024),
		countCache: make(map[string]int),
		querySem:   make(chan struct{}, 3),
	}, nil
}

// OpenReadOnly opens a finalized store file.
func OpenReadOnly(dbPath string) (*Store, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, err
	}
	connector, err := duckdb.NewConnector(dbPath+"?access_mode=read_only", pragmas(false))
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB connector: %w", err)
	}
	db := sql.OpenDB(connector)

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM changes").Scan(&n); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to count changes: %w", err)
	}
	return &Store{
		db:         db,
		count:      n,
		batchSize:  DefaultBatchSize,
		countCache: make(map[string]int),
		querySem:   make(chan struct{}, 3),
	}, nil
}

// WriteBatch buffers a run of matching records, flushing through the
// Appender when the buffer is full.
func (s *Store) WriteBatch(b *olx.Batch) error {
	for i, rec := range b.Records {
		r, err := toRow(b.Indexes[i], rec)
		if err != nil {
			return err
		}
		s.batch = append(s.batch, r)
		s.count++
		if len(s.batch) >= s.batchSize {
			if err := s.flush(); err != nil {
				return err
			}
		}
	}
	return nil
}

// NewChange flattens one diff record. ID is left zero; the store assigns it.
func NewChange(index int, rec *olx.Record) Change {
	ch := Change{
		Index:   index,
		Action:  rec.Action(),
		ObjType: rec.ObjType(),
		GUID:    rec.GUID(),
		NetID:   rec.NetID(),
		CktID:   rec.Conn(olx.FieldCktID),
	}
	var buses []string
	for _, t := range rec.Terminals() {
		buses = append(buses, fmt.Sprintf("%s %g", t.Name, t.KV))
	}
	ch.Buses = strings.Join(buses, ";")

	var areas, zones []string
	for _, f := range rec.ScopeFields() {
		switch f.Name {
		case "AREA":
			areas = append(areas, f.Value)
		case "ZONE":
			zones = append(zones, f.Value)
		}
	}
	ch.Areas = strings.Join(areas, ",")
	ch.Zones = strings.Join(zones, ",")

	for _, cf := range rec.ChangeFields() {
		fc := FieldChange{Name: cf.Name, Label: cf.Label}
		if cf.HasBefore {
			fc.Before = cf.Before.String()
		}
		if cf.HasAfter {
			fc.After = cf.After.String()
		}
		ch.Fields = append(ch.Fields, fc)
	}
	return ch
}

func toRow(index int, rec *olx.Record) (row, error) {
	ch := NewChange(index, rec)
	r := row{
		index:   index,
		action:  string(ch.Action),
		objType: ch.ObjType,
		guid:    ch.GUID,
		netID:   ch.NetID,
		buses:   ch.Buses,
		areas:   ch.Areas,
		zones:   ch.Zones,
		cktID:   ch.CktID,
	}
	if len(ch.Fields) > 0 {
		payload, err := msgpack.Marshal(ch.Fields)
		if err != nil {
			return row{}, fmt.Errorf("encoding fields of %s: %w", r.guid, err)
		}
		r.payload = payload
	}
	return r, nil
}

// flush writes the buffered rows using the native Appender API.
func (s *Store) flush() error {
	if len(s.batch) == 0 {
		return nil
	}
	start := time.Now()

	conn, err := s.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	err = conn.Raw(func(driverConn interface{}) error {
		dConn, ok := driverConn.(*duckdb.Conn)
		if !ok {
			return errors.New("failed to cast to duckdb.Conn")
		}
		appender, err := duckdb.NewAppenderFromConn(dConn, "", "changes")
		if err != nil {
			return fmt.Errorf("failed to create appender: %w", err)
		}
		defer appender.Close()

		baseID := s.count - len(s.batch)
		for i, r := range s.batch {
			var payload interface{}
			if r.payload != nil {
				payload = r.payload
			}
			if err := appender.AppendRow(
				int32(baseID+i), int32(r.index), r.action, r.objType,
				r.guid, r.netID, r.buses, r.areas, r.zones, r.cktID, payload,
			); err != nil {
				return fmt.Errorf("failed to append row %d: %w", i, err)
			}
		}
		return appender.Flush()
	})
	if err != nil {
		return fmt.Errorf("appender error: %w", err)
	}

	glog.V(2).Infof("[DiffStore] flushed %d rows in %v", len(s.batch), time.Since(start))
	s.batch = s.batch[:0]
	s.ClearCountCache()
	return nil
}

// Finalize flushes remaining rows and builds the lookup indexes.
func (s *Store) Finalize() error {
	if err := s.flush(); err != nil {
		return err
	}
	start := time.Now()
	if _, err := s.db.Exec("CREATE INDEX idx_type ON changes(obj_type, action)"); err != nil {
		return fmt.Errorf("idx_type creation failed: %w", err)
	}
	if _, err := s.db.Exec("CREATE INDEX idx_guid ON changes(guid)"); err != nil {
		glog.Warningf("[DiffStore] idx_guid creation failed: %v", err)
	}
	glog.V(1).Infof("[DiffStore] finalized %d changes in %v", s.count, time.Since(start))
	return nil
}

// Len is the number of records written.
func (s *Store) Len() int {
	return s.count
}

// Path is the database file.
func (s *Store) Path() string {
	return s.dbPath
}

// QueryParams filters Query results. Empty fields do not filter.
type QueryParams struct {
	Action  models.Action
	ObjType string
	// Search matches GUID, bus names or circuit ID case-insensitively.
	Search string
}

func (p QueryParams) where() (string, []interface{}) {
	var clauses []string
	var args []interface{}
	if p.Action != "" {
		clauses = append(clauses, "action = ?")
		args = append(args, string(p.Action))
	}
	if p.ObjType != "" {
		clauses = append(clauses, "obj_type = ?")
		args = append(args, p.ObjType)
	}
	if p.Search != "" {
		pattern := "%" + likeEscaper.Replace(p.Search) + "%"
		clauses = append(clauses, `(guid ILIKE ? ESCAPE '\' OR buses ILIKE ? ESCAPE '\' OR ckt_id ILIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern, pattern)
	}
	return strings.Join(clauses, " AND "), args
}

// likeEscaper makes % and _ in a search term match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// Matches applies the params to a change held in memory, the same way the
// WHERE clause applies them to stored rows.
func (p QueryParams) Matches(ch Change) bool {
	if p.Action != "" && ch.Action != p.Action {
		return false
	}
	if p.ObjType != "" && ch.ObjType != p.ObjType {
		return false
	}
	if p.Search != "" {
		q := strings.ToLower(p.Search)
		return strings.Contains(strings.ToLower(ch.GUID), q) ||
			strings.Contains(strings.ToLower(ch.Buses), q) ||
			strings.Contains(strings.ToLower(ch.CktID), q)
	}
	return true
}

func (s *Store) acquire(ctx context.Context) (func(), error) {
	select {
	case s.querySem <- struct{}{}:
		return func() { <-s.querySem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Query returns one page of changes in file order and the total match count.
func (s *Store) Query(ctx context.Context, params QueryParams, page, pageSize int) ([]Change, int, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer release()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	pageSize = min(pageSize, MaxPageSize)
	where, args := params.where()

	cacheKey := where + fmt.Sprint(args...)
	s.countCacheMu.RLock()
	total, found := s.countCache[cacheKey]
	s.countCacheMu.RUnlock()
	if !found {
		q := "SELECT COUNT(*) FROM changes"
		if where != "" {
			q += " WHERE " + where
		}
		if err := s.db.QueryRowContext(ctx, q, args...).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("count query failed: %w", err)
		}
		s.countCacheMu.Lock()
		s.countCache[cacheKey] = total
		s.countCacheMu.Unlock()
	}
	if total == 0 || page-1 > total/pageSize {
		return []Change{}, total, nil
	}

	q := "SELECT id, idx, action, obj_type, guid, net_id, buses, areas, zones, ckt_id, payload FROM changes"
	if where != "" {
		q += " WHERE " + where
	}
	q += fmt.Sprintf(" ORDER BY id LIMIT %d OFFSET %d", pageSize, (page-1)*pageSize)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	out := make([]Change, 0, min(pageSize, total))
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// Get returns one change by id.
func (s *Store) Get(ctx context.Context, id int) (Change, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, idx, action, obj_type, guid, net_id, buses, areas, zones, ckt_id, payload FROM changes WHERE id = ?", id)
	if err != nil {
		return Change{}, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Change{}, err
		}
		return Change{}, sql.ErrNoRows
	}
	return scanChange(rows)
}

// Counts returns the stored record count per CHANGESTAT key, such as BUS_ADD.
func (s *Store) Counts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT obj_type, action, COUNT(*) FROM changes GROUP BY obj_type, action")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var objType, action string
		var n int
		if err := rows.Scan(&objType, &action, &n); err != nil {
			return nil, err
		}
		out[olx.StatKey(objType, models.Action(action))] = n
	}
	return out, rows.Err()
}

// ClearCountCache drops cached totals.
func (s *Store) ClearCountCache() {
	s.countCacheMu.Lock()
	s.countCache = make(map[string]int)
	s.countCacheMu.Unlock()
}

// Keep leaves the database file in place on Close.
func (s *Store) Keep() {
	s.keep = true
}

// Close closes the database and removes a store file this process created,
// unless Keep was called.
func (s *Store) Close() error {
	var err error
	if s.db != nil {
		err = s.db.Close()
	}
	if s.dbPath != "" && !s.keep {
		os.Remove(s.dbPath)
	}
	return err
}

func scanChange(rows *sql.Rows) (Change, error) {
	var c Change
	var action string
	var guid, netID, buses, areas, zones, ckt sql.NullString
	var payload []byte
	if err := rows.Scan(&c.ID, &c.Index, &action, &c.ObjType, &guid, &netID, &buses, &areas, &zones, &ckt, &payload); err != nil {
		return c, err
	}
	c.Action = models.Action(action)
	c.GUID, c.NetID, c.Buses = guid.String, netID.String, buses.String
	c.Areas, c.Zones, c.CktID = areas.String, zones.String, ckt.String
	if len(payload) > 0 {
		if err := msgpack.Unmarshal(payload, &c.Fields); err != nil {
			return c, fmt.Errorf("decoding fields of change %d: %w", c.ID, err)
		}
	}
	return c, nil
}
