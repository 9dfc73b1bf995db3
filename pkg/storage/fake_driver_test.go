package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
)

// fakeResponse: заранее заданный ответ на очередной запрос.
type fakeResponse struct {
	columns  []string
	data     [][]driver.Value
	affected int64
	err      error
}

type fakeCall struct {
	query string
	args  []driver.Value
}

// fakeScript отвечает на запросы по порядку и запоминает их.
type fakeScript struct {
	mu        sync.Mutex
	responses []fakeResponse
	calls     []fakeCall
}

func (s *fakeScript) next(query string, args []driver.NamedValue) (fakeResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vals := make([]driver.Value, len(args))
	for i, a := range args {
		vals[i] = a.Value
	}
	s.calls = append(s.calls, fakeCall{query: query, args: vals})
	if len(s.responses) == 0 {
		return fakeResponse{}, errors.New("unexpected query")
	}
	r := s.responses[0]
	s.responses = s.responses[1:]
	return r, r.err
}

var (
	fakeScriptsMu sync.Mutex
	fakeScripts   = map[string]*fakeScript{}
)

type fakeDriver struct{}

type fakeConn struct{ script *fakeScript }

type fakeRows struct {
	columns []string
	data    [][]driver.Value
	idx     int
}

type fakeResult struct{ affected int64 }

func (fakeDriver) Open(name string) (driver.Conn, error) {
	fakeScriptsMu.Lock()
	defer fakeScriptsMu.Unlock()
	s, ok := fakeScripts[name]
	if !ok {
		return nil, fmt.Errorf("unknown script %q", name)
	}
	return &fakeConn{script: s}, nil
}

func (c *fakeConn) Prepare(query string) (driver.Stmt, error) {
	return nil, errors.New("not implemented")
}
func (c *fakeConn) Close() error              { return nil }
func (c *fakeConn) Begin() (driver.Tx, error) { return nil, errors.New("not implemented") }

func (c *fakeConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	r, err := c.script.next(query, args)
	if err != nil {
		return nil, err
	}
	return &fakeRows{columns: r.columns, data: r.data}, nil
}

func (c *fakeConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	r, err := c.script.next(query, args)
	if err != nil {
		return nil, err
	}
	return fakeResult{affected: r.affected}, nil
}

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.affected, nil }

func (r *fakeRows) Columns() []string { return r.columns }
func (r *fakeRows) Close() error      { return nil }
func (r *fakeRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.data) {
		return io.EOF
	}
	copy(dest, r.data[r.idx])
	r.idx++
	return nil
}

func init() { sql.Register("storageFake", fakeDriver{}) }

// openFake открывает БД, которая отвечает заданными ответами по порядку.
func openFake(t *testing.T, responses ...fakeResponse) (*DB, *fakeScript) {
	t.Helper()
	script := &fakeScript{responses: responses}
	fakeScriptsMu.Lock()
	fakeScripts[t.Name()] = script
	fakeScriptsMu.Unlock()

	conn, err := sql.Open("storageFake", t.Name())
	if err != nil {
		t.Fatalf("не удалось открыть мок БД: %v", err)
	}
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = conn.Close()
		fakeScriptsMu.Lock()
		delete(fakeScripts, t.Name())
		fakeScriptsMu.Unlock()
	})
	return NewDB(conn), script
}
