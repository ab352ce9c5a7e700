// Package dbtest provides an in-memory db.Database for repository tests.
package dbtest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"codepractice/internal/common/db"
)

// Call is one recorded statement.
type Call struct {
	Query string
	Args  []interface{}
}

// Handler answers a statement. For Get and Select the returned value is
// assigned to the destination, so it must have the destination's element type.
type Handler func(query string, args []interface{}) (interface{}, error)

// FakeDB routes statements to handlers and records every call.
type FakeDB struct {
	mu    sync.Mutex
	calls []Call

	GetFunc    Handler
	SelectFunc Handler
	ExecFunc   func(query string, args []interface{}) (db.Result, error)
	PingErr    error
}

var errNotSupported = errors.New("dbtest: not supported")

// Calls returns the recorded statements.
func (f *FakeDB) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsMatching counts recorded statements containing substr.
func (f *FakeDB) CallsMatching(substr string) int {
	n := 0
	for _, c := range f.Calls() {
		if strings.Contains(c.Query, substr) {
			n++
		}
	}
	return n
}

func (f *FakeDB) record(query string, args []interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Query: query, Args: args})
}

func (f *FakeDB) Query(ctx context.Context, query string, args ...interface{}) (db.Rows, error) {
	f.record(query, args)
	return nil, errNotSupported
}

func (f *FakeDB) QueryRow(ctx context.Context, query string, args ...interface{}) db.Scanner {
	f.record(query, args)
	return errScanner{}
}

func (f *FakeDB) Exec(ctx context.Context, query string, args ...interface{}) (db.Result, error) {
	f.record(query, args)
	if f.ExecFunc == nil {
		return Result{RowsAffectedN: 1}, nil
	}
	return f.ExecFunc(query, args)
}

func (f *FakeDB) Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	f.record(query, args)
	return assign(f.GetFunc, dest, query, args)
}

func (f *FakeDB) Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	f.record(query, args)
	return assign(f.SelectFunc, dest, query, args)
}

func (f *FakeDB) Transaction(ctx context.Context, fn func(tx db.Transaction) error) error {
	return fn(fakeTx{f})
}

func (f *FakeDB) Ping(ctx context.Context) error { return f.PingErr }

func (f *FakeDB) Close() error { return nil }

func (f *FakeDB) DriverName() string { return "fake" }

func assign(h Handler, dest interface{}, query string, args []interface{}) error {
	if h == nil {
		return errNotSupported
	}
	v, err := h(query, args)
	if err != nil {
		return err
	}
	target := reflect.ValueOf(dest)
	if target.Kind() != reflect.Ptr || target.IsNil() {
		return fmt.Errorf("dbtest: destination must be a non-nil pointer, got %T", dest)
	}
	value := reflect.ValueOf(v)
	if !value.IsValid() {
		return nil
	}
	if !value.Type().AssignableTo(target.Elem().Type()) {
		return fmt.Errorf("dbtest: cannot assign %T to %s", v, target.Elem().Type())
	}
	target.Elem().Set(value)
	return nil
}

type fakeTx struct {
	*FakeDB
}

func (fakeTx) Commit() error   { return nil }
func (fakeTx) Rollback() error { return nil }

type errScanner struct{}

func (errScanner) Scan(dest ...interface{}) error { return errNotSupported }

// Result is a fixed db.Result.
type Result struct {
	LastInsertIDN int64
	RowsAffectedN int64
}

func (r Result) LastInsertId() (int64, error) { return r.LastInsertIDN, nil }
func (r Result) RowsAffected() (int64, error) { return r.RowsAffectedN, nil }
