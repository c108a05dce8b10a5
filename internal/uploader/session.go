package uploader

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Session executes one statement. Implementations must be safe for
// concurrent use; *pgxpool.Pool and *SerialSession are.
type Session interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Preparer is implemented by sessions that can prepare a named statement.
// When available the statement is prepared once and executed by name.
type Preparer interface {
	Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error)
}

// TimeoutExecer is implemented by sessions that queue callers for a shared
// connection. The timeout starts once the caller holds the connection, so
// time spent waiting behind other rows does not count against it.
type TimeoutExecer interface {
	ExecTimeout(ctx context.Context, timeout time.Duration, sql string, args ...any) (pgconn.CommandTag, error)
}

// Conn is the subset of *pgx.Conn a SerialSession uses.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error)
}

// SerialSession shares one connection between many workers. A pgx.Conn
// supports a single in-flight command, so every call holds the session slot;
// rows returned by Query keep it until they are closed. Waiting for the slot
// gives up when the caller's context is done.
type SerialSession struct {
	slot chan struct{}
	conn Conn
}

var (
	_ Session       = (*SerialSession)(nil)
	_ Preparer      = (*SerialSession)(nil)
	_ TimeoutExecer = (*SerialSession)(nil)
	_ Conn          = (*pgx.Conn)(nil)
	_ Session       = (*pgxpool.Pool)(nil)
)

// NewSerialSession wraps conn, usually a *pgx.Conn.
func NewSerialSession(conn Conn) *SerialSession {
	return &SerialSession{slot: make(chan struct{}, 1), conn: conn}
}

func (s *SerialSession) acquire(ctx context.Context) error {
	select {
	case s.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SerialSession) release() { <-s.slot }

func (s *SerialSession) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return s.ExecTimeout(ctx, 0, sql, args...)
}

// ExecTimeout waits for the connection, then runs sql with timeout applied
// to the execution alone. A zero timeout means none.
func (s *SerialSession) ExecTimeout(ctx context.Context, timeout time.Duration, sql string, args ...any) (pgconn.CommandTag, error) {
	if err := s.acquire(ctx); err != nil {
		return pgconn.CommandTag{}, err
	}
	defer s.release()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.conn.Exec(ctx, sql, args...)
}

func (s *SerialSession) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()
	return s.conn.Prepare(ctx, name, sql)
}

// Query holds the session slot until the returned rows are closed.
func (s *SerialSession) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		s.release()
		return nil, err
	}
	return &lockedRows{Rows: rows, unlock: s.release}, nil
}

type lockedRows struct {
	pgx.Rows
	once   sync.Once
	unlock func()
}

func (r *lockedRows) Close() {
	r.Rows.Close()
	r.once.Do(r.unlock)
}
