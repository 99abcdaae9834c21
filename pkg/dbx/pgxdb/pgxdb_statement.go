package pgxdb

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/marcodd23/go-txsession/pkg/dbx"
	"github.com/pkg/errors"
)

//###################################
//#       Postgres STATEMENT        #
//###################################

// Statement - dbx.Statement over a Connection. Batches are sent as a single pgx.Batch.
type Statement struct {
	conn   *Connection
	sql    string
	native string
	opts   dbx.StatementOptions

	params  []any
	batched [][]any

	maxRows      int
	queryTimeout int
	closed       bool

	keys *keysResultSet
}

var _ dbx.Statement = (*Statement)(nil)

func newStatement(conn *Connection, sql, native string, opts dbx.StatementOptions) *Statement {
	return &Statement{conn: conn, sql: sql, native: native, opts: opts}
}

func (s *Statement) SQL() string {
	return s.sql
}

// NativeSQL - the SQL sent to the server.
func (s *Statement) NativeSQL() string {
	return s.native
}

func (s *Statement) SetParameter(position int, value any) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	if position < 1 {
		return errors.Errorf("invalid parameter position %d", position)
	}

	for len(s.params) < position {
		s.params = append(s.params, nil)
	}

	s.params[position-1] = value

	return nil
}

func (s *Statement) ClearParameters() {
	s.params = nil
}

func (s *Statement) args() []any {
	return append([]any(nil), s.params...)
}

// withTimeout bounds ctx by the query timeout. The returned cancel func is never nil.
func (s *Statement) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout > 0 {
		return context.WithTimeout(ctx, time.Duration(s.queryTimeout)*time.Second)
	}

	return ctx, func() {}
}

func (s *Statement) ExecuteQuery(ctx context.Context) (dbx.ResultSet, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	q, err := s.conn.executor(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)

	rows, err := q.Query(ctx, s.native, s.args()...)
	if err != nil {
		cancel()
		return nil, err
	}

	return &resultSet{stmt: s, rows: rows, maxRows: s.maxRows, cancel: cancel}, nil
}

// ExecuteUpdate - with generated keys requested the RETURNING rows are buffered for
// GeneratedKeys and counted as the affected rows.
func (s *Statement) ExecuteUpdate(ctx context.Context) (int64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	q, err := s.conn.executor(ctx)
	if err != nil {
		return 0, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if !s.opts.ReturnGeneratedKeys {
		tag, err := q.Exec(ctx, s.native, s.args()...)
		if err != nil {
			return 0, err
		}

		return tag.RowsAffected(), nil
	}

	rows, err := q.Query(ctx, s.native, s.args()...)
	if err != nil {
		return 0, err
	}

	keys, err := bufferKeys(rows, s.conn.typeMap())
	if err != nil {
		return 0, err
	}

	s.keys = keys

	return int64(len(keys.rows)), nil
}

func (s *Statement) GeneratedKeys() (dbx.ResultSet, error) {
	if !s.opts.ReturnGeneratedKeys {
		return nil, errors.New("statement was not prepared to return generated keys")
	}

	if s.keys == nil {
		return nil, errors.New("statement has not been executed")
	}

	keys := s.keys
	s.keys = nil
	keys.stmt = s

	return keys, nil
}

func (s *Statement) AddBatch() error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	s.batched = append(s.batched, s.args())

	return nil
}

// ExecuteBatch - row counts of the entries that ran before a failure are returned with the error.
func (s *Statement) ExecuteBatch(ctx context.Context) ([]int64, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	if len(s.batched) == 0 {
		return []int64{}, nil
	}

	q, err := s.conn.executor(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	pending := s.batched
	s.batched = nil

	batch := &pgx.Batch{}
	for _, args := range pending {
		batch.Queue(s.native, args...)
	}

	results := q.SendBatch(ctx, batch)

	counts := make([]int64, 0, len(pending))

	for range pending {
		var tag pgconn.CommandTag

		tag, err = results.Exec()
		if err != nil {
			break
		}

		counts = append(counts, tag.RowsAffected())
	}

	if closeErr := results.Close(); err == nil {
		err = closeErr
	}

	return counts, err
}

func (s *Statement) ClearBatch() error {
	s.batched = nil
	return nil
}

func (s *Statement) MaxRows() (int, error) {
	return s.maxRows, nil
}

func (s *Statement) SetMaxRows(maxRows int) error {
	if maxRows < 0 {
		return errors.Errorf("invalid max rows %d", maxRows)
	}

	s.maxRows = maxRows

	return nil
}

func (s *Statement) QueryTimeout() (int, error) {
	return s.queryTimeout, nil
}

func (s *Statement) SetQueryTimeout(seconds int) error {
	if seconds < 0 {
		return errors.Errorf("invalid query timeout %d", seconds)
	}

	s.queryTimeout = seconds

	return nil
}

// Cancel - sends a cancel request for whatever the connection is running.
func (s *Statement) Cancel(ctx context.Context) error {
	if s.closed || s.conn.IsClosed() {
		return nil
	}

	return s.conn.cancel(ctx)
}

func (s *Statement) IsClosed() bool {
	return s.closed
}

func (s *Statement) Close() error {
	s.closed = true
	s.params = nil
	s.batched = nil
	s.keys = nil

	return nil
}

func (s *Statement) checkOpen() error {
	if s.closed {
		return errors.New("statement is closed")
	}

	if s.conn.IsClosed() {
		return errors.New("connection is closed")
	}

	return nil
}
