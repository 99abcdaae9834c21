//nolint:all
package fakedb

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/marcodd23/go-txsession/pkg/dbx"
	"github.com/pkg/errors"
)

// Execution - one statement execution recorded by a Connection.
type Execution struct {
	SQL    string
	Params []any
	Batch  bool
}

// Provider - recording dbx.ConnectionProvider.
// Every ObtainConnection returns a new Connection unless NewConnection is set.
type Provider struct {
	mu sync.Mutex

	Obtained   int
	Released   int
	ObtainErr  error
	ReleaseErr error

	// NewConnection overrides how connections are created.
	NewConnection func() *Connection

	connections []*Connection
	releasedSet []dbx.Connection
}

// NewProvider - Provider constructor.
func NewProvider() *Provider {
	return &Provider{}
}

func (p *Provider) ObtainConnection(ctx context.Context) (dbx.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ObtainErr != nil {
		return nil, p.ObtainErr
	}

	var conn *Connection
	if p.NewConnection != nil {
		conn = p.NewConnection()
	} else {
		conn = NewConnection()
	}

	p.Obtained++
	p.connections = append(p.connections, conn)

	return conn, nil
}

func (p *Provider) ReleaseConnection(ctx context.Context, conn dbx.Connection) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ReleaseErr != nil {
		return p.ReleaseErr
	}

	p.Released++
	p.releasedSet = append(p.releasedSet, conn)

	return nil
}

// Connections - every connection handed out so far.
func (p *Provider) Connections() []*Connection {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]*Connection(nil), p.connections...)
}

// Last - the most recently obtained connection, or nil.
func (p *Provider) Last() *Connection {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.connections) == 0 {
		return nil
	}

	return p.connections[len(p.connections)-1]
}

// Connection - recording dbx.Connection.
type Connection struct {
	autoCommit bool
	closed     bool

	AutoCommitErr    error
	SetAutoCommitErr error
	CommitErr        error
	RollbackErr      error
	PrepareErr       error

	SetAutoCommitCalls []bool
	Commits            int
	Rollbacks          int
	CloseCalls         int

	// Rows returned by ExecuteQuery, keyed by SQL.
	Rows    map[string][][]any
	Columns map[string][]string
	// UpdateCounts returned by ExecuteUpdate and ExecuteBatch, keyed by SQL. Default 1.
	UpdateCounts map[string]int64
	// NextGeneratedKey is returned (then incremented) by GeneratedKeys.
	NextGeneratedKey int64

	// StatementHook customizes every statement created by Prepare.
	StatementHook func(stmt *Statement)

	Statements []*Statement
	Executions []Execution
}

// NewConnection - Connection in auto-commit mode.
func NewConnection() *Connection {
	return &Connection{
		autoCommit:       true,
		Rows:             map[string][][]any{},
		Columns:          map[string][]string{},
		UpdateCounts:     map[string]int64{},
		NextGeneratedKey: 1,
	}
}

func (c *Connection) AutoCommit() (bool, error) {
	if c.AutoCommitErr != nil {
		return false, c.AutoCommitErr
	}

	return c.autoCommit, nil
}

func (c *Connection) SetAutoCommit(ctx context.Context, autoCommit bool) error {
	c.SetAutoCommitCalls = append(c.SetAutoCommitCalls, autoCommit)
	if c.SetAutoCommitErr != nil {
		return c.SetAutoCommitErr
	}

	c.autoCommit = autoCommit

	return nil
}

// SetInitialAutoCommit changes the auto-commit flag without recording a call.
func (c *Connection) SetInitialAutoCommit(autoCommit bool) {
	c.autoCommit = autoCommit
}

func (c *Connection) Commit(ctx context.Context) error {
	c.Commits++

	return c.CommitErr
}

func (c *Connection) Rollback(ctx context.Context) error {
	c.Rollbacks++

	return c.RollbackErr
}

func (c *Connection) Prepare(ctx context.Context, sql string, opts dbx.StatementOptions) (dbx.Statement, error) {
	if c.closed {
		return nil, errors.New("connection is closed")
	}

	if c.PrepareErr != nil {
		return nil, c.PrepareErr
	}

	stmt := &Statement{conn: c, sql: sql, Options: opts, params: map[int]any{}}
	if c.StatementHook != nil {
		c.StatementHook(stmt)
	}

	c.Statements = append(c.Statements, stmt)

	return stmt, nil
}

func (c *Connection) IsClosed() bool {
	return c.closed
}

func (c *Connection) Close(ctx context.Context) error {
	c.CloseCalls++
	c.closed = true

	return nil
}

// ExecutionsOf - recorded executions of sql.
func (c *Connection) ExecutionsOf(sql string) []Execution {
	var out []Execution
	for _, e := range c.Executions {
		if e.SQL == sql {
			out = append(out, e)
		}
	}

	return out
}

func (c *Connection) updateCount(sql string) int64 {
	if n, ok := c.UpdateCounts[sql]; ok {
		return n
	}

	return 1
}

// Statement - recording dbx.Statement.
type Statement struct {
	conn    *Connection
	sql     string
	Options dbx.StatementOptions

	params  map[int]any
	batched [][]any

	maxRows      int
	queryTimeout int
	closed       bool

	// MaxRowsHistory - every value passed to SetMaxRows, in order.
	MaxRowsHistory []int

	AddBatchCalls      int
	ExecuteBatchCalls  int
	ClearBatchCalls    int
	ExecuteUpdateCalls int
	ExecuteQueryCalls  int
	CancelCalls        int
	CloseCalls         int

	SetMaxRowsErr      error
	SetQueryTimeoutErr error
	ExecuteErr         error
	ExecuteBatchErr    error
	CancelErr          error
	CloseErr           error

	// BatchRowCounts overrides the row counts reported by ExecuteBatch.
	BatchRowCounts func(batchLen int) []int64

	generatedKeys []int64
}

func (s *Statement) SQL() string {
	return s.sql
}

func (s *Statement) SetParameter(position int, value any) error {
	if position < 1 {
		return fmt.Errorf("invalid parameter position %d", position)
	}

	s.params[position] = value

	return nil
}

func (s *Statement) ClearParameters() {
	s.params = map[int]any{}
}

// Param - current value bound at position.
func (s *Statement) Param(position int) any {
	return s.params[position]
}

func (s *Statement) snapshot() []any {
	highest := 0
	for pos := range s.params {
		if pos > highest {
			highest = pos
		}
	}

	out := make([]any, highest)
	for pos, v := range s.params {
		out[pos-1] = v
	}

	return out
}

func (s *Statement) ExecuteQuery(ctx context.Context) (dbx.ResultSet, error) {
	s.ExecuteQueryCalls++
	if s.closed {
		return nil, errors.New("statement is closed")
	}

	if s.ExecuteErr != nil {
		return nil, s.ExecuteErr
	}

	s.conn.Executions = append(s.conn.Executions, Execution{SQL: s.sql, Params: s.snapshot()})

	rows := s.conn.Rows[s.sql]
	if s.maxRows > 0 && len(rows) > s.maxRows {
		rows = rows[:s.maxRows]
	}

	return &ResultSet{stmt: s, columns: s.conn.Columns[s.sql], rows: rows, pos: -1}, nil
}

func (s *Statement) ExecuteUpdate(ctx context.Context) (int64, error) {
	s.ExecuteUpdateCalls++
	if s.closed {
		return 0, errors.New("statement is closed")
	}

	if s.ExecuteErr != nil {
		return 0, s.ExecuteErr
	}

	s.conn.Executions = append(s.conn.Executions, Execution{SQL: s.sql, Params: s.snapshot()})

	if s.Options.ReturnGeneratedKeys {
		s.generatedKeys = append(s.generatedKeys[:0], s.conn.NextGeneratedKey)
		s.conn.NextGeneratedKey++
	}

	return s.conn.updateCount(s.sql), nil
}

func (s *Statement) GeneratedKeys() (dbx.ResultSet, error) {
	if !s.Options.ReturnGeneratedKeys {
		return nil, errors.New("statement was not prepared to return generated keys")
	}

	columns := s.Options.GeneratedKeyColumns
	if len(columns) == 0 {
		columns = []string{"id"}
	}

	rows := make([][]any, 0, len(s.generatedKeys))
	for _, k := range s.generatedKeys {
		rows = append(rows, []any{k})
	}

	return &ResultSet{stmt: s, columns: columns, rows: rows, pos: -1}, nil
}

func (s *Statement) AddBatch() error {
	s.AddBatchCalls++
	s.batched = append(s.batched, s.snapshot())

	return nil
}

// PendingBatch - number of parameter sets waiting in the driver-level batch.
func (s *Statement) PendingBatch() int {
	return len(s.batched)
}

func (s *Statement) ExecuteBatch(ctx context.Context) ([]int64, error) {
	s.ExecuteBatchCalls++
	if s.ExecuteBatchErr != nil {
		return nil, s.ExecuteBatchErr
	}

	if s.BatchRowCounts != nil {
		counts := s.BatchRowCounts(len(s.batched))
		s.recordBatch()

		return counts, nil
	}

	counts := make([]int64, len(s.batched))
	for i := range s.batched {
		counts[i] = s.conn.updateCount(s.sql)
	}

	s.recordBatch()

	return counts, nil
}

func (s *Statement) recordBatch() {
	for _, params := range s.batched {
		s.conn.Executions = append(s.conn.Executions, Execution{SQL: s.sql, Params: params, Batch: true})
	}

	s.batched = nil
}

func (s *Statement) ClearBatch() error {
	s.ClearBatchCalls++
	s.batched = nil

	return nil
}

func (s *Statement) MaxRows() (int, error) {
	return s.maxRows, nil
}

func (s *Statement) SetMaxRows(maxRows int) error {
	if s.SetMaxRowsErr != nil {
		return s.SetMaxRowsErr
	}

	s.maxRows = maxRows
	s.MaxRowsHistory = append(s.MaxRowsHistory, maxRows)

	return nil
}

func (s *Statement) QueryTimeout() (int, error) {
	return s.queryTimeout, nil
}

func (s *Statement) SetQueryTimeout(seconds int) error {
	if s.SetQueryTimeoutErr != nil {
		return s.SetQueryTimeoutErr
	}

	s.queryTimeout = seconds

	return nil
}

func (s *Statement) Cancel(ctx context.Context) error {
	s.CancelCalls++

	return s.CancelErr
}

func (s *Statement) IsClosed() bool {
	return s.closed
}

func (s *Statement) Close() error {
	s.CloseCalls++
	if s.CloseErr != nil {
		return s.CloseErr
	}

	s.closed = true

	return nil
}

// ResultSet - in-memory dbx.ResultSet.
type ResultSet struct {
	stmt    dbx.Statement
	columns []string
	rows    [][]any
	pos     int
	closed  bool

	CloseCalls int
	CloseErr   error
}

// NewResultSet - ResultSet over rows, owned by stmt (which may be nil).
func NewResultSet(stmt dbx.Statement, columns []string, rows [][]any) *ResultSet {
	return &ResultSet{stmt: stmt, columns: columns, rows: rows, pos: -1}
}

func (r *ResultSet) Next() bool {
	if r.closed || r.pos+1 >= len(r.rows) {
		return false
	}

	r.pos++

	return true
}

func (r *ResultSet) Scan(dest ...any) error {
	if r.pos < 0 || r.pos >= len(r.rows) {
		return errors.New("no current row")
	}

	row := r.rows[r.pos]
	if len(dest) != len(row) {
		return fmt.Errorf("expected %d destinations, got %d", len(row), len(dest))
	}

	for i, d := range dest {
		dv := reflect.ValueOf(d)
		if dv.Kind() != reflect.Ptr || dv.IsNil() {
			return fmt.Errorf("destination %d is not a pointer", i)
		}

		sv := reflect.ValueOf(row[i])
		if !sv.IsValid() {
			dv.Elem().Set(reflect.Zero(dv.Elem().Type()))
			continue
		}

		if !sv.Type().ConvertibleTo(dv.Elem().Type()) {
			return fmt.Errorf("cannot convert %T into %s", row[i], dv.Elem().Type())
		}

		dv.Elem().Set(sv.Convert(dv.Elem().Type()))
	}

	return nil
}

func (r *ResultSet) Columns() []string {
	return r.columns
}

func (r *ResultSet) Err() error {
	return nil
}

func (r *ResultSet) Statement() dbx.Statement {
	return r.stmt
}

func (r *ResultSet) IsClosed() bool {
	return r.closed
}

func (r *ResultSet) Close() error {
	r.CloseCalls++
	if r.CloseErr != nil {
		return r.CloseErr
	}

	r.closed = true

	return nil
}
