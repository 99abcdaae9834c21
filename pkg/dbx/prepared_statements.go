package dbx

// PreparedStatement represents a named server-side prepared statement.
//
// Connection providers prepare them on every new physical connection. A session statement whose
// SQL equals Name executes the prepared query instead of parsing Query again.
//
// Fields:
//   - Name: A unique name identifying the prepared statement.
//   - Query: The SQL query string associated with the prepared statement, in the driver's native
//     placeholder syntax.
type PreparedStatement struct {
	Name  string
	Query string
}

// NewPreparedStatement creates a new prepared statement.
func NewPreparedStatement(name, query string) PreparedStatement {
	return PreparedStatement{Name: name, Query: query}
}

// GetName returns the name of the prepared statement.
func (p PreparedStatement) GetName() string {
	return p.Name
}

// GetQuery returns the query of the prepared statement.
func (p PreparedStatement) GetQuery() string {
	return p.Query
}
