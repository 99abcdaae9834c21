package pgxdb

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/marcodd23/go-txsession/pkg/dbx"
	"github.com/pkg/errors"
)

//###################################
//#       Postgres RESULT SETS      #
//###################################

// resultSet - dbx.ResultSet streaming pgx.Rows, stopping after maxRows rows when set.
type resultSet struct {
	stmt    *Statement
	rows    pgx.Rows
	maxRows int
	read    int
	cancel  context.CancelFunc
	closed  bool
}

func (r *resultSet) Next() bool {
	if r.closed || (r.maxRows > 0 && r.read >= r.maxRows) {
		return false
	}

	if !r.rows.Next() {
		return false
	}

	r.read++

	return true
}

func (r *resultSet) Scan(dest ...any) error {
	return r.rows.Scan(dest...)
}

func (r *resultSet) Columns() []string {
	return columnNames(r.rows.FieldDescriptions())
}

func (r *resultSet) Err() error {
	return r.rows.Err()
}

func (r *resultSet) Statement() dbx.Statement {
	return r.stmt
}

func (r *resultSet) Close() error {
	if r.closed {
		return nil
	}

	r.closed = true
	r.rows.Close()
	r.cancel()

	return r.rows.Err()
}

// keysResultSet - rows returned by an insert, buffered so the row count is known before they are
// read. Values are kept in wire format and decoded on Scan.
type keysResultSet struct {
	stmt    *Statement
	typeMap *pgtype.Map
	fields  []pgconn.FieldDescription
	rows    [][][]byte
	pos     int
	closed  bool
}

func bufferKeys(rows pgx.Rows, typeMap *pgtype.Map) (*keysResultSet, error) {
	defer rows.Close()

	keys := &keysResultSet{typeMap: typeMap, pos: -1}

	for rows.Next() {
		raw := rows.RawValues()

		row := make([][]byte, len(raw))
		for i, v := range raw {
			if v != nil {
				row[i] = append([]byte{}, v...)
			}
		}

		keys.rows = append(keys.rows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	keys.fields = append(keys.fields, rows.FieldDescriptions()...)

	return keys, nil
}

func (k *keysResultSet) Next() bool {
	if k.closed || k.pos+1 >= len(k.rows) {
		return false
	}

	k.pos++

	return true
}

func (k *keysResultSet) Scan(dest ...any) error {
	if k.pos < 0 || k.pos >= len(k.rows) {
		return errors.New("no current row")
	}

	row := k.rows[k.pos]
	if len(dest) != len(row) {
		return errors.Errorf("expected %d destinations, got %d", len(row), len(dest))
	}

	for i, d := range dest {
		fd := k.fields[i]
		if err := k.typeMap.Scan(fd.DataTypeOID, fd.Format, row[i], d); err != nil {
			return errors.Wrapf(err, "could not scan column %s", fd.Name)
		}
	}

	return nil
}

func (k *keysResultSet) Columns() []string {
	return columnNames(k.fields)
}

func (k *keysResultSet) Err() error {
	return nil
}

func (k *keysResultSet) Statement() dbx.Statement {
	return k.stmt
}

func (k *keysResultSet) Close() error {
	k.closed = true
	return nil
}

func columnNames(fields []pgconn.FieldDescription) []string {
	names := make([]string, len(fields))
	for i, fd := range fields {
		names[i] = fd.Name
	}

	return names
}
