package pgxdb

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/marcodd23/go-txsession/pkg/dbx"
	"github.com/marcodd23/go-txsession/pkg/errorx"
	"github.com/marcodd23/go-txsession/pkg/logx"
	"github.com/pkg/errors"
)

//###################################
//#   Postgres connection provider  #
//###################################

// PoolConnectionProvider - dbx.ConnectionProvider backed by a pgxpool.Pool.
//
// Every obtained connection is a pool connection held until ReleaseConnection, which rolls back
// a physical transaction left open and hands the connection back to the pool.
type PoolConnectionProvider struct {
	pool   *pgxpool.Pool
	dbConf dbx.ConnConfig
}

var _ dbx.ConnectionProvider = (*PoolConnectionProvider)(nil)

// NewPoolConnectionProvider - creates the connection pool described by dbConf. The prepared
// statements are prepared on every new physical connection.
func NewPoolConnectionProvider(ctx context.Context, dbConf dbx.ConnConfig, preparedStatements ...dbx.PreparedStatement) (*PoolConnectionProvider, error) {
	pool, err := newConnectionPool(ctx, dbConf, preparedStatements...)
	if err != nil {
		return nil, err
	}

	logx.
		GetLogger().
		LogInfo(ctx, fmt.Sprintf("Created new Connection Pool: DB=%s, HOST=%s, PORT=%d",
			pool.Config().ConnConfig.Database,
			pool.Config().ConnConfig.Host,
			pool.Config().ConnConfig.Port))

	return &PoolConnectionProvider{pool: pool, dbConf: dbConf}, nil
}

func newConnectionPool(ctx context.Context, dbConf dbx.ConnConfig, preparedStatements ...dbx.PreparedStatement) (*pgxpool.Pool, error) {
	poolConfig, err := createConnectionConfiguration(dbConf)
	if err != nil {
		return nil, err
	}

	if len(preparedStatements) > 0 {
		poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			return setupPreparedStatements(ctx, conn, preparedStatements...)
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errorx.NewDatabaseErrorWrapper(err, "Error creating New Connection Pool")
	}

	return pool, nil
}

func createConnectionConfiguration(dbConf dbx.ConnConfig) (*pgxpool.Config, error) {
	if dbConf.DSN != "" {
		poolConfig, err := pgxpool.ParseConfig(dbConf.DSN)
		if err != nil {
			return nil, errorx.NewDatabaseErrorWrapper(err, "Error parsing Connection Pool DSN")
		}

		applyMaxConn(poolConfig, dbConf)

		return poolConfig, nil
	}

	if dbConf.DBName == "" {
		return nil, errorx.NewDatabaseError("Error creating Connection Pool ConnConfig: DB_Name is EMPTY")
	}

	if dbConf.User == "" {
		return nil, errorx.NewDatabaseError("Error creating Connection Pool ConnConfig: DB_User is EMPTY")
	}

	if dbConf.Password == "" {
		return nil, errorx.NewDatabaseError("Error creating Connection Pool ConnConfig: DB_Password is EMPTY")
	}

	poolConfig, err := pgxpool.ParseConfig("")
	if err != nil {
		return nil, errorx.NewDatabaseErrorWrapper(err, "Error creating Connection Pool ConnConfig")
	}

	poolConfig.ConnConfig.Database = dbConf.DBName
	poolConfig.ConnConfig.User = dbConf.User
	poolConfig.ConnConfig.Password = dbConf.Password

	if dbConf.Host != "" {
		poolConfig.ConnConfig.Host = dbConf.Host
	}

	if dbConf.Port > 0 {
		poolConfig.ConnConfig.Port = uint16(dbConf.Port)
	}

	applyMaxConn(poolConfig, dbConf)

	return poolConfig, nil
}

func applyMaxConn(poolConfig *pgxpool.Config, dbConf dbx.ConnConfig) {
	if dbConf.MaxConn > 0 {
		poolConfig.MaxConns = dbConf.MaxConn
	}
}

func setupPreparedStatements(ctx context.Context, conn *pgx.Conn, preparedStatements ...dbx.PreparedStatement) error {
	for _, stmt := range preparedStatements {
		_, err := conn.Prepare(ctx, stmt.GetName(), stmt.GetQuery())
		if err != nil {
			return errorx.NewDatabaseErrorWrapper(err, "Failed to prepare statement '%s'", stmt.GetName())
		}
	}

	return nil
}

// ObtainConnection - acquires a connection from the pool. The connection starts in auto-commit mode.
func (p *PoolConnectionProvider) ObtainConnection(ctx context.Context) (dbx.Connection, error) {
	if p.pool == nil {
		return nil, errorx.NewDatabaseError("error, Connection Pool To DB not initialized")
	}

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		logx.GetLogger().LogError(ctx, "Error acquiring connection from pool", err)
		return nil, errors.Wrap(err, "Error acquiring connection from pool")
	}

	return newConnection(conn), nil
}

// ReleaseConnection - hands conn back to the pool.
func (p *PoolConnectionProvider) ReleaseConnection(ctx context.Context, conn dbx.Connection) error {
	pc, ok := conn.(*Connection)
	if !ok {
		return errors.Errorf("connection %T was not obtained from this provider", conn)
	}

	return pc.Close(ctx)
}

// Pool - the underlying pgx pool.
func (p *PoolConnectionProvider) Pool() *pgxpool.Pool {
	return p.pool
}

// GetConnectionConfig - get Db Connection config.
func (p *PoolConnectionProvider) GetConnectionConfig() dbx.ConnConfig {
	return p.dbConf
}

// Close - closes the connection pool.
func (p *PoolConnectionProvider) Close() {
	if p.pool != nil {
		p.pool.Close()
		logx.GetLogger().LogInfo(context.TODO(), "DB Connection Pool Successfully Closed!")
	}
}
