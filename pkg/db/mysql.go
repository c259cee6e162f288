package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// MySQL error numbers classified into the coarse failure classes. The
// monitoring core only cares about "bad credentials" vs "missing privilege"
// vs everything else.
var (
	mysqlAuthErrnos = map[uint16]bool{
		1044: true, // ER_DBACCESS_DENIED_ERROR
		1045: true, // ER_ACCESS_DENIED_ERROR
		1698: true, // ER_ACCESS_DENIED_NO_PASSWORD_ERROR
	}
	mysqlDeniedErrnos = map[uint16]bool{
		1142: true, // ER_TABLEACCESS_DENIED_ERROR
		1143: true, // ER_COLUMNACCESS_DENIED_ERROR
		1227: true, // ER_SPECIFIC_ACCESS_DENIED_ERROR
		1370: true, // ER_PROCACCESS_DENIED_ERROR
		1095: true, // ER_KILL_DENIED_ERROR
	}
)

// MySQLConnector dials MySQL-compatible backends (MySQL, MariaDB, Galera
// nodes) through go-sql-driver.
type MySQLConnector struct{}

func (MySQLConnector) Connect(ctx context.Context, addr string, creds Credentials, t Timeouts) (Conn, error) {
	cfg := mysql.NewConfig()
	cfg.User = creds.User
	cfg.Passwd = creds.Password
	cfg.Net = "tcp"
	cfg.Addr = addr
	cfg.Timeout = t.Connect
	cfg.ReadTimeout = t.Read
	cfg.WriteTimeout = t.Write

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("db: mysql config: %w", err)
	}
	pool := sql.OpenDB(connector)
	// One monitor connection per record; no idle pool behind it.
	pool.SetMaxOpenConns(1)
	pool.SetMaxIdleConns(1)
	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, classifyMySQLError(err)
	}
	return &mysqlConn{pool: pool}, nil
}

type mysqlConn struct {
	pool *sql.DB
}

func (c *mysqlConn) Ping(ctx context.Context) error {
	return classifyMySQLError(c.pool.PingContext(ctx))
}

func (c *mysqlConn) Exec(ctx context.Context, query string) error {
	rows, err := c.pool.QueryContext(ctx, query)
	if err != nil {
		return classifyMySQLError(err)
	}
	defer rows.Close()
	for rows.Next() {
	}
	return classifyMySQLError(rows.Err())
}

func (c *mysqlConn) QueryValue(ctx context.Context, query string) (string, error) {
	var value sql.NullString
	if err := c.pool.QueryRowContext(ctx, query).Scan(&value); err != nil {
		return "", classifyMySQLError(err)
	}
	return value.String, nil
}

func (c *mysqlConn) Close() error { return c.pool.Close() }

func classifyMySQLError(err error) error {
	if err == nil {
		return nil
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		if mysqlAuthErrnos[me.Number] {
			return fmt.Errorf("%w: %v", ErrAuth, err)
		}
		if mysqlDeniedErrnos[me.Number] {
			return fmt.Errorf("%w: %v", ErrQueryDenied, err)
		}
	}
	return err
}
