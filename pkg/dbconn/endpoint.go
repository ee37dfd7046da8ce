package dbconn

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// Endpoint is a fully-addressed, credentialed connection target. It is
// resolved by the configuration layer and passed by value; the core never
// mutates it.
type Endpoint struct {
	Driver   string `yaml:"driver"` // mysql or postgres
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	TLSMode  string `yaml:"tlsMode,omitempty"`
}

// ConnectionError indicates an endpoint could not be reached or authenticated.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// DSN renders the driver-specific connection string.
func (e Endpoint) DSN() string {
	switch e.Driver {
	case "postgres":
		ssl := e.TLSMode
		if ssl == "" {
			ssl = "disable"
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			e.Host, e.Port, e.User, e.Password, e.Database, ssl)
	default:
		cfg := mysqldriver.NewConfig()
		cfg.Net = "tcp"
		cfg.Addr = fmt.Sprintf("%s:%d", e.Host, e.Port)
		cfg.User = e.User
		cfg.Passwd = e.Password
		cfg.DBName = e.Database
		cfg.ParseTime = true
		if e.TLSMode != "" {
			cfg.TLSConfig = e.TLSMode
		}
		return cfg.FormatDSN()
	}
}

// Redacted renders the endpoint for logging: the password is dropped and all
// but the first rune of the user name is obscured.
func (e Endpoint) Redacted() string {
	user := "***"
	if r := []rune(e.User); len(r) > 0 {
		user = string(r[0]) + "***"
	}
	return fmt.Sprintf("%s://%s@%s:%d/%s", e.Driver, user, e.Host, e.Port, e.Database)
}

// Open opens a pooled handle for the endpoint. The connection is not
// validated until first use; call Ping for that.
func (e Endpoint) Open() (*sql.DB, error) {
	drv := e.Driver
	if drv == "" {
		drv = "mysql"
	}
	db, err := sql.Open(drv, e.DSN())
	if err != nil {
		return nil, &ConnectionError{Endpoint: e.Redacted(), Err: err}
	}
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

// Ping verifies the endpoint is reachable and authenticated.
func (e Endpoint) Ping(ctx context.Context, db *sql.DB) error {
	if err := db.PingContext(ctx); err != nil {
		return &ConnectionError{Endpoint: e.Redacted(), Err: err}
	}
	return nil
}

// ServerVersion reports the server version string of an open connection.
func ServerVersion(ctx context.Context, db *sql.DB) (string, error) {
	var v string
	if err := db.QueryRowContext(ctx, "SELECT VERSION()").Scan(&v); err != nil {
		return "", fmt.Errorf("server version: %w", err)
	}
	return v, nil
}
