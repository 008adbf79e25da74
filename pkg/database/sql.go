package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/redentordev/laravel-vps/pkg/plan"
)

// Execer is the part of *sqlx.DB the SQL provisioner uses.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQL provisions over a direct connection.
type SQL struct {
	DB Execer
}

// Connect opens a root connection over the server's unix socket. On Debian
// and Ubuntu root authenticates with auth_socket, so no password is needed
// when laravel-vps itself runs as root.
func Connect(ctx context.Context, socket string, timeout time.Duration) (*sqlx.DB, error) {
	cfg := mysql.NewConfig()
	cfg.User = "root"
	cfg.Net = "unix"
	cfg.Addr = socket
	cfg.Timeout = timeout
	cfg.InterpolateParams = true

	db, err := sqlx.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvisionFailed, err)
	}
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: connect to %s: %v", ErrProvisionFailed, socket, err)
	}
	return db, nil
}

func (s SQL) Provision(ctx context.Context, db plan.Database) error {
	for _, stmt := range Statements(db) {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: %v", ErrProvisionFailed, err)
		}
	}
	return nil
}
