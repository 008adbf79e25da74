// Package database creates the application's MySQL database and user.
//
// Two provisioners share the same statements: SQL talks to the server over
// its unix socket with go-sql-driver/mysql and is used when laravel-vps runs
// on the server itself; CLI pipes the statements into the mysql client on the
// host and is used over SSH.
package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redentordev/laravel-vps/pkg/plan"
)

// ErrProvisionFailed wraps any failure to create the database or user.
var ErrProvisionFailed = errors.New("database provisioning failed")

// Provisioner creates a database and a user with full rights on it.
// Running it twice is harmless.
type Provisioner interface {
	Provision(ctx context.Context, db plan.Database) error
}

// IsLocal reports whether the database server runs on the provisioned host.
// Remote servers are left alone.
func IsLocal(dbHost string) bool {
	switch dbHost {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// Statements returns the SQL that provisions db. The user is created for
// both localhost (socket) and 127.0.0.1 (TCP) since Laravel connects over TCP.
// An account that already exists keeps its password.
func Statements(db plan.Database) []string {
	name := QuoteIdent(db.Name)
	pass := QuoteString(db.Password)
	stmts := []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci", name),
	}
	for _, h := range []string{"localhost", "127.0.0.1"} {
		account := QuoteString(db.User) + "@" + QuoteString(h)
		stmts = append(stmts,
			fmt.Sprintf("CREATE USER IF NOT EXISTS %s IDENTIFIED BY %s", account, pass),
			fmt.Sprintf("GRANT ALL PRIVILEGES ON %s.* TO %s", name, account),
		)
	}
	return append(stmts, "FLUSH PRIVILEGES")
}

// QuoteIdent quotes a MySQL identifier.
func QuoteIdent(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

// QuoteString quotes a MySQL string literal.
func QuoteString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\x00", `\0`, "\n", `\n`, "\r", `\r`, "\x1a", `\Z`)
	return "'" + r.Replace(s) + "'"
}
