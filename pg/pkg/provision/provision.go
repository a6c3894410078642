// Package provision creates PostgreSQL databases and grants initial
// privileges. CREATE DATABASE commits implicitly, so create-then-grant is
// not transactional; a failure between the two steps is reported as a
// PartialError so the caller can remediate the grant alone instead of
// assuming all-or-nothing.
package provision

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/weston-ai/cloud-etl-postgres-ml/pg/pkg/ident"
)

// Execer is the subset of database/sql used for issuing DDL. *sql.DB and
// *sql.Conn both satisfy it.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

var (
	// ErrDuplicateDatabase means the database name already exists. Never
	// retried: re-issuing a duplicate create cannot succeed.
	ErrDuplicateDatabase = errors.New("database already exists")
	// ErrPermissionDenied means the connection lacks the required privilege.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrConnection means the admin connection is unusable. Surfaced, not
	// retried; the caller decides whether to retry with a fresh connection.
	ErrConnection = errors.New("connection failed")
)

// PartialError reports a provisioning run that failed between steps. The
// flags tell the caller which sub-steps succeeded so only the missing grant
// needs to be re-issued.
type PartialError struct {
	DatabaseCreated   bool
	PrivilegesGranted bool
	Err               error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("partial provisioning (database_created=%t privileges_granted=%t): %v",
		e.DatabaseCreated, e.PrivilegesGranted, e.Err)
}

func (e *PartialError) Unwrap() error { return e.Err }

// Options configures CreateDatabaseWithPrivileges.
type Options struct {
	Name     string
	Owner    string
	Template string // default template1
	Encoding string // default UTF8
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.Template == "" {
		out.Template = "template1"
	}
	if out.Encoding == "" {
		out.Encoding = "UTF8"
	}
	return out
}

// CreateDatabaseWithPrivileges creates a database from the given template and
// encoding, owned by owner, then grants it all privileges. Not idempotent:
// a second run for the same name fails with ErrDuplicateDatabase. All
// identifiers are validated before the connection is touched.
func CreateDatabaseWithPrivileges(ctx context.Context, log *slog.Logger, db Execer, opts Options) error {
	o := opts.withDefaults()

	if err := ident.ValidateAll(o.Name, o.Owner, o.Template, o.Encoding); err != nil {
		return err
	}

	createStmt := fmt.Sprintf(`CREATE DATABASE %q WITH TEMPLATE %q ENCODING '%s' OWNER %q`,
		o.Name, o.Template, o.Encoding, o.Owner)
	if _, err := db.ExecContext(ctx, createStmt); err != nil {
		return fmt.Errorf("failed to create database %q: %w", o.Name, classifyErr(err))
	}
	log.Info("created database", "name", o.Name, "owner", o.Owner, "template", o.Template, "encoding", o.Encoding)

	grantStmt := fmt.Sprintf(`GRANT ALL PRIVILEGES ON DATABASE %q TO %q`, o.Name, o.Owner)
	if _, err := db.ExecContext(ctx, grantStmt); err != nil {
		// The database exists at this point; the caller should retry only
		// the grant, not the create.
		return &PartialError{
			DatabaseCreated:   true,
			PrivilegesGranted: false,
			Err:               classifyErr(err),
		}
	}
	log.Info("granted all privileges", "name", o.Name, "owner", o.Owner)

	return nil
}

// GrantAllPrivileges issues only the grant step, for remediating a partial
// provisioning failure.
func GrantAllPrivileges(ctx context.Context, log *slog.Logger, db Execer, name, owner string) error {
	if err := ident.ValidateAll(name, owner); err != nil {
		return err
	}
	grantStmt := fmt.Sprintf(`GRANT ALL PRIVILEGES ON DATABASE %q TO %q`, name, owner)
	if _, err := db.ExecContext(ctx, grantStmt); err != nil {
		return fmt.Errorf("failed to grant privileges on %q to %q: %w", name, owner, classifyErr(err))
	}
	log.Info("granted all privileges", "name", name, "owner", owner)
	return nil
}

// SQLSTATE codes relevant to provisioning.
const (
	codeDuplicateDatabase     = "42P04"
	codeInsufficientPrivilege = "42501"
)

// classifyErr maps a driver error onto the provisioning error taxonomy while
// preserving the original via wrapping.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == codeDuplicateDatabase:
			return fmt.Errorf("%w: %v", ErrDuplicateDatabase, err)
		case pgErr.Code == codeInsufficientPrivilege:
			return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		case strings.HasPrefix(pgErr.Code, "28"): // invalid_authorization_specification
			return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		case strings.HasPrefix(pgErr.Code, "08"): // connection_exception
			return fmt.Errorf("%w: %v", ErrConnection, err)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{"connection refused", "connection reset", "broken pipe", "bad connection", "closed"} {
		if strings.Contains(errStr, pattern) {
			return fmt.Errorf("%w: %v", ErrConnection, err)
		}
	}
	return err
}
