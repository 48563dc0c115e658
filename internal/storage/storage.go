// Package storage holds the helpers shared by the PostgreSQL repositories.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"bookscape/internal/apperr"
)

// Dialect is the postgres goqu dialect. Datasets built from it are switched to Prepared(true)
// so values always travel as $n parameters.
func Dialect() goqu.DialectWrapper {
	return goqu.Dialect("postgres")
}

// Acquire takes a dedicated connection from the pool for a single operation.
// The caller must Release it.
func Acquire(ctx context.Context, pg *pgxpool.Pool, op string) (*pgxpool.Conn, error) {
	conn, err := pg.Acquire(ctx)
	if err != nil {
		return nil, apperr.Connection(op, fmt.Errorf("acquiring connection: %w", err))
	}
	return conn, nil
}

// ConnectionLost reports whether a statement failed because the server became unreachable
// rather than because the statement itself was rejected.
func ConnectionLost(err error) bool {
	if err == nil {
		return false
	}

	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// EscapeLike escapes the LIKE wildcards so s matches literally.
func EscapeLike(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(strings.ReplaceAll(s,
		"\\", "\\\\"),
		"_", "\\_"),
		"%", "\\%")
}

// Contains returns an ILIKE pattern matching any value that contains s, or "" when s is blank.
func Contains(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return "%" + EscapeLike(s) + "%"
}
