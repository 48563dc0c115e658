package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestContains(t *testing.T) {
	assert.Equal(t, "", Contains(""))
	assert.Equal(t, "", Contains("   "))
	assert.Equal(t, "%go%", Contains(" go "))
	assert.Equal(t, `%100\%%`, Contains("100%"))
	assert.Equal(t, `%a\_b%`, Contains("a_b"))
	assert.Equal(t, `%c:\\dir%`, Contains(`c:\dir`))
}

func TestConnectionLost(t *testing.T) {
	for _, err := range []error{
		context.DeadlineExceeded,
		fmt.Errorf("exec: %w", io.ErrUnexpectedEOF),
		&net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset by peer")},
		net.ErrClosed,
	} {
		assert.True(t, ConnectionLost(err), err.Error())
	}

	for _, err := range []error{
		nil,
		errors.New("syntax error"),
		&pgconn.PgError{Code: "23514", Message: "new row violates check constraint"},
	} {
		assert.False(t, ConnectionLost(err))
	}
}
