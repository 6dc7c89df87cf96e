package postgres

import (
	"io"
	"log/slog"
	"testing"

	pgxmockv3 "github.com/pashagolub/pgxmock/v3"
)

func newMockPool(t *testing.T) pgxmockv3.PgxPoolIface {
	t.Helper()
	mock, err := pgxmockv3.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmockv3.AnyArg()
	}
	return args
}

func ptr[T any](v T) *T {
	return &v
}
