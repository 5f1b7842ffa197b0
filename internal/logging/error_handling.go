package logging

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
)

// SafeCloseWithLogging closes a resource and logs a failure.
func SafeCloseWithLogging(closer io.Closer, logger *slog.Logger, operation string) {
	if isNil(closer) {
		return
	}
	if err := closer.Close(); err != nil {
		LogError(logger, "failed to close resource", err, slog.String("operation", operation))
	}
}

// SafeRollbackWithLogging rolls back tx and logs a failure. Rolling back a
// transaction that was already committed is expected in deferred calls and
// is not logged.
func SafeRollbackWithLogging(tx interface{ Rollback() error }, logger *slog.Logger, operation string) {
	if isNil(tx) {
		return
	}
	err := tx.Rollback()
	if err == nil || errors.Is(err, sql.ErrTxDone) {
		return
	}
	LogError(logger, "failed to rollback transaction", err, slog.String("operation", operation))
}

// HandleDeferredError runs deferredOp and, if it fails, logs the failure.
// The failure becomes *originalErr only when that is still nil.
func HandleDeferredError(originalErr *error, deferredOp func() error, logger *slog.Logger, operation string) {
	if deferredOp == nil {
		return
	}
	err := deferredOp()
	if err == nil {
		return
	}
	LogError(logger, "deferred operation failed", err, slog.String("operation", operation))
	if *originalErr == nil {
		*originalErr = fmt.Errorf("%s failed: %w", operation, err)
	}
}

// isNil also catches typed nil pointers stored in an interface.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
