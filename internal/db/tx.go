package db

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/prepcoach/backend/internal/apperr"
)

const txMaxAttempts = 3

// RunInTx executes fn inside a transaction, retrying up to three times
// with exponential backoff when the database reports a serialization or
// lock conflict. Context cancellation aborts immediately.
func RunInTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	var lastErr error
	wait := 50 * time.Millisecond

	for attempt := 0; attempt < txMaxAttempts; attempt++ {
		err := db.WithContext(ctx).Transaction(fn)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isConflict(err) {
			return err
		}
		if attempt == txMaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}

	return apperr.StorageConflict(lastErr, "transaction retry budget exhausted")
}

func isConflict(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "deadlock") ||
		strings.Contains(msg, "serialization") ||
		strings.Contains(msg, "database is locked")
}
