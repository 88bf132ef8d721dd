package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chukwumela909/taskhub-server/domain"

	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// mongo write conflict, raised when two transactions touch the same document
const mongoWriteConflictCode = 112

// translateGormError maps driver failures onto the domain error set.
func translateGormError(err error, what string) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %s", domain.ErrNotFound(), what)
	case errors.Is(err, gorm.ErrDuplicatedKey), strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %s", domain.ErrAlreadyExists(), what)
	case strings.Contains(msg, "database is locked"), strings.Contains(msg, "database table is locked"):
		return fmt.Errorf("%w: %s: %v", domain.ErrConflict(), what, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %s: %v", domain.ErrUnavailable(), what, err)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func translateMongoError(err error, what string) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("%w: %s", domain.ErrNotFound(), what)
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %s", domain.ErrAlreadyExists(), what)
	case isMongoWriteConflict(err):
		// keep the driver error reachable so WithTransaction sees the
		// TransientTransactionError label and retries
		return fmt.Errorf("%w: %s: %w", domain.ErrConflict(), what, err)
	case mongo.IsTimeout(err), mongo.IsNetworkError(err),
		errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %s: %v", domain.ErrUnavailable(), what, err)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func isMongoWriteConflict(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code == mongoWriteConflictCode || cmdErr.HasErrorLabel("TransientTransactionError")
	}
	var writeErr mongo.WriteException
	if errors.As(err, &writeErr) {
		for _, we := range writeErr.WriteErrors {
			if we.Code == mongoWriteConflictCode {
				return true
			}
		}
		return writeErr.HasErrorLabel("TransientTransactionError")
	}
	return false
}

// markSpan records err on the span unless it is an expected lookup miss.
func markSpan(span trace.Span, err error) {
	if err == nil || errors.Is(err, domain.ErrNotFound()) {
		return
	}
	span.SetStatus(codes.Error, err.Error())
}
