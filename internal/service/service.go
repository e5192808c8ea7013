package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/payout-engine/internal/domain"
	customError "github.com/segyhp/payout-engine/pkg/errors"
)

// maxTransitionRetries bounds how often a confirmation transition is
// re-read and re-applied after losing a compare-and-set race.
const maxTransitionRetries = 3

// Notifier hands notifications to the external email/push service.
type Notifier interface {
	Notify(ctx context.Context, notification domain.Notification) error
}

// RunStore serialises pipeline runs per trigger and keeps their results.
type RunStore interface {
	AcquireLock(ctx context.Context, trigger string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, trigger, token string) error
	SaveResult(ctx context.Context, result *domain.PipelineResult) error
	GetResult(ctx context.Context, requestID string) (*domain.PipelineResult, error)
}

// notFoundOr maps sql.ErrNoRows to a not found business error and any other
// store failure to a database error.
func notFoundOr(err error, sentinel error, id uuid.UUID) error {
	if errors.Is(err, sql.ErrNoRows) {
		return customError.WrapNotFound(sentinel, id.String())
	}
	return customError.WrapDatabaseError(err)
}

func newNotification(kind string, recipient, entity uuid.UUID, now time.Time, data map[string]string) domain.Notification {
	return domain.Notification{
		Kind:        kind,
		RecipientID: recipient,
		EntityID:    entity,
		Data:        data,
		CreatedAt:   now,
	}
}
