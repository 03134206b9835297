package calls

import (
	"context"
	"errors"
	"time"
)

var ErrInvalidArgument = errors.New("calls: invalid argument")

// Repository persists call logs. Logs are append-only.
type Repository interface {
	Create(ctx context.Context, l CallLog) (CallLog, error)
	List(ctx context.Context, from, to time.Time, campaignID string) ([]CallLog, error)
}
