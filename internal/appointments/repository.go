package appointments

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("appointments: not found")
	ErrInvalidArgument = errors.New("appointments: invalid argument")
)

// AdmitFunc decides, given the occupied instants near a candidate, whether the
// candidate may be inserted.
type AdmitFunc func(occupied []time.Time) bool

// Repository is the persistence contract for appointments.
//
// CreateChecked must evaluate admit and insert atomically with respect to other
// CreateChecked calls, so two concurrent bookings cannot both pass the check.
type Repository interface {
	Create(ctx context.Context, a Appointment) (Appointment, error)
	CreateChecked(ctx context.Context, a Appointment, window time.Duration, admit AdmitFunc) (Appointment, bool, error)
	Get(ctx context.Context, id string) (Appointment, error)

	ListBookable(ctx context.Context, from time.Time, limit int) ([]Appointment, error)
	ListDueCallbacks(ctx context.Context, now time.Time) ([]Appointment, error)
	ListPendingCallbacks(ctx context.Context) ([]Appointment, error)
	LatestScheduledForLead(ctx context.Context, leadID string) (Appointment, bool, error)

	// ClaimCallback flips call_triggered false -> true and reports whether this
	// caller won the flip.
	ClaimCallback(ctx context.Context, id string) (bool, error)
	AttachCallLog(ctx context.Context, ids []string, callLogID string) error
}
