package analytics

import (
	"errors"
	"fmt"
	"strings"

	"VolLens/internal/domain/models"
)

var (
	// ErrPrecondition marks a metric that cannot be computed because an input column is absent.
	ErrPrecondition = errors.New("precondition failed")
	// ErrInsufficientData marks a statistic that has too few points to be computed.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrEmptyOverlap marks two series that share no timestamps after alignment.
	ErrEmptyOverlap = errors.New("no overlapping timestamps")
	// ErrMalformedSeries marks structurally invalid input: unordered or duplicate timestamps.
	ErrMalformedSeries = errors.New("malformed series")
	// ErrInvalidConfig marks an unusable window, lag, period or cluster count.
	ErrInvalidConfig = errors.New("invalid analysis config")
)

// PreconditionError reports that Metric was declined because Missing columns are absent.
type PreconditionError struct {
	Metric  string
	Missing []models.Field
}

func (e *PreconditionError) Error() string {
	names := make([]string, len(e.Missing))
	for i, f := range e.Missing {
		names[i] = f.String()
	}
	return fmt.Sprintf("%s unavailable: missing %s", e.Metric, strings.Join(names, ", "))
}

func (e *PreconditionError) Is(target error) bool { return target == ErrPrecondition }

// InsufficientDataError reports that Op needed at least Need points and got Have.
type InsufficientDataError struct {
	Op   string
	Need int
	Have int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: insufficient data: need %d points, have %d", e.Op, e.Need, e.Have)
}

func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }

// EmptyOverlapError reports two series with disjoint time ranges.
type EmptyOverlapError struct {
	A, B string
}

func (e *EmptyOverlapError) Error() string {
	return fmt.Sprintf("series %q and %q share no timestamps", e.A, e.B)
}

func (e *EmptyOverlapError) Is(target error) bool { return target == ErrEmptyOverlap }

// IsNoResult reports whether err is a recoverable "no result" outcome rather than a fault.
func IsNoResult(err error) bool {
	return errors.Is(err, ErrPrecondition) || errors.Is(err, ErrInsufficientData) || errors.Is(err, ErrEmptyOverlap)
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedSeries, fmt.Sprintf(format, args...))
}

func invalidConfig(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
