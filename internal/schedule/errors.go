package schedule

import (
	"errors"
	"fmt"
	"strings"
)

// Reason identifies why a candidate assignment was rejected. The values double
// as machine-readable error codes for API callers.
type Reason string

const (
	ReasonUnknownArtisan        Reason = "unknown_artisan"
	ReasonUnknownProject        Reason = "unknown_project"
	ReasonMalformedDate         Reason = "malformed_date"
	ReasonInvertedDateRange     Reason = "inverted_date_range"
	ReasonHoursOutOfRange       Reason = "hours_out_of_range"
	ReasonOverlappingAssignment Reason = "overlapping_assignment"
)

var (
	ErrUnknownArtisan        = errors.New("unknown artisan")
	ErrUnknownProject        = errors.New("unknown project")
	ErrMalformedDate         = errors.New("malformed date")
	ErrInvertedDateRange     = errors.New("start date after end date")
	ErrHoursOutOfRange       = errors.New("hours per day out of range")
	ErrOverlappingAssignment = errors.New("overlapping assignment")
)

var reasonErrs = map[Reason]error{
	ReasonUnknownArtisan:        ErrUnknownArtisan,
	ReasonUnknownProject:        ErrUnknownProject,
	ReasonMalformedDate:         ErrMalformedDate,
	ReasonInvertedDateRange:     ErrInvertedDateRange,
	ReasonHoursOutOfRange:       ErrHoursOutOfRange,
	ReasonOverlappingAssignment: ErrOverlappingAssignment,
}

// Rejection is returned by Validate when a candidate may not be committed.
// It unwraps to the Err* sentinel matching its Reason.
type Rejection struct {
	Reason    Reason
	Detail    string
	Conflicts []string
}

func (r *Rejection) Error() string {
	msg := reasonErrs[r.Reason].Error()
	if r.Detail != "" {
		msg += ": " + r.Detail
	}
	if len(r.Conflicts) > 0 {
		msg += fmt.Sprintf(" (conflicts with %s)", strings.Join(r.Conflicts, ", "))
	}
	return msg
}

func (r *Rejection) Unwrap() error {
	return reasonErrs[r.Reason]
}

func reject(reason Reason, format string, args ...any) *Rejection {
	return &Rejection{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// AsRejection extracts a *Rejection from err, if any.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
