package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type Status string

const (
	StatusReported   Status = "reported"
	StatusInProgress Status = "in_progress"
	StatusFixed      Status = "fixed"
)

var ErrUnknownStatus = errors.New("unknown status")

// Legacy spellings found in stored rows and older clients.
var statusAliases = map[string]Status{
	"":            StatusReported,
	"reported":    StatusReported,
	"new":         StatusReported,
	"open":        StatusReported,
	"pending":     StatusReported,
	"submitted":   StatusReported,
	"in_progress": StatusInProgress,
	"in progress": StatusInProgress,
	"in-progress": StatusInProgress,
	"inprogress":  StatusInProgress,
	"working":     StatusInProgress,
	"assigned":    StatusInProgress,
	"fixed":       StatusFixed,
	"resolved":    StatusFixed,
	"closed":      StatusFixed,
	"done":        StatusFixed,
	"completed":   StatusFixed,
}

// ParseStatus is the only place where status strings are normalized.
func ParseStatus(s string) (Status, error) {
	st, ok := statusAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return StatusReported, fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return st, nil
}

// Urgency orders statuses for tie breaking: the more urgent status wins
// visibility.
func (s Status) Urgency() int {
	switch s {
	case StatusReported:
		return 3
	case StatusInProgress:
		return 2
	case StatusFixed:
		return 1
	}
	return 0
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	st, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}
