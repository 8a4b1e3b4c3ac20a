package store

import (
	"slices"
	"strconv"
	"strings"

	"github.com/hylla/ansok/internal/domain"
)

// Key identifies one fetchable resource for lifecycle tracking and polling.
type Key string

// RoundKey returns the fetch key for a round listing.
func RoundKey(roundID int) Key {
	return Key("round:" + strconv.Itoa(roundID))
}

// StatusesKey returns the fetch key for a status-set listing. The key is
// order-insensitive so overlapping fetches for the same set share a lifecycle.
func StatusesKey(statuses []domain.Status) Key {
	normalized := domain.NormalizeStatuses(statuses)
	parts := make([]string, 0, len(normalized))
	for _, status := range normalized {
		parts = append(parts, string(status))
	}
	slices.Sort(parts)
	return Key("statuses:" + strings.Join(parts, ","))
}

// NotesKey returns the fetch key for a submission's notes listing.
func NotesKey(submissionID int) Key {
	return Key("notes:" + strconv.Itoa(submissionID))
}

// Phase identifies one step of the fetch lifecycle state machine.
type Phase int

// Fetch lifecycle phases. The tagged enum replaces a pair of
// fetching/errored booleans so the impossible both-true state cannot be
// represented.
const (
	PhaseIdle Phase = iota
	PhasePending
	PhaseSuccess
	PhaseFailure
)

// FetchState carries the lifecycle phase for one fetch key. Message is set
// only in PhaseFailure and holds a human-readable error.
type FetchState struct {
	Phase   Phase
	Message string
}

// Pending reports whether a request for this key is in flight.
func (s FetchState) Pending() bool {
	return s.Phase == PhasePending
}

// Failed reports whether the last completed request for this key failed.
func (s FetchState) Failed() bool {
	return s.Phase == PhaseFailure
}
