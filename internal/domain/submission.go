package domain

import (
	"slices"
	"strconv"
	"strings"
)

// Status is the raw review-status value a submission carries on the wire.
type Status string

// StatusAction describes one status transition the server currently offers.
type StatusAction struct {
	Target  Status
	Display string
}

// Submission is a grant application tracked through review statuses.
//
// CommentIDs is owned by the cache, not the server payload: list fetches
// replace it wholesale and optimistic creates prepend to it. ChangedLocally is
// true while a local status-changing action is pending commit, which exempts
// the next polled status change from external-change detection.
type Submission struct {
	ID             int
	Title          string
	Status         Status
	Round          *int
	Actions        []StatusAction
	CommentIDs     []int
	ChangedLocally bool
}

// Clone returns a deep copy safe to hand outside the cache.
func (s Submission) Clone() Submission {
	out := s
	out.Actions = slices.Clone(s.Actions)
	out.CommentIDs = slices.Clone(s.CommentIDs)
	if s.Round != nil {
		round := *s.Round
		out.Round = &round
	}
	return out
}

// HasComment reports whether the note id is already linked to this submission.
func (s Submission) HasComment(noteID int) bool {
	return slices.Contains(s.CommentIDs, noteID)
}

// RawRound returns the round id as a raw grouping value, empty when unassigned.
func (s Submission) RawRound() string {
	if s.Round == nil {
		return ""
	}
	return strconv.Itoa(*s.Round)
}

// NormalizeStatus canonicalizes a raw status value.
func NormalizeStatus(status Status) Status {
	return Status(strings.TrimSpace(strings.ToLower(string(status))))
}

// NormalizeStatuses canonicalizes and de-duplicates a status set, preserving
// first-seen order.
func NormalizeStatuses(statuses []Status) []Status {
	out := make([]Status, 0, len(statuses))
	seen := map[Status]struct{}{}
	for _, raw := range statuses {
		status := NormalizeStatus(raw)
		if status == "" {
			continue
		}
		if _, ok := seen[status]; ok {
			continue
		}
		seen[status] = struct{}{}
		out = append(out, status)
	}
	return out
}
