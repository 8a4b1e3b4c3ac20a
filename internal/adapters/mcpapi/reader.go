package mcpapi

import (
	"context"
	"fmt"
	"time"

	"github.com/hylla/ansok/internal/domain"
	"github.com/hylla/ansok/internal/store"
)

// CacheReader serves queue captures straight from the synchronized cache.
type CacheReader struct {
	cache   *store.Store
	groupBy store.GroupBy
	specs   []store.GroupSpec
	clock   func() time.Time
}

// NewCacheReader constructs a reader over the cache with the board's group
// layout. A nil clock uses time.Now.
func NewCacheReader(cache *store.Store, groupBy store.GroupBy, specs []store.GroupSpec, clock func() time.Time) *CacheReader {
	if clock == nil {
		clock = time.Now
	}
	return &CacheReader{
		cache:   cache,
		groupBy: groupBy,
		specs:   specs,
		clock:   clock,
	}
}

// CaptureQueue snapshots the grouped queue, the listing fetch state, and any
// unacknowledged external changes.
func (r *CacheReader) CaptureQueue(_ context.Context) (QueueCapture, error) {
	statuses := r.cache.CurrentStatuses()
	groups := r.cache.GroupedSubmissions(r.groupBy, r.specs)
	fetch := r.cache.FetchStateFor(store.StatusesKey(statuses))

	capture := QueueCapture{
		CapturedAt: r.clock().UTC(),
		Statuses:   statusStrings(statuses),
		Groups:     make([]GroupCapture, 0, len(groups)),
		Fetch:      FetchStateCapture{Phase: phaseName(fetch.Phase), Message: fetch.Message},
	}
	for _, group := range groups {
		members := make([]SubmissionCapture, 0, len(group.Submissions))
		for _, sub := range group.Submissions {
			members = append(members, SubmissionCapture{
				ID:     sub.ID,
				Title:  sub.Title,
				Status: string(sub.Status),
				Round:  sub.Round,
			})
			if status, ok := r.cache.ExternalChangeFor(sub.ID); ok {
				capture.External = append(capture.External, ExternalChange{
					SubmissionID: sub.ID,
					NewStatus:    string(status),
				})
			}
		}
		capture.Groups = append(capture.Groups, GroupCapture{
			Key:         group.Key,
			Display:     group.Display,
			Submissions: members,
		})
	}
	return capture, nil
}

// ListNotes returns the cached notes for a submission, newest first.
func (r *CacheReader) ListNotes(_ context.Context, submissionID int) ([]NoteCapture, error) {
	if _, ok := r.cache.Submission(submissionID); !ok {
		return nil, fmt.Errorf("submission %d: %w", submissionID, ErrUnknownSubmission)
	}
	notes := r.cache.NotesForSubmission(submissionID)
	out := make([]NoteCapture, 0, len(notes))
	for _, note := range notes {
		out = append(out, NoteCapture{
			ID:        note.ID,
			Author:    note.Author,
			Message:   note.Message,
			Timestamp: note.CreatedAt,
			Edited:    note.EditedAt,
		})
	}
	return out, nil
}

func statusStrings(statuses []domain.Status) []string {
	out := make([]string, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, string(status))
	}
	return out
}

func phaseName(phase store.Phase) string {
	switch phase {
	case store.PhasePending:
		return "pending"
	case store.PhaseSuccess:
		return "success"
	case store.PhaseFailure:
		return "failure"
	default:
		return "idle"
	}
}
