// Package store holds the normalized entity cache for the review console:
// submissions, notes, rounds, and status buckets keyed by id, plus the
// per-key fetch lifecycle and per-submission draft state. All mutation goes
// through merge methods that are total and idempotent; reads return copies so
// callers never alias cache internals.
package store

import (
	"slices"
	"sync"

	"github.com/hylla/ansok/internal/domain"
)

// Store is the single shared cache. A mutex stands in for the original
// single-threaded event loop: every merge is atomic with respect to every
// other merge, and whichever response merges last wins.
type Store struct {
	mu sync.RWMutex

	submissions map[int]domain.Submission
	notes       map[int]domain.Note
	rounds      map[int]domain.Round

	byStatus    map[domain.Status][]int
	statusOrder []domain.Status
	current     []domain.Status

	currentSubmission int
	drafts            map[int]domain.DraftNote
	fetch             map[Key]FetchState

	// external records status values observed from polls that did not
	// originate from a local pending action, keyed by submission id.
	external map[int]domain.Status

	rev        uint64
	groupCache groupCache
}

// New constructs an empty cache.
func New() *Store {
	return &Store{
		submissions: map[int]domain.Submission{},
		notes:       map[int]domain.Note{},
		rounds:      map[int]domain.Round{},
		byStatus:    map[domain.Status][]int{},
		drafts:      map[int]domain.DraftNote{},
		fetch:       map[Key]FetchState{},
		external:    map[int]domain.Status{},
	}
}

// Revision returns a counter bumped on every observable state change. Derived
// views memoize on it so polls that re-deliver identical payloads do not
// recompute anything.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rev
}

// MergeSubmission shallow-merges one server payload over the cached record.
// Server fields overwrite local ones; CommentIDs and ChangedLocally stay
// cache-owned. Applying the same payload twice yields the same state.
func (s *Store) MergeSubmission(incoming domain.Submission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mergeSubmissionLocked(incoming)
}

// MergeSubmissions merges a list fetch payload record by record.
func (s *Store) MergeSubmissions(incoming []domain.Submission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range incoming {
		s.mergeSubmissionLocked(sub)
	}
}

func (s *Store) mergeSubmissionLocked(incoming domain.Submission) {
	if incoming.ID <= 0 {
		return
	}
	incoming.Status = domain.NormalizeStatus(incoming.Status)

	prev, known := s.submissions[incoming.ID]
	next := incoming.Clone()
	if known {
		next.CommentIDs = prev.CommentIDs
		next.ChangedLocally = prev.ChangedLocally
		if prev.Status != incoming.Status {
			if prev.ChangedLocally {
				// The polled change is our own pending action landing.
				next.ChangedLocally = false
			} else {
				s.external[incoming.ID] = incoming.Status
			}
		}
	}
	if known && submissionEqual(prev, next) {
		return
	}
	s.submissions[incoming.ID] = next
	s.rev++
}

// MergeRoundListing records a successful fetch of one round's submissions:
// every record is merged and the round's membership is replaced with the
// fetched id order.
func (s *Store) MergeRoundListing(roundID int, subs []domain.Submission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range subs {
		s.mergeSubmissionLocked(sub)
	}
	ids := dedupeIDs(subs)
	prev, known := s.rounds[roundID]
	next := domain.Round{ID: roundID, SubmissionIDs: ids}
	if known {
		next.Title = prev.Title
	}
	if known && prev.ID == next.ID && prev.Title == next.Title && slices.Equal(prev.SubmissionIDs, next.SubmissionIDs) {
		return
	}
	s.rounds[roundID] = next
	s.rev++
}

// SetRoundTitle records a round's display title without touching membership.
func (s *Store) SetRoundTitle(roundID int, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	round := s.rounds[roundID]
	if round.ID == roundID && round.Title == title {
		return
	}
	round.ID = roundID
	round.Title = title
	s.rounds[roundID] = round
	s.rev++
}

// MergeStatusListing records a successful fetch for a status set: every
// record is merged and the bucket for each requested status is rebuilt from
// the response. Buckets for statuses outside the request are left alone, so
// membership there stays eventually consistent until their next poll.
func (s *Store) MergeStatusListing(statuses []domain.Status, subs []domain.Submission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range subs {
		s.mergeSubmissionLocked(sub)
	}
	for _, status := range domain.NormalizeStatuses(statuses) {
		ids := make([]int, 0, len(subs))
		seen := map[int]struct{}{}
		for _, sub := range subs {
			if domain.NormalizeStatus(sub.Status) != status {
				continue
			}
			if _, ok := seen[sub.ID]; ok {
				continue
			}
			seen[sub.ID] = struct{}{}
			ids = append(ids, sub.ID)
		}
		s.setStatusBucketLocked(status, ids)
	}
}

func (s *Store) setStatusBucketLocked(status domain.Status, ids []int) {
	prev, known := s.byStatus[status]
	if known && slices.Equal(prev, ids) {
		return
	}
	if !known {
		s.statusOrder = append(s.statusOrder, status)
	}
	s.byStatus[status] = ids
	s.rev++
}

// SetCurrentStatuses replaces the active status set the listing view shows.
func (s *Store) SetCurrentStatuses(statuses []domain.Status) {
	normalized := domain.NormalizeStatuses(statuses)
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Equal(s.current, normalized) {
		return
	}
	s.current = normalized
	s.rev++
}

// MergeNotesFromList records a successful notes fetch. The list is
// authoritative: each note is upserted and the submission's CommentIDs is
// replaced with the fetched id order. An unknown submission gets a skeleton
// record so the ids have a home before its own payload arrives.
func (s *Store) MergeNotesFromList(submissionID int, notes []domain.Note) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, len(notes))
	seen := map[int]struct{}{}
	for _, note := range notes {
		if note.ID <= 0 {
			continue
		}
		s.upsertNoteLocked(note)
		if _, ok := seen[note.ID]; ok {
			continue
		}
		seen[note.ID] = struct{}{}
		ids = append(ids, note.ID)
	}
	sub, known := s.submissions[submissionID]
	if !known {
		sub = domain.Submission{ID: submissionID}
	}
	if known && slices.Equal(sub.CommentIDs, ids) {
		return
	}
	sub.CommentIDs = ids
	s.submissions[submissionID] = sub
	s.rev++
}

// AppendNoteID prepends a newly created note id to the submission's listing
// without waiting for a refetch. Re-applying the same id is a no-op.
func (s *Store) AppendNoteID(submissionID, noteID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, known := s.submissions[submissionID]
	if !known || noteID <= 0 {
		return
	}
	if sub.HasComment(noteID) {
		return
	}
	sub.CommentIDs = append([]int{noteID}, sub.CommentIDs...)
	s.submissions[submissionID] = sub
	s.rev++
}

// UpsertNote stores one note by id, replacing any prior record in place.
func (s *Store) UpsertNote(note domain.Note) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertNoteLocked(note)
}

func (s *Store) upsertNoteLocked(note domain.Note) {
	if note.ID <= 0 {
		return
	}
	prev, known := s.notes[note.ID]
	next := note.Clone()
	if known && noteEqual(prev, next) {
		return
	}
	s.notes[note.ID] = next
	s.rev++
}

// SetCurrentSubmission records which submission the console has open. Zero
// clears the selection.
func (s *Store) SetCurrentSubmission(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentSubmission == id {
		return
	}
	s.currentSubmission = id
	s.rev++
}

// MarkChangedLocally flags a submission as having a local status-changing
// action pending commit, exempting the next polled status change from
// external-change detection.
func (s *Store) MarkChangedLocally(id int, changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, known := s.submissions[id]
	if !known || sub.ChangedLocally == changed {
		return
	}
	sub.ChangedLocally = changed
	s.submissions[id] = sub
	s.rev++
}

// BeginFetch marks a request in flight for the key.
func (s *Store) BeginFetch(key Key) {
	s.setFetchState(key, FetchState{Phase: PhasePending})
}

// FinishFetch marks the last request for the key as succeeded.
func (s *Store) FinishFetch(key Key) {
	s.setFetchState(key, FetchState{Phase: PhaseSuccess})
}

// FailFetch marks the last request for the key as failed. Previously merged
// data is untouched: stale-but-present beats a blank view.
func (s *Store) FailFetch(key Key, message string) {
	s.setFetchState(key, FetchState{Phase: PhaseFailure, Message: message})
}

func (s *Store) setFetchState(key Key, state FetchState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetch[key] == state {
		return
	}
	s.fetch[key] = state
	s.rev++
}

// SetDraft stores the draft for its submission, overwriting any existing one.
func (s *Store) SetDraft(draft domain.DraftNote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if draft.SubmissionID <= 0 {
		return
	}
	s.drafts[draft.SubmissionID] = draft.Clone()
	s.rev++
}

// RemoveDraft drops the submission's draft, if any.
func (s *Store) RemoveDraft(submissionID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.drafts[submissionID]; !ok {
		return
	}
	delete(s.drafts, submissionID)
	s.rev++
}

// ClearExternalChange acknowledges an externally observed status change.
func (s *Store) ClearExternalChange(submissionID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.external[submissionID]; !ok {
		return
	}
	delete(s.external, submissionID)
	s.rev++
}

func dedupeIDs(subs []domain.Submission) []int {
	ids := make([]int, 0, len(subs))
	seen := map[int]struct{}{}
	for _, sub := range subs {
		if sub.ID <= 0 {
			continue
		}
		if _, ok := seen[sub.ID]; ok {
			continue
		}
		seen[sub.ID] = struct{}{}
		ids = append(ids, sub.ID)
	}
	return ids
}

func submissionEqual(a, b domain.Submission) bool {
	if a.ID != b.ID || a.Title != b.Title || a.Status != b.Status || a.ChangedLocally != b.ChangedLocally {
		return false
	}
	if (a.Round == nil) != (b.Round == nil) {
		return false
	}
	if a.Round != nil && *a.Round != *b.Round {
		return false
	}
	return slices.Equal(a.Actions, b.Actions) && slices.Equal(a.CommentIDs, b.CommentIDs)
}

func noteEqual(a, b domain.Note) bool {
	if a.ID != b.ID || a.SubmissionID != b.SubmissionID || a.Author != b.Author || a.Message != b.Message || a.Editable != b.Editable {
		return false
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return false
	}
	if (a.EditedAt == nil) != (b.EditedAt == nil) {
		return false
	}
	return a.EditedAt == nil || a.EditedAt.Equal(*b.EditedAt)
}
