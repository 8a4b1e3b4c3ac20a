package store

import (
	"sort"
	"strings"

	"github.com/hylla/ansok/internal/domain"
)

// Selectors are pure reads over the cache. They never fail: absent data
// yields zero values or empty slices so the view always has something to
// render.

// Submission returns one cached submission by id.
func (s *Store) Submission(id int) (domain.Submission, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[id]
	if !ok {
		return domain.Submission{}, false
	}
	return sub.Clone(), true
}

// CurrentSubmission returns the submission the console has open.
func (s *Store) CurrentSubmission() (domain.Submission, bool) {
	s.mu.RLock()
	id := s.currentSubmission
	s.mu.RUnlock()
	if id == 0 {
		return domain.Submission{}, false
	}
	return s.Submission(id)
}

// CurrentSubmissionID returns the open submission id, zero when none.
func (s *Store) CurrentSubmissionID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentSubmission
}

// Round returns one cached round by id.
func (s *Store) Round(id int) (domain.Round, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	round, ok := s.rounds[id]
	if !ok {
		return domain.Round{}, false
	}
	return round.Clone(), true
}

// Note returns one cached note by id.
func (s *Store) Note(id int) (domain.Note, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	note, ok := s.notes[id]
	if !ok {
		return domain.Note{}, false
	}
	return note.Clone(), true
}

// NotesForSubmission returns the submission's notes newest-first by creation
// time. Unknown submissions yield an empty slice.
func (s *Store) NotesForSubmission(id int) []domain.Note {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[id]
	if !ok {
		return []domain.Note{}
	}
	out := make([]domain.Note, 0, len(sub.CommentIDs))
	for _, noteID := range sub.CommentIDs {
		note, ok := s.notes[noteID]
		if !ok {
			continue
		}
		out = append(out, note.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// CurrentStatuses returns the active status set shown by the listing view.
func (s *Store) CurrentStatuses() []domain.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Status, len(s.current))
	copy(out, s.current)
	return out
}

// SubmissionIDsForCurrentStatuses returns the union of the buckets for every
// active status, de-duplicated in first-seen order. When no statuses are
// active it returns the union across all known buckets; that is the
// documented default, not an omission.
func (s *Store) SubmissionIDsForCurrentStatuses() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	statuses := s.current
	if len(statuses) == 0 {
		statuses = s.statusOrder
	}
	out := make([]int, 0)
	seen := map[int]struct{}{}
	for _, status := range statuses {
		for _, id := range s.byStatus[status] {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// SubmissionsForCurrentStatuses resolves the current-status union into
// submission records, skipping ids with no cached record.
func (s *Store) SubmissionsForCurrentStatuses() []domain.Submission {
	ids := s.SubmissionIDsForCurrentStatuses()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Submission, 0, len(ids))
	for _, id := range ids {
		sub, ok := s.submissions[id]
		if !ok {
			continue
		}
		out = append(out, sub.Clone())
	}
	return out
}

// SubmissionsForRound resolves a round's membership into submission records.
func (s *Store) SubmissionsForRound(roundID int) []domain.Submission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	round, ok := s.rounds[roundID]
	if !ok {
		return []domain.Submission{}
	}
	out := make([]domain.Submission, 0, len(round.SubmissionIDs))
	for _, id := range round.SubmissionIDs {
		sub, ok := s.submissions[id]
		if !ok {
			continue
		}
		out = append(out, sub.Clone())
	}
	return out
}

// DraftForSubmission returns the active draft for a submission, if any.
func (s *Store) DraftForSubmission(id int) (domain.DraftNote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	draft, ok := s.drafts[id]
	if !ok {
		return domain.DraftNote{}, false
	}
	return draft.Clone(), true
}

// FetchStateFor returns the lifecycle state for a fetch key; unknown keys are
// idle.
func (s *Store) FetchStateFor(key Key) FetchState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetch[key]
}

// ExternalChangeFor reports a status change observed from a poll that did not
// originate locally. The view surfaces it as informational, not an error.
func (s *Store) ExternalChangeFor(submissionID int) (domain.Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.external[submissionID]
	return status, ok
}

// groupCache memoizes the grouped listing on the store revision so a poll
// that re-delivers identical data does not recompute groups every render.
type groupCache struct {
	rev    uint64
	key    string
	groups []Group
}

// GroupedSubmissions returns the current-status listing partitioned into the
// ordered groups described by specs. Results are memoized on the store
// revision and the spec fingerprint.
func (s *Store) GroupedSubmissions(groupBy GroupBy, specs []GroupSpec) []Group {
	fingerprint := groupFingerprint(groupBy, specs)

	s.mu.RLock()
	cached := s.groupCache
	rev := s.rev
	s.mu.RUnlock()
	if cached.groups != nil && cached.rev == rev && cached.key == fingerprint {
		return cached.groups
	}

	groups := GroupSubmissions(s.SubmissionsForCurrentStatuses(), groupBy, specs)

	s.mu.Lock()
	if s.rev == rev {
		s.groupCache = groupCache{rev: rev, key: fingerprint, groups: groups}
	}
	s.mu.Unlock()
	return groups
}

func groupFingerprint(groupBy GroupBy, specs []GroupSpec) string {
	var b strings.Builder
	b.WriteString(string(groupBy))
	for _, spec := range specs {
		b.WriteByte('|')
		b.WriteString(spec.Key)
		b.WriteByte('=')
		b.WriteString(strings.Join(spec.Values, ","))
	}
	return b.String()
}
