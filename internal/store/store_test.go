package store

import (
	"slices"
	"testing"
	"time"

	"github.com/hylla/ansok/internal/domain"
)

func intPtr(v int) *int { return &v }

func noteAt(id, submissionID int, message string, createdAt time.Time) domain.Note {
	return domain.Note{
		ID:           id,
		SubmissionID: submissionID,
		Author:       "maria",
		Message:      message,
		CreatedAt:    createdAt,
		Editable:     true,
	}
}

func TestMergeSubmissionIsIdempotent(t *testing.T) {
	s := New()
	payload := domain.Submission{ID: 101, Title: "Mesh Network", Status: "submitted", Round: intPtr(7)}

	s.MergeSubmission(payload)
	rev := s.Revision()
	s.MergeSubmission(payload)

	if s.Revision() != rev {
		t.Fatalf("revision moved from %d to %d on identical re-merge", rev, s.Revision())
	}
	got, ok := s.Submission(101)
	if !ok {
		t.Fatal("submission missing after merge")
	}
	if got.Title != "Mesh Network" || got.Status != "submitted" {
		t.Fatalf("unexpected merged record: %+v", got)
	}
}

func TestMergeSubmissionPreservesCacheOwnedFields(t *testing.T) {
	s := New()
	s.MergeSubmission(domain.Submission{ID: 101, Title: "Mesh Network", Status: "submitted"})
	now := time.Now().UTC()
	s.MergeNotesFromList(101, []domain.Note{noteAt(5, 101, "hi", now)})
	s.MarkChangedLocally(101, true)

	// A fresh list payload carries neither CommentIDs nor the local flag.
	s.MergeSubmission(domain.Submission{ID: 101, Title: "Mesh Network v2", Status: "submitted"})

	got, _ := s.Submission(101)
	if got.Title != "Mesh Network v2" {
		t.Fatalf("server field not overwritten: %+v", got)
	}
	if !slices.Equal(got.CommentIDs, []int{5}) {
		t.Fatalf("CommentIDs = %v, want preserved [5]", got.CommentIDs)
	}
	if !got.ChangedLocally {
		t.Fatal("ChangedLocally should survive a merge without status change")
	}
}

func TestMergeSubmissionDetectsExternalStatusChange(t *testing.T) {
	s := New()
	s.MergeSubmission(domain.Submission{ID: 101, Status: "submitted"})

	s.MergeSubmission(domain.Submission{ID: 101, Status: "accepted"})

	status, ok := s.ExternalChangeFor(101)
	if !ok || status != "accepted" {
		t.Fatalf("external change = (%q, %t), want (accepted, true)", status, ok)
	}

	s.ClearExternalChange(101)
	if _, ok := s.ExternalChangeFor(101); ok {
		t.Fatal("external change should clear on acknowledgement")
	}
}

func TestMergeSubmissionLocalChangeIsNotExternal(t *testing.T) {
	s := New()
	s.MergeSubmission(domain.Submission{ID: 101, Status: "submitted"})
	s.MarkChangedLocally(101, true)

	// The poll delivers our own pending action landing on the server.
	s.MergeSubmission(domain.Submission{ID: 101, Status: "accepted"})

	if _, ok := s.ExternalChangeFor(101); ok {
		t.Fatal("locally initiated change flagged as external")
	}
	got, _ := s.Submission(101)
	if got.ChangedLocally {
		t.Fatal("ChangedLocally should reset once the change lands")
	}
}

func TestMergeNotesFromListOwnsOrdering(t *testing.T) {
	s := New()
	s.MergeSubmission(domain.Submission{ID: 101, Status: "submitted"})
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	// The server returns newest-first: n3, n1, n2.
	s.MergeNotesFromList(101, []domain.Note{
		noteAt(3, 101, "third", base.Add(2*time.Minute)),
		noteAt(1, 101, "first", base),
		noteAt(2, 101, "second", base.Add(time.Minute)),
	})

	got, _ := s.Submission(101)
	if !slices.Equal(got.CommentIDs, []int{3, 1, 2}) {
		t.Fatalf("CommentIDs = %v, want fetched order [3 1 2]", got.CommentIDs)
	}

	// Merging the submission record again must not disturb the listing.
	s.MergeSubmission(domain.Submission{ID: 101, Title: "renamed", Status: "submitted"})
	got, _ = s.Submission(101)
	if !slices.Equal(got.CommentIDs, []int{3, 1, 2}) {
		t.Fatalf("CommentIDs after submission merge = %v", got.CommentIDs)
	}

	notes := s.NotesForSubmission(101)
	if len(notes) != 3 {
		t.Fatalf("len(notes) = %d, want 3", len(notes))
	}
	if notes[0].ID != 3 || notes[1].ID != 2 || notes[2].ID != 1 {
		t.Fatalf("notes not newest-first: %d %d %d", notes[0].ID, notes[1].ID, notes[2].ID)
	}
}

func TestMergeNotesFromListCreatesSkeletonSubmission(t *testing.T) {
	s := New()
	s.MergeNotesFromList(555, []domain.Note{noteAt(9, 555, "early", time.Now().UTC())})

	got, ok := s.Submission(555)
	if !ok {
		t.Fatal("notes for an unknown submission should create a skeleton record")
	}
	if !slices.Equal(got.CommentIDs, []int{9}) {
		t.Fatalf("skeleton CommentIDs = %v", got.CommentIDs)
	}
}

func TestAppendNoteIDPrepends(t *testing.T) {
	s := New()
	s.MergeSubmission(domain.Submission{ID: 101, Status: "submitted"})
	s.MergeNotesFromList(101, []domain.Note{noteAt(5, 101, "old", time.Now().UTC())})

	s.AppendNoteID(101, 9)
	got, _ := s.Submission(101)
	if !slices.Equal(got.CommentIDs, []int{9, 5}) {
		t.Fatalf("CommentIDs = %v, want [9 5]", got.CommentIDs)
	}

	rev := s.Revision()
	s.AppendNoteID(101, 9)
	if s.Revision() != rev {
		t.Fatal("re-appending an existing note id should be a no-op")
	}

	s.AppendNoteID(404, 1)
	if _, ok := s.Submission(404); ok {
		t.Fatal("append for an unknown submission should not create a record")
	}
}

func TestFetchLifecycle(t *testing.T) {
	s := New()
	key := RoundKey(7)

	if state := s.FetchStateFor(key); state.Phase != PhaseIdle {
		t.Fatalf("initial phase = %v, want idle", state.Phase)
	}

	s.BeginFetch(key)
	if state := s.FetchStateFor(key); !state.Pending() {
		t.Fatalf("phase after begin = %v, want pending", state.Phase)
	}

	s.MergeRoundListing(7, []domain.Submission{{ID: 101, Status: "submitted"}})
	s.FailFetch(key, "service unavailable")

	state := s.FetchStateFor(key)
	if !state.Failed() || state.Message != "service unavailable" {
		t.Fatalf("failure state = %+v", state)
	}
	if subs := s.SubmissionsForRound(7); len(subs) != 1 {
		t.Fatal("failure must not clear previously merged data")
	}

	s.FinishFetch(key)
	if state := s.FetchStateFor(key); state.Phase != PhaseSuccess || state.Message != "" {
		t.Fatalf("success state = %+v", state)
	}
}

func TestStatusesKeyIsOrderInsensitive(t *testing.T) {
	a := StatusesKey([]domain.Status{"submitted", "accepted"})
	b := StatusesKey([]domain.Status{"Accepted", " submitted"})
	if a != b {
		t.Fatalf("keys differ: %q vs %q", a, b)
	}
}

func TestMergeStatusListingRebuildsOnlyRequestedBuckets(t *testing.T) {
	s := New()
	s.MergeStatusListing([]domain.Status{"submitted"}, []domain.Submission{
		{ID: 101, Status: "submitted"},
		{ID: 102, Status: "submitted"},
	})
	s.MergeStatusListing([]domain.Status{"accepted"}, []domain.Submission{
		{ID: 103, Status: "accepted"},
	})

	// A narrower refetch for submitted must leave the accepted bucket alone.
	s.MergeStatusListing([]domain.Status{"submitted"}, []domain.Submission{
		{ID: 102, Status: "submitted"},
	})

	s.SetCurrentStatuses([]domain.Status{"accepted"})
	if ids := s.SubmissionIDsForCurrentStatuses(); !slices.Equal(ids, []int{103}) {
		t.Fatalf("accepted bucket = %v, want [103]", ids)
	}
	s.SetCurrentStatuses([]domain.Status{"submitted"})
	if ids := s.SubmissionIDsForCurrentStatuses(); !slices.Equal(ids, []int{102}) {
		t.Fatalf("submitted bucket = %v, want [102]", ids)
	}
}

func TestCurrentStatusUnion(t *testing.T) {
	s := New()
	s.MergeStatusListing([]domain.Status{"submitted", "in_discussion"}, []domain.Submission{
		{ID: 101, Status: "submitted"},
		{ID: 102, Status: "in_discussion"},
	})
	s.MergeStatusListing([]domain.Status{"accepted"}, []domain.Submission{
		{ID: 103, Status: "accepted"},
	})

	s.SetCurrentStatuses([]domain.Status{"in_discussion", "accepted"})
	if ids := s.SubmissionIDsForCurrentStatuses(); !slices.Equal(ids, []int{102, 103}) {
		t.Fatalf("union = %v, want [102 103]", ids)
	}

	// Empty current set means every known bucket, in first-seen bucket order.
	s.SetCurrentStatuses(nil)
	if ids := s.SubmissionIDsForCurrentStatuses(); !slices.Equal(ids, []int{101, 102, 103}) {
		t.Fatalf("empty-set union = %v, want [101 102 103]", ids)
	}
}

func TestDraftLifecycleInStore(t *testing.T) {
	s := New()
	s.SetDraft(domain.DraftNote{SubmissionID: 101, Message: "wip"})

	draft, ok := s.DraftForSubmission(101)
	if !ok || draft.Message != "wip" {
		t.Fatalf("draft = (%+v, %t)", draft, ok)
	}

	// Overwrite wins; there is never more than one draft per submission.
	s.SetDraft(domain.DraftNote{SubmissionID: 101, Message: "rewritten"})
	draft, _ = s.DraftForSubmission(101)
	if draft.Message != "rewritten" {
		t.Fatalf("draft message = %q", draft.Message)
	}

	s.RemoveDraft(101)
	if _, ok := s.DraftForSubmission(101); ok {
		t.Fatal("draft should be gone after removal")
	}
}

func TestSelectorsReturnCopies(t *testing.T) {
	s := New()
	s.MergeSubmission(domain.Submission{ID: 101, Status: "submitted"})
	s.MergeNotesFromList(101, []domain.Note{noteAt(5, 101, "hi", time.Now().UTC())})

	got, _ := s.Submission(101)
	got.CommentIDs[0] = 999

	again, _ := s.Submission(101)
	if again.CommentIDs[0] != 5 {
		t.Fatal("selector handed out a slice aliasing cache internals")
	}
}
