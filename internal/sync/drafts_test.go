package sync

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/hylla/ansok/internal/domain"
)

func TestStartDraftOverwritesExisting(t *testing.T) {
	svc, cache := newTestService(&fakeAPI{})

	svc.StartDraft(101)
	svc.UpdateDraft(101, "half-written thought")
	svc.StartDraft(101)

	draft, ok := cache.DraftForSubmission(101)
	if !ok {
		t.Fatal("draft missing")
	}
	if draft.Message != "" {
		t.Fatalf("draft message = %q, want fresh draft", draft.Message)
	}
}

func TestStartEditSeedsFromNote(t *testing.T) {
	svc, cache := newTestService(&fakeAPI{})
	cache.UpsertNote(domain.Note{ID: 11, SubmissionID: 101, Message: "original text", CreatedAt: time.Now().UTC(), Editable: true})

	draft, err := svc.StartEdit(101, 11)
	if err != nil {
		t.Fatalf("StartEdit: %v", err)
	}
	if !draft.Editing() || draft.Message != "original text" {
		t.Fatalf("draft = %+v", draft)
	}
}

func TestStartEditUnknownNote(t *testing.T) {
	svc, _ := newTestService(&fakeAPI{})
	if _, err := svc.StartEdit(101, 404); !errors.Is(err, domain.ErrUnknownNote) {
		t.Fatalf("err = %v, want ErrUnknownNote", err)
	}
}

func TestUpdateDraftClearsError(t *testing.T) {
	svc, cache := newTestService(&fakeAPI{})
	cache.SetDraft(domain.DraftNote{SubmissionID: 101, Message: "retry me", Err: "service unavailable"})

	svc.UpdateDraft(101, "retry me, edited")

	draft, _ := cache.DraftForSubmission(101)
	if draft.Err != "" {
		t.Fatalf("err = %q, want cleared on edit", draft.Err)
	}
	if draft.Message != "retry me, edited" {
		t.Fatalf("message = %q", draft.Message)
	}
}

func TestSubmitDraftWithoutDraft(t *testing.T) {
	svc, _ := newTestService(&fakeAPI{})
	if err := svc.SubmitDraft(context.Background(), 101); !errors.Is(err, domain.ErrNoDraft) {
		t.Fatalf("err = %v, want ErrNoDraft", err)
	}
}

func TestSubmitDraftFailureKeepsText(t *testing.T) {
	api := &fakeAPI{
		createNote: func(context.Context, int, NoteBody) (domain.Note, error) {
			return domain.Note{}, errors.New("CSRF token missing or incorrect.")
		},
	}
	svc, cache := newTestService(api)

	svc.StartDraft(101)
	svc.UpdateDraft(101, "do not lose this")
	if err := svc.SubmitDraft(context.Background(), 101); err == nil {
		t.Fatal("submit should fail")
	}

	draft, ok := cache.DraftForSubmission(101)
	if !ok {
		t.Fatal("draft discarded on failure")
	}
	if draft.Message != "do not lose this" {
		t.Fatalf("message = %q, reviewer text was lost", draft.Message)
	}
	if draft.Submitting {
		t.Fatal("draft stuck in submitting state")
	}
	if draft.Err != "CSRF token missing or incorrect." {
		t.Fatalf("err = %q, want server detail verbatim", draft.Err)
	}
}

func TestSubmitDraftCreatePrependsNoteID(t *testing.T) {
	now := time.Now().UTC()
	api := &fakeAPI{
		createNote: func(_ context.Context, submissionID int, body NoteBody) (domain.Note, error) {
			if body.Visibility != "internal" {
				t.Fatalf("visibility = %q, want internal", body.Visibility)
			}
			return domain.Note{ID: 9, SubmissionID: submissionID, Message: body.Message, CreatedAt: now, Editable: true}, nil
		},
	}
	svc, cache := newTestService(api)
	cache.MergeSubmission(domain.Submission{ID: 101, Status: "submitted"})
	cache.MergeNotesFromList(101, []domain.Note{
		{ID: 5, SubmissionID: 101, Message: "existing", CreatedAt: now.Add(-time.Hour)},
	})

	svc.StartDraft(101)
	svc.UpdateDraft(101, "fresh note")
	if err := svc.SubmitDraft(context.Background(), 101); err != nil {
		t.Fatalf("SubmitDraft: %v", err)
	}

	sub, _ := cache.Submission(101)
	if !slices.Equal(sub.CommentIDs, []int{9, 5}) {
		t.Fatalf("CommentIDs = %v, want [9 5]", sub.CommentIDs)
	}
}

func TestSubmitDraftEditUpdatesInPlace(t *testing.T) {
	now := time.Now().UTC()
	edited := now.Add(time.Minute)
	api := &fakeAPI{
		editNote: func(_ context.Context, noteID int, body NoteBody) (domain.Note, error) {
			if noteID != 5 {
				t.Fatalf("edit target = %d, want 5", noteID)
			}
			return domain.Note{ID: 5, SubmissionID: 101, Message: body.Message, CreatedAt: now, EditedAt: &edited, Editable: true}, nil
		},
	}
	svc, cache := newTestService(api)
	cache.MergeSubmission(domain.Submission{ID: 101, Status: "submitted"})
	cache.MergeNotesFromList(101, []domain.Note{
		{ID: 5, SubmissionID: 101, Message: "first version", CreatedAt: now, Editable: true},
	})

	if _, err := svc.StartEdit(101, 5); err != nil {
		t.Fatalf("StartEdit: %v", err)
	}
	svc.UpdateDraft(101, "second version")
	if err := svc.SubmitDraft(context.Background(), 101); err != nil {
		t.Fatalf("SubmitDraft: %v", err)
	}

	sub, _ := cache.Submission(101)
	if !slices.Equal(sub.CommentIDs, []int{5}) {
		t.Fatalf("CommentIDs = %v, edit must not prepend", sub.CommentIDs)
	}
	note, _ := cache.Note(5)
	if note.Message != "second version" || note.EditedAt == nil {
		t.Fatalf("note = %+v", note)
	}
	if _, ok := cache.DraftForSubmission(101); ok {
		t.Fatal("draft should be removed after a successful edit")
	}
}
