package sync

import (
	"context"
	"fmt"

	"github.com/hylla/ansok/internal/domain"
)

// The draft workflow per submission: no draft → drafting → submitting →
// committed or failed. Failure keeps the draft (and the reviewer's text) so
// the submit can be retried; nothing merged into the cache is rolled back.

// StartDraft opens a fresh draft for the submission, overwriting any draft
// already there. Last local editor action wins; keystrokes are never merged.
func (s *Service) StartDraft(submissionID int) domain.DraftNote {
	draft := domain.DraftNote{SubmissionID: submissionID}
	s.store.SetDraft(draft)
	return draft
}

// StartEdit opens a draft seeded from an existing note so submitting runs the
// edit operation instead of create.
func (s *Service) StartEdit(submissionID, noteID int) (domain.DraftNote, error) {
	note, ok := s.store.Note(noteID)
	if !ok {
		return domain.DraftNote{}, fmt.Errorf("start edit note %d: %w", noteID, domain.ErrUnknownNote)
	}
	id := noteID
	draft := domain.DraftNote{
		SubmissionID: submissionID,
		NoteID:       &id,
		Message:      note.Message,
	}
	s.store.SetDraft(draft)
	return draft, nil
}

// UpdateDraft replaces the draft body as the reviewer types.
func (s *Service) UpdateDraft(submissionID int, message string) {
	draft, ok := s.store.DraftForSubmission(submissionID)
	if !ok {
		draft = domain.DraftNote{SubmissionID: submissionID}
	}
	draft.Message = message
	draft.Err = ""
	s.store.SetDraft(draft)
}

// CancelDraft discards the draft with no network call.
func (s *Service) CancelDraft(submissionID int) {
	s.store.RemoveDraft(submissionID)
}

// SubmitDraft sends the draft to the server. On success the confirmed note is
// upserted, a created note's id is prepended to the submission's listing, and
// the draft is removed. On failure the draft is kept with the error recorded
// so the text survives for a retry.
func (s *Service) SubmitDraft(ctx context.Context, submissionID int) error {
	draft, ok := s.store.DraftForSubmission(submissionID)
	if !ok {
		return fmt.Errorf("submit draft for submission %d: %w", submissionID, domain.ErrNoDraft)
	}

	draft.Submitting = true
	draft.Err = ""
	s.store.SetDraft(draft)

	body := NoteBody{Message: draft.Message, Visibility: "internal"}
	var (
		note domain.Note
		err  error
	)
	if draft.Editing() {
		note, err = s.api.EditNote(ctx, *draft.NoteID, body)
	} else {
		note, err = s.api.CreateNote(ctx, submissionID, body)
	}
	if err != nil {
		draft.Submitting = false
		draft.Err = err.Error()
		s.store.SetDraft(draft)
		return err
	}

	s.store.UpsertNote(note)
	if !draft.Editing() {
		s.store.AppendNoteID(submissionID, note.ID)
	}
	s.store.RemoveDraft(submissionID)
	s.logger.Debug("draft committed", "submission", submissionID, "note", note.ID, "edited", draft.Editing())
	return nil
}
