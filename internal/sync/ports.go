package sync

import (
	"context"

	"github.com/hylla/ansok/internal/domain"
)

// API is the fetch boundary the effect layer talks through. Implementations
// perform the actual HTTP exchange; the service only sees parsed entities or
// an error whose message is fit to show a reviewer.
type API interface {
	FetchSubmissionsByRound(context.Context, int) ([]domain.Submission, error)
	FetchSubmissionsByStatuses(context.Context, []domain.Status) ([]domain.Submission, error)
	FetchNotes(context.Context, int) ([]domain.Note, error)
	CreateNote(context.Context, int, NoteBody) (domain.Note, error)
	EditNote(context.Context, int, NoteBody) (domain.Note, error)
}

// NoteBody is the write payload for note create/edit calls.
type NoteBody struct {
	Message    string `json:"message"`
	Visibility string `json:"visibility"`
}
