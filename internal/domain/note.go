package domain

import (
	"strings"
	"time"
)

// Note stores one reviewer note attached to a submission. The back-reference
// to the submission is informational; membership in a submission's listing is
// owned by the submission's CommentIDs.
type Note struct {
	ID           int
	SubmissionID int
	Author       string
	Message      string
	CreatedAt    time.Time
	EditedAt     *time.Time
	Editable     bool
}

// NoteInput holds input values for note creation.
type NoteInput struct {
	ID           int
	SubmissionID int
	Author       string
	Message      string
}

// NewNote constructs a normalized note.
func NewNote(in NoteInput, now time.Time) (Note, error) {
	if in.ID <= 0 {
		return Note{}, ErrInvalidID
	}
	if in.SubmissionID <= 0 {
		return Note{}, ErrInvalidSubmission
	}
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return Note{}, ErrInvalidMessage
	}
	author := strings.TrimSpace(in.Author)
	if author == "" {
		author = "reviewer"
	}
	return Note{
		ID:           in.ID,
		SubmissionID: in.SubmissionID,
		Author:       author,
		Message:      message,
		CreatedAt:    now.UTC(),
		Editable:     true,
	}, nil
}

// Edit replaces the note body in place, preserving the id.
func (n *Note) Edit(message string, now time.Time) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return ErrInvalidMessage
	}
	ts := now.UTC()
	n.Message = message
	n.EditedAt = &ts
	return nil
}

// Clone returns a copy safe to hand outside the cache.
func (n Note) Clone() Note {
	out := n
	if n.EditedAt != nil {
		ts := *n.EditedAt
		out.EditedAt = &ts
	}
	return out
}
