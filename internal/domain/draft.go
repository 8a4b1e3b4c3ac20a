package domain

// DraftNote is the unsaved note body a reviewer is composing for one
// submission. At most one draft exists per submission; it is exclusively owned
// by the local editing session and never merged with concurrent edits from
// other reviewers.
type DraftNote struct {
	SubmissionID int
	// NoteID is set when the draft edits an existing note, nil when creating.
	NoteID     *int
	Message    string
	Submitting bool
	Err        string
}

// Editing reports whether the draft targets an existing note.
func (d DraftNote) Editing() bool {
	return d.NoteID != nil
}

// Clone returns a copy safe to hand outside the cache.
func (d DraftNote) Clone() DraftNote {
	out := d
	if d.NoteID != nil {
		id := *d.NoteID
		out.NoteID = &id
	}
	return out
}
