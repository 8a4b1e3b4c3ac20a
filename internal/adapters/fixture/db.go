// Package fixture is a small stand-in for the remote review service, used for
// local development and integration tests. It speaks the same wire contract
// the client consumes and keeps its records in sqlite.
package fixture

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS submissions (
    id INTEGER PRIMARY KEY,
    title TEXT NOT NULL,
    status TEXT NOT NULL,
    round INTEGER
);

CREATE INDEX IF NOT EXISTS idx_submissions_status ON submissions(status);
CREATE INDEX IF NOT EXISTS idx_submissions_round ON submissions(round);

CREATE TABLE IF NOT EXISTS notes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    submission_id INTEGER NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
    author TEXT NOT NULL,
    message TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    edited_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_notes_submission_id ON notes(submission_id);
`

// Open opens (creating if needed) the fixture database at path. The special
// value ":memory:" keeps everything in process memory.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open fixture db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure fixture schema: %w", err)
	}
	return db, nil
}

// Seed inserts a handful of demo submissions and notes so a fresh fixture has
// something to review. Safe to call repeatedly.
func Seed(db *sql.DB, now time.Time) error {
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM submissions`).Scan(&count); err != nil {
		return fmt.Errorf("count submissions: %w", err)
	}
	if count > 0 {
		return nil
	}

	seedSubmissions := []struct {
		id     int
		title  string
		status string
		round  any
	}{
		{101, "Community Mesh Network", "submitted", 7},
		{102, "Open Archive Toolkit", "in_discussion", 7},
		{103, "Localization Sprint", "internal_review", 7},
		{104, "Privacy Guide Translations", "draft", nil},
		{105, "Censorship Measurement Probes", "external_review", 8},
	}
	for _, sub := range seedSubmissions {
		if _, err := db.Exec(
			`INSERT INTO submissions (id, title, status, round) VALUES (?, ?, ?, ?)`,
			sub.id, sub.title, sub.status, sub.round,
		); err != nil {
			return fmt.Errorf("seed submission %d: %w", sub.id, err)
		}
	}

	seedNotes := []struct {
		submissionID int
		author       string
		message      string
	}{
		{102, "maria", "Budget looks light on hardware costs, flagging for discussion."},
		{102, "tomas", "Agreed, asked the applicant for a revised budget."},
		{103, "maria", "Strong proposal. Moving to internal review."},
	}
	for idx, note := range seedNotes {
		createdAt := now.UTC().Add(time.Duration(idx) * time.Minute)
		if _, err := db.Exec(
			`INSERT INTO notes (submission_id, author, message, created_at) VALUES (?, ?, ?, ?)`,
			note.submissionID, note.author, note.message, createdAt,
		); err != nil {
			return fmt.Errorf("seed note for submission %d: %w", note.submissionID, err)
		}
	}
	return nil
}
