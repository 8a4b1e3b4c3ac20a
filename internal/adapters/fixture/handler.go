package fixture

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed
// request handling.
const maxRequestBodyBytes int64 = 1 << 20

// Handler serves the review API surface the console's client consumes.
type Handler struct {
	db    *sql.DB
	clock func() time.Time
}

// NewHandler constructs the fixture API handler. A nil clock uses time.Now.
func NewHandler(db *sql.DB, clock func() time.Time) *Handler {
	if clock == nil {
		clock = time.Now
	}
	return &Handler{db: db, clock: clock}
}

// availableActions mirrors the transitions the real service offers per
// status. The fixture only needs enough to exercise the client.
var availableActions = map[string][]wireAction{
	"draft":           {{Value: "submitted", Display: "Submit"}},
	"submitted":       {{Value: "in_discussion", Display: "Open Discussion"}, {Value: "rejected", Display: "Reject"}},
	"in_discussion":   {{Value: "internal_review", Display: "Internal Review"}, {Value: "rejected", Display: "Reject"}},
	"internal_review": {{Value: "external_review", Display: "External Review"}, {Value: "accepted", Display: "Accept"}},
	"external_review": {{Value: "accepted", Display: "Accept"}, {Value: "rejected", Display: "Reject"}},
}

type wireAction struct {
	Value   string `json:"value"`
	Display string `json:"display"`
}

type wireSubmission struct {
	ID      int          `json:"id"`
	Title   string       `json:"title"`
	Status  string       `json:"status"`
	Round   *int         `json:"round"`
	Actions []wireAction `json:"actions"`
}

type wireNote struct {
	ID         int        `json:"id"`
	Submission int        `json:"submission"`
	User       string     `json:"user"`
	Message    string     `json:"message"`
	Timestamp  time.Time  `json:"timestamp"`
	Edited     *time.Time `json:"edited"`
	Editable   bool       `json:"editable"`
}

type noteBody struct {
	Message    string `json:"message"`
	Visibility string `json:"visibility"`
}

// ServeHTTP routes one API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(r.URL.Path, "/")
	segments := strings.Split(path, "/")

	switch {
	case path == "submissions":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleListSubmissions(w, r)
	case len(segments) == 3 && segments[0] == "submissions" && segments[2] == "comments":
		submissionID, err := strconv.Atoi(segments[1])
		if err != nil {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		switch r.Method {
		case http.MethodGet:
			h.handleListNotes(w, r, submissionID)
		case http.MethodPost:
			h.handleCreateNote(w, r, submissionID)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	case len(segments) == 2 && segments[0] == "comments":
		noteID, err := strconv.Atoi(segments[1])
		if err != nil {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		switch r.Method {
		case http.MethodPatch, http.MethodPut:
			h.handleEditNote(w, r, noteID)
		default:
			writeMethodNotAllowed(w, http.MethodPatch, http.MethodPut)
		}
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// handleListSubmissions serves GET `/submissions/` filtered by round or
// status query parameters.
func (h *Handler) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	query := `SELECT id, title, status, round FROM submissions`
	var (
		clauses []string
		args    []any
	)
	if raw := strings.TrimSpace(r.URL.Query().Get("round")); raw != "" {
		roundID, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "round must be an integer")
			return
		}
		clauses = append(clauses, "round = ?")
		args = append(args, roundID)
	}
	if statuses := r.URL.Query()["status"]; len(statuses) > 0 {
		placeholders := make([]string, 0, len(statuses))
		for _, status := range statuses {
			placeholders = append(placeholders, "?")
			args = append(args, strings.TrimSpace(strings.ToLower(status)))
		}
		clauses = append(clauses, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id"

	rows, err := h.db.Query(query, args...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query submissions failed")
		return
	}
	defer func() { _ = rows.Close() }()

	results := make([]wireSubmission, 0)
	for rows.Next() {
		var (
			sub   wireSubmission
			round sql.NullInt64
		)
		if err := rows.Scan(&sub.ID, &sub.Title, &sub.Status, &round); err != nil {
			writeError(w, http.StatusInternalServerError, "scan submission failed")
			return
		}
		if round.Valid {
			value := int(round.Int64)
			sub.Round = &value
		}
		sub.Actions = availableActions[sub.Status]
		if sub.Actions == nil {
			sub.Actions = []wireAction{}
		}
		results = append(results, sub)
	}
	if err := rows.Err(); err != nil {
		writeError(w, http.StatusInternalServerError, "iterate submissions failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// handleListNotes serves GET `/submissions/{id}/comments/` newest-first.
func (h *Handler) handleListNotes(w http.ResponseWriter, r *http.Request, submissionID int) {
	if !h.submissionExists(submissionID) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("submission %d not found", submissionID))
		return
	}
	limit := 1000
	if raw := strings.TrimSpace(r.URL.Query().Get("page_size")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "page_size must be a positive integer")
			return
		}
		limit = parsed
	}

	rows, err := h.db.Query(
		`SELECT id, submission_id, author, message, created_at, edited_at
		   FROM notes WHERE submission_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		submissionID, limit,
	)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query notes failed")
		return
	}
	defer func() { _ = rows.Close() }()

	results := make([]wireNote, 0)
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "scan note failed")
			return
		}
		results = append(results, note)
	}
	if err := rows.Err(); err != nil {
		writeError(w, http.StatusInternalServerError, "iterate notes failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// handleCreateNote serves POST `/submissions/{id}/comments/`.
func (h *Handler) handleCreateNote(w http.ResponseWriter, r *http.Request, submissionID int) {
	if !requireCSRF(w, r) {
		return
	}
	if !h.submissionExists(submissionID) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("submission %d not found", submissionID))
		return
	}
	body, ok := decodeNoteBody(w, r)
	if !ok {
		return
	}

	createdAt := h.clock().UTC()
	result, err := h.db.Exec(
		`INSERT INTO notes (submission_id, author, message, created_at) VALUES (?, ?, ?, ?)`,
		submissionID, authorFor(r), body.Message, createdAt,
	)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "insert note failed")
		return
	}
	noteID, err := result.LastInsertId()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "resolve note id failed")
		return
	}
	writeJSON(w, http.StatusCreated, wireNote{
		ID:         int(noteID),
		Submission: submissionID,
		User:       authorFor(r),
		Message:    body.Message,
		Timestamp:  createdAt,
		Editable:   true,
	})
}

// handleEditNote serves PATCH `/comments/{id}/`.
func (h *Handler) handleEditNote(w http.ResponseWriter, r *http.Request, noteID int) {
	if !requireCSRF(w, r) {
		return
	}
	body, ok := decodeNoteBody(w, r)
	if !ok {
		return
	}

	editedAt := h.clock().UTC()
	result, err := h.db.Exec(
		`UPDATE notes SET message = ?, edited_at = ? WHERE id = ?`,
		body.Message, editedAt, noteID,
	)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "update note failed")
		return
	}
	affected, err := result.RowsAffected()
	if err != nil || affected == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("note %d not found", noteID))
		return
	}

	row := h.db.QueryRow(
		`SELECT id, submission_id, author, message, created_at, edited_at FROM notes WHERE id = ?`,
		noteID,
	)
	note, err := scanNote(row)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "reload note failed")
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (h *Handler) submissionExists(id int) bool {
	var found int
	err := h.db.QueryRow(`SELECT 1 FROM submissions WHERE id = ?`, id).Scan(&found)
	return err == nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (wireNote, error) {
	var (
		note     wireNote
		editedAt sql.NullTime
	)
	if err := row.Scan(&note.ID, &note.Submission, &note.User, &note.Message, &note.Timestamp, &editedAt); err != nil {
		return wireNote{}, err
	}
	if editedAt.Valid {
		ts := editedAt.Time
		note.Edited = &ts
	}
	note.Editable = true
	return note, nil
}

// requireCSRF enforces the double-submit anti-forgery check on mutating
// requests: the `csrftoken` cookie must be present and match the
// `X-CSRFToken` header.
func requireCSRF(w http.ResponseWriter, r *http.Request) bool {
	cookie, err := r.Cookie("csrftoken")
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		writeError(w, http.StatusForbidden, "CSRF cookie not set.")
		return false
	}
	if r.Header.Get("X-CSRFToken") != cookie.Value {
		writeError(w, http.StatusForbidden, "CSRF token missing or incorrect.")
		return false
	}
	return true
}

func decodeNoteBody(w http.ResponseWriter, r *http.Request) (noteBody, bool) {
	var body noteBody
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err := decoder.Decode(&body); err != nil {
		if errors.Is(err, http.ErrHandlerTimeout) {
			writeError(w, http.StatusRequestTimeout, "request timed out")
			return noteBody{}, false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return noteBody{}, false
	}
	if strings.TrimSpace(body.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return noteBody{}, false
	}
	return body, true
}

// authorFor derives the acting reviewer from the request. The fixture has no
// real auth; a header stands in for the session user.
func authorFor(r *http.Request) string {
	if author := strings.TrimSpace(r.Header.Get("X-Reviewer")); author != "" {
		return author
	}
	return "reviewer"
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeMethodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
