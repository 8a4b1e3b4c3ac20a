// Package api implements the HTTP fetch boundary of the review console: a
// thin JSON client for the remote review service that parses entities off the
// wire and surfaces server-provided error detail verbatim.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hylla/ansok/internal/domain"
	appsync "github.com/hylla/ansok/internal/sync"
)

// defaultPageSize requests the whole notes listing in one page.
const defaultPageSize = 1000

// defaultTimeout bounds each request so a hung server cannot pin a fetch key
// in the pending phase forever.
const defaultTimeout = 15 * time.Second

// Config holds client construction values.
type Config struct {
	BaseURL   string
	CSRFToken string
	PageSize  int
	Timeout   time.Duration
}

// Client talks to the remote review API. It implements sync.API.
type Client struct {
	base      *url.URL
	http      *http.Client
	csrfToken string
	pageSize  int
}

// New constructs a client for the configured base URL.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", cfg.BaseURL)
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		base:      base,
		http:      &http.Client{Timeout: timeout},
		csrfToken: strings.TrimSpace(cfg.CSRFToken),
		pageSize:  pageSize,
	}, nil
}

// APIError is one non-2xx response with its server-provided detail.
type APIError struct {
	StatusCode int
	Detail     string
}

// Error returns the server detail verbatim; that text is shown to reviewers.
func (e *APIError) Error() string {
	if strings.TrimSpace(e.Detail) != "" {
		return e.Detail
	}
	return fmt.Sprintf("unexpected response status %d", e.StatusCode)
}

// wireSubmission mirrors the server's submission serialization.
type wireSubmission struct {
	ID      int          `json:"id"`
	Title   string       `json:"title"`
	Status  string       `json:"status"`
	Round   *int         `json:"round"`
	Actions []wireAction `json:"actions"`
}

type wireAction struct {
	Value   string `json:"value"`
	Display string `json:"display"`
}

// wireNote mirrors the server's note serialization.
type wireNote struct {
	ID         int        `json:"id"`
	Submission int        `json:"submission"`
	User       string     `json:"user"`
	Message    string     `json:"message"`
	Timestamp  time.Time  `json:"timestamp"`
	Edited     *time.Time `json:"edited"`
	Editable   bool       `json:"editable"`
}

type submissionListEnvelope struct {
	Results []wireSubmission `json:"results"`
}

type noteListEnvelope struct {
	Results []wireNote `json:"results"`
}

// FetchSubmissionsByRound lists the submissions assigned to one round.
func (c *Client) FetchSubmissionsByRound(ctx context.Context, roundID int) ([]domain.Submission, error) {
	params := url.Values{}
	params.Set("round", strconv.Itoa(roundID))
	var envelope submissionListEnvelope
	if err := c.get(ctx, "/submissions/", params, &envelope); err != nil {
		return nil, fmt.Errorf("fetch submissions for round %d: %w", roundID, err)
	}
	return toSubmissions(envelope.Results), nil
}

// FetchSubmissionsByStatuses lists submissions across a status set.
func (c *Client) FetchSubmissionsByStatuses(ctx context.Context, statuses []domain.Status) ([]domain.Submission, error) {
	params := url.Values{}
	for _, status := range domain.NormalizeStatuses(statuses) {
		params.Add("status", string(status))
	}
	var envelope submissionListEnvelope
	if err := c.get(ctx, "/submissions/", params, &envelope); err != nil {
		return nil, fmt.Errorf("fetch submissions by statuses: %w", err)
	}
	return toSubmissions(envelope.Results), nil
}

// FetchNotes lists a submission's notes in one page.
func (c *Client) FetchNotes(ctx context.Context, submissionID int) ([]domain.Note, error) {
	params := url.Values{}
	params.Set("page_size", strconv.Itoa(c.pageSize))
	path := fmt.Sprintf("/submissions/%d/comments/", submissionID)
	var envelope noteListEnvelope
	if err := c.get(ctx, path, params, &envelope); err != nil {
		return nil, fmt.Errorf("fetch notes for submission %d: %w", submissionID, err)
	}
	notes := make([]domain.Note, 0, len(envelope.Results))
	for _, note := range envelope.Results {
		notes = append(notes, toNote(note, submissionID))
	}
	return notes, nil
}

// CreateNote posts a new note and returns the server-confirmed record with
// its assigned id.
func (c *Client) CreateNote(ctx context.Context, submissionID int, body appsync.NoteBody) (domain.Note, error) {
	path := fmt.Sprintf("/submissions/%d/comments/", submissionID)
	var created wireNote
	if err := c.send(ctx, http.MethodPost, path, body, &created); err != nil {
		return domain.Note{}, fmt.Errorf("create note for submission %d: %w", submissionID, err)
	}
	return toNote(created, submissionID), nil
}

// EditNote patches an existing note in place.
func (c *Client) EditNote(ctx context.Context, noteID int, body appsync.NoteBody) (domain.Note, error) {
	path := fmt.Sprintf("/comments/%d/", noteID)
	var updated wireNote
	if err := c.send(ctx, http.MethodPatch, path, body, &updated); err != nil {
		return domain.Note{}, fmt.Errorf("edit note %d: %w", noteID, err)
	}
	return toNote(updated, updated.Submission), nil
}

// get performs one JSON GET and decodes the response into out.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

// send performs one mutating JSON exchange carrying the anti-forgery token.
func (c *Client) send(ctx context.Context, method, path string, body any, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}
	req, err := c.newRequest(ctx, method, path, nil, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.csrfToken != "" {
		req.Header.Set("X-CSRFToken", c.csrfToken)
		req.AddCookie(&http.Cookie{Name: "csrftoken", Value: c.csrfToken})
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, params url.Values, body io.Reader) (*http.Request, error) {
	target := *c.base
	target.Path = strings.TrimRight(target.Path, "/") + path
	if params != nil {
		target.RawQuery = params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s request: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	content, err := io.ReadAll(io.LimitReader(resp.Body, 1<<22))
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Detail: errorDetail(content)}
	}
	if out == nil || len(content) == 0 {
		return nil
	}
	if err := json.Unmarshal(content, out); err != nil {
		return fmt.Errorf("decode response json: %w", err)
	}
	return nil
}

// errorDetail pulls the server's human-readable message out of an error body.
// The API uses `detail` for most failures and `error` for a few legacy ones.
func errorDetail(content []byte) string {
	var body struct {
		Detail string `json:"detail"`
		Err    string `json:"error"`
	}
	if err := json.Unmarshal(content, &body); err != nil {
		return ""
	}
	if strings.TrimSpace(body.Detail) != "" {
		return body.Detail
	}
	return strings.TrimSpace(body.Err)
}

func toSubmissions(wire []wireSubmission) []domain.Submission {
	out := make([]domain.Submission, 0, len(wire))
	for _, sub := range wire {
		out = append(out, toSubmission(sub))
	}
	return out
}

func toSubmission(wire wireSubmission) domain.Submission {
	actions := make([]domain.StatusAction, 0, len(wire.Actions))
	for _, action := range wire.Actions {
		actions = append(actions, domain.StatusAction{
			Target:  domain.NormalizeStatus(domain.Status(action.Value)),
			Display: action.Display,
		})
	}
	return domain.Submission{
		ID:      wire.ID,
		Title:   wire.Title,
		Status:  domain.NormalizeStatus(domain.Status(wire.Status)),
		Round:   wire.Round,
		Actions: actions,
	}
}

func toNote(wire wireNote, submissionID int) domain.Note {
	if wire.Submission != 0 {
		submissionID = wire.Submission
	}
	return domain.Note{
		ID:           wire.ID,
		SubmissionID: submissionID,
		Author:       wire.User,
		Message:      wire.Message,
		CreatedAt:    wire.Timestamp,
		EditedAt:     wire.Edited,
		Editable:     wire.Editable,
	}
}
