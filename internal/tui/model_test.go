package tui

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"

	"github.com/hylla/ansok/internal/domain"
	"github.com/hylla/ansok/internal/store"
)

// fakeService backs the model with a real cache and records which
// synchronization calls the model issues.
type fakeService struct {
	cache *store.Store

	loadRoundCalls    int
	loadStatusesCalls int
	loadNotesCalls    int
	submitErr         error
}

func newFakeService() *fakeService {
	return &fakeService{cache: store.New()}
}

func (f *fakeService) Store() *store.Store { return f.cache }

func (f *fakeService) LoadRound(context.Context, int) error {
	f.loadRoundCalls++
	return nil
}

func (f *fakeService) LoadStatuses(_ context.Context, statuses []domain.Status) error {
	f.loadStatusesCalls++
	f.cache.SetCurrentStatuses(statuses)
	return nil
}

func (f *fakeService) LoadNotes(context.Context, int) error {
	f.loadNotesCalls++
	return nil
}

func (f *fakeService) OpenSubmission(_ context.Context, submissionID int) error {
	f.cache.SetCurrentSubmission(submissionID)
	return f.LoadNotes(context.Background(), submissionID)
}

func (f *fakeService) StartDraft(submissionID int) domain.DraftNote {
	draft := domain.DraftNote{SubmissionID: submissionID}
	f.cache.SetDraft(draft)
	return draft
}

func (f *fakeService) StartEdit(submissionID, noteID int) (domain.DraftNote, error) {
	note, ok := f.cache.Note(noteID)
	if !ok {
		return domain.DraftNote{}, domain.ErrUnknownNote
	}
	id := noteID
	draft := domain.DraftNote{SubmissionID: submissionID, NoteID: &id, Message: note.Message}
	f.cache.SetDraft(draft)
	return draft, nil
}

func (f *fakeService) UpdateDraft(submissionID int, message string) {
	draft, ok := f.cache.DraftForSubmission(submissionID)
	if !ok {
		draft = domain.DraftNote{SubmissionID: submissionID}
	}
	draft.Message = message
	draft.Err = ""
	f.cache.SetDraft(draft)
}

func (f *fakeService) CancelDraft(submissionID int) {
	f.cache.RemoveDraft(submissionID)
}

func (f *fakeService) SubmitDraft(_ context.Context, submissionID int) error {
	if f.submitErr != nil {
		draft, _ := f.cache.DraftForSubmission(submissionID)
		draft.Err = f.submitErr.Error()
		f.cache.SetDraft(draft)
		return f.submitErr
	}
	f.cache.RemoveDraft(submissionID)
	return nil
}

func seedQueue(f *fakeService) {
	f.cache.MergeStatusListing([]domain.Status{"submitted", "in_discussion"}, []domain.Submission{
		{ID: 101, Title: "Community Mesh Network", Status: "submitted"},
		{ID: 102, Title: "Open Archive Toolkit", Status: "in_discussion"},
	})
	f.cache.SetCurrentStatuses([]domain.Status{"submitted", "in_discussion"})
}

func testLayout() []store.GroupSpec {
	return []store.GroupSpec{
		{Key: "incoming", Display: "Incoming", Values: []string{"draft", "submitted"}},
		{Key: "active", Display: "In Review", Values: []string{"in_discussion"}},
	}
}

func newTestModel(f *fakeService, opts ...Option) Model {
	base := []Option{
		WithStatuses([]domain.Status{"submitted", "in_discussion"}),
		WithGroupLayout(store.GroupByStatus, testLayout()),
		WithPollInterval(0),
	}
	m := NewModel(f, append(base, opts...)...)
	sized, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return sized.(Model)
}

func applyMsg(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return model, cmd
}

func TestAutoselectOpensFirstSubmissionOnce(t *testing.T) {
	f := newFakeService()
	seedQueue(f)
	m := newTestModel(f, WithAutoSelect(true))

	m, cmd := applyMsg(t, m, syncedMsg{})
	if cmd == nil {
		t.Fatal("first sync should trigger autoselection")
	}
	msg := cmd()
	if _, ok := msg.(notesSyncedMsg); !ok {
		t.Fatalf("autoselect cmd yielded %T", msg)
	}
	if got := f.cache.CurrentSubmissionID(); got != 101 {
		t.Fatalf("current submission = %d, want first of first group", got)
	}

	// The next poll cycle must not steal the selection back.
	f.cache.SetCurrentSubmission(102)
	m, cmd = applyMsg(t, m, syncedMsg{})
	if cmd != nil {
		t.Fatal("autoselect fired twice")
	}
	if f.cache.CurrentSubmissionID() != 102 {
		t.Fatal("selection was overridden by a later sync")
	}
	_ = m
}

func TestAutoselectDisabled(t *testing.T) {
	f := newFakeService()
	seedQueue(f)
	m := newTestModel(f, WithAutoSelect(false))

	_, cmd := applyMsg(t, m, syncedMsg{})
	if cmd != nil {
		t.Fatal("autoselect ran while disabled")
	}
	if f.cache.CurrentSubmissionID() != 0 {
		t.Fatal("a submission was opened without autoselect")
	}
}

func TestSyncFailureShowsBannerKeepsData(t *testing.T) {
	f := newFakeService()
	seedQueue(f)
	m := newTestModel(f, WithAutoSelect(false))

	m, _ = applyMsg(t, m, syncedMsg{err: errors.New("service unavailable")})
	if m.status != "sync failed: service unavailable" {
		t.Fatalf("status = %q", m.status)
	}
	if len(m.flatSubmissions()) != 2 {
		t.Fatal("listing vanished on sync failure")
	}
}

func TestMoveCursorOpensSubmission(t *testing.T) {
	f := newFakeService()
	seedQueue(f)
	m := newTestModel(f, WithAutoSelect(false))

	m, cmd := applyMsg(t, m, tea.KeyPressMsg{Code: 'j', Text: "j"})
	if cmd == nil {
		t.Fatal("cursor move should open the submission under it")
	}
	_ = cmd()
	if f.cache.CurrentSubmissionID() != 102 {
		t.Fatalf("current submission = %d, want 102", f.cache.CurrentSubmissionID())
	}
	if m.cursor != 1 {
		t.Fatalf("cursor = %d", m.cursor)
	}
}

func TestComposeLifecycle(t *testing.T) {
	f := newFakeService()
	seedQueue(f)
	f.cache.SetCurrentSubmission(101)
	m := newTestModel(f, WithAutoSelect(false))

	m, _ = applyMsg(t, m, tea.KeyPressMsg{Code: 'n', Text: "n"})
	if m.mode != modeCompose || m.composeFor != 101 {
		t.Fatalf("mode = %v, composeFor = %d", m.mode, m.composeFor)
	}
	if _, ok := f.cache.DraftForSubmission(101); !ok {
		t.Fatal("no draft opened")
	}

	// Typing mirrors into the draft.
	m, _ = applyMsg(t, m, tea.KeyPressMsg{Code: 'h', Text: "h"})
	m, _ = applyMsg(t, m, tea.KeyPressMsg{Code: 'i', Text: "i"})
	draft, _ := f.cache.DraftForSubmission(101)
	if draft.Message != "hi" {
		t.Fatalf("draft message = %q, want mirrored keystrokes", draft.Message)
	}

	// Escape discards.
	m, _ = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEscape})
	if m.mode != modeQueue {
		t.Fatal("escape should leave compose mode")
	}
	if _, ok := f.cache.DraftForSubmission(101); ok {
		t.Fatal("draft survived cancel")
	}
}

func TestSubmitFailureReopensCompose(t *testing.T) {
	f := newFakeService()
	seedQueue(f)
	f.cache.SetCurrentSubmission(101)
	f.submitErr = errors.New("service unavailable")
	m := newTestModel(f, WithAutoSelect(false))

	m, _ = applyMsg(t, m, tea.KeyPressMsg{Code: 'n', Text: "n"})
	m, _ = applyMsg(t, m, tea.KeyPressMsg{Code: 'x', Text: "x"})
	m, cmd := applyMsg(t, m, tea.KeyPressMsg{Code: 's', Mod: tea.ModCtrl})
	if cmd == nil {
		t.Fatal("ctrl+s should submit")
	}

	m, _ = applyMsg(t, m, cmd())
	if m.mode != modeCompose {
		t.Fatal("failed submit should keep the editor open")
	}
	draft, ok := f.cache.DraftForSubmission(101)
	if !ok || draft.Message != "x" {
		t.Fatalf("draft = (%+v, %t), reviewer text must survive", draft, ok)
	}
}

func TestSubmitSuccessClosesCompose(t *testing.T) {
	f := newFakeService()
	seedQueue(f)
	f.cache.SetCurrentSubmission(101)
	m := newTestModel(f, WithAutoSelect(false))

	m, _ = applyMsg(t, m, tea.KeyPressMsg{Code: 'n', Text: "n"})
	m, _ = applyMsg(t, m, tea.KeyPressMsg{Code: 'x', Text: "x"})
	m, cmd := applyMsg(t, m, tea.KeyPressMsg{Code: 's', Mod: tea.ModCtrl})
	if cmd == nil {
		t.Fatal("ctrl+s should submit")
	}

	m, cmd = applyMsg(t, m, cmd())
	if m.mode != modeQueue {
		t.Fatal("successful submit should close the editor")
	}
	if cmd == nil {
		t.Fatal("successful submit should refresh the notes")
	}
}

func TestRefreshKeySyncsQueueAndNotes(t *testing.T) {
	f := newFakeService()
	seedQueue(f)
	f.cache.SetCurrentSubmission(101)
	m := newTestModel(f, WithAutoSelect(false))

	before := f.loadStatusesCalls
	_, cmd := applyMsg(t, m, tea.KeyPressMsg{Code: 'r', Text: "r"})
	if cmd == nil {
		t.Fatal("refresh should produce work")
	}
	drainCmd(cmd)
	if f.loadStatusesCalls != before+1 {
		t.Fatalf("loadStatusesCalls = %d, want %d", f.loadStatusesCalls, before+1)
	}
	if f.loadNotesCalls == 0 {
		t.Fatal("refresh should also reload the open submission's notes")
	}
}

func TestPollTickRearms(t *testing.T) {
	f := newFakeService()
	seedQueue(f)
	m := NewModel(f,
		WithStatuses([]domain.Status{"submitted"}),
		WithGroupLayout(store.GroupByStatus, testLayout()),
		WithPollInterval(time.Millisecond),
	)
	sized, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = sized.(Model)

	_, cmd := applyMsg(t, m, pollTickMsg(time.Now()))
	if cmd == nil {
		t.Fatal("poll tick should refetch and re-arm")
	}
	drainCmd(cmd)
	if f.loadStatusesCalls == 0 {
		t.Fatal("poll tick did not refetch the listing")
	}
}

func TestQuitKey(t *testing.T) {
	f := newFakeService()
	seedQueue(f)
	m := newTestModel(f, WithAutoSelect(false))

	_, cmd := applyMsg(t, m, tea.KeyPressMsg{Code: 'q', Text: "q"})
	if cmd == nil {
		t.Fatal("quit should produce a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("q should quit")
	}
}

// drainCmd executes a command tree far enough to trigger its side effects.
func drainCmd(cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, sub := range batch {
			if sub == nil {
				continue
			}
			_ = sub()
		}
	}
}
