// Package tui renders the review console: a grouped submission queue on the
// left, the selected submission's notes on the right, and a compose overlay
// for writing or editing notes. All data comes from the synchronized cache;
// the model never talks to the review service directly.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/textarea"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/hylla/ansok/internal/domain"
	"github.com/hylla/ansok/internal/store"
)

// Service represents the synchronization operations the console drives.
type Service interface {
	Store() *store.Store
	LoadRound(context.Context, int) error
	LoadStatuses(context.Context, []domain.Status) error
	LoadNotes(context.Context, int) error
	OpenSubmission(context.Context, int) error
	StartDraft(int) domain.DraftNote
	StartEdit(int, int) (domain.DraftNote, error)
	UpdateDraft(int, string)
	CancelDraft(int)
	SubmitDraft(context.Context, int) error
}

// inputMode represents a selectable mode.
type inputMode int

const (
	modeQueue inputMode = iota
	modeCompose
)

// requestTimeout bounds every synchronization call the console issues.
const requestTimeout = 20 * time.Second

// syncedMsg carries the outcome of a queue synchronization pass.
type syncedMsg struct {
	err error
}

// notesSyncedMsg carries the outcome of a notes fetch for one submission.
type notesSyncedMsg struct {
	submissionID int
	err          error
}

// draftDoneMsg carries the outcome of a draft submission.
type draftDoneMsg struct {
	submissionID int
	err          error
}

// pollTickMsg re-arms interval polling.
type pollTickMsg time.Time

// Model represents model data used by this package.
type Model struct {
	svc Service

	ready  bool
	width  int
	height int

	status string

	help help.Model
	keys keyMap

	mode inputMode

	groupBy  store.GroupBy
	specs    []store.GroupSpec
	statuses []domain.Status
	roundID  *int

	pollEvery  time.Duration
	autoSelect bool
	auto       store.Autoselect

	cursor     int
	noteCursor int

	composeFor int
	draftInput textarea.Model

	markdown markdownRenderer
}

// Option defines a functional option for model configuration.
type Option func(*Model)

// WithRound scopes queue synchronization to one review round instead of the
// configured status listing.
func WithRound(roundID int) Option {
	return func(m *Model) {
		id := roundID
		m.roundID = &id
	}
}

// WithStatuses sets the statuses the queue synchronizes and displays.
func WithStatuses(statuses []domain.Status) Option {
	return func(m *Model) {
		m.statuses = domain.NormalizeStatuses(statuses)
	}
}

// WithGroupLayout sets the grouping dimension and the ordered group specs.
func WithGroupLayout(groupBy store.GroupBy, specs []store.GroupSpec) Option {
	return func(m *Model) {
		m.groupBy = groupBy
		m.specs = specs
	}
}

// WithPollInterval overrides the fixed polling interval. Zero or negative
// disables polling.
func WithPollInterval(interval time.Duration) Option {
	return func(m *Model) {
		m.pollEvery = interval
	}
}

// WithAutoSelect controls whether the first submission of the first group is
// opened automatically after the initial load.
func WithAutoSelect(enabled bool) Option {
	return func(m *Model) {
		m.autoSelect = enabled
	}
}

// NewModel constructs a new value for this package.
func NewModel(svc Service, opts ...Option) Model {
	h := help.New()
	h.ShowAll = false
	draftInput := textarea.New()
	draftInput.Placeholder = "write a note (markdown)"
	draftInput.CharLimit = 4000
	m := Model{
		svc:        svc,
		status:     "loading...",
		help:       h,
		keys:       newKeyMap(),
		groupBy:    store.GroupByStatus,
		pollEvery:  30 * time.Second,
		autoSelect: true,
		composeFor: 0,
		draftInput: draftInput,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&m)
		}
	}
	return m
}

// Init handles init.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.syncQueue}
	if m.pollEvery > 0 {
		cmds = append(cmds, m.pollTick())
	}
	return tea.Batch(cmds...)
}

// Update updates state for the requested operation.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		m.height = msg.Height
		m.draftInput.SetWidth(m.notesPaneWidth() - 4)
		m.draftInput.SetHeight(6)
		return m, nil

	case pollTickMsg:
		cmds := []tea.Cmd{m.syncQueue, m.pollTick()}
		if id := m.svc.Store().CurrentSubmissionID(); id != 0 {
			cmds = append(cmds, m.syncNotes(id))
		}
		return m, tea.Batch(cmds...)

	case syncedMsg:
		if msg.err != nil {
			m.status = "sync failed: " + msg.err.Error()
			return m, nil
		}
		m.status = "synced"
		m.clampCursor()
		return m, m.maybeAutoSelect()

	case notesSyncedMsg:
		if msg.err != nil {
			m.status = "notes failed: " + msg.err.Error()
			return m, nil
		}
		m.clampNoteCursor()
		return m, nil

	case draftDoneMsg:
		cache := m.svc.Store()
		if draft, ok := cache.DraftForSubmission(msg.submissionID); ok && draft.Err != "" {
			m.status = "note not saved: " + draft.Err
			m.mode = modeCompose
			return m, nil
		}
		if msg.err != nil {
			m.status = "note not saved: " + msg.err.Error()
			m.mode = modeCompose
			return m, nil
		}
		m.mode = modeQueue
		m.composeFor = 0
		m.draftInput.Blur()
		m.status = "note saved"
		return m, m.syncNotes(msg.submissionID)

	case tea.KeyPressMsg:
		if m.mode == modeCompose {
			return m.handleComposeKey(msg)
		}
		return m.handleQueueKey(msg)

	default:
		return m, nil
	}
}

// handleQueueKey handles keys while browsing the queue.
func (m Model) handleQueueKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	cache := m.svc.Store()
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.toggleHelp):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, m.keys.refresh):
		cmds := []tea.Cmd{m.syncQueue}
		if id := cache.CurrentSubmissionID(); id != 0 {
			cmds = append(cmds, m.syncNotes(id))
		}
		m.status = "refreshing..."
		return m, tea.Batch(cmds...)

	case key.Matches(msg, m.keys.moveUp):
		return m.moveCursor(-1)

	case key.Matches(msg, m.keys.moveDown):
		return m.moveCursor(1)

	case key.Matches(msg, m.keys.noteUp):
		m.noteCursor--
		m.clampNoteCursor()
		return m, nil

	case key.Matches(msg, m.keys.noteDown):
		m.noteCursor++
		m.clampNoteCursor()
		return m, nil

	case key.Matches(msg, m.keys.open):
		if sub, ok := m.submissionAt(m.cursor); ok {
			m.noteCursor = 0
			return m, m.openSubmission(sub.ID)
		}
		return m, nil

	case key.Matches(msg, m.keys.toggleGroup):
		if m.groupBy == store.GroupByStatus {
			m.groupBy = store.GroupByRound
		} else {
			m.groupBy = store.GroupByStatus
		}
		m.clampCursor()
		return m, nil

	case key.Matches(msg, m.keys.ackChange):
		if id := cache.CurrentSubmissionID(); id != 0 {
			cache.ClearExternalChange(id)
		}
		return m, nil

	case key.Matches(msg, m.keys.newNote):
		id := cache.CurrentSubmissionID()
		if id == 0 {
			m.status = "open a submission first"
			return m, nil
		}
		m.svc.StartDraft(id)
		return m.enterCompose(id, ""), nil

	case key.Matches(msg, m.keys.editNote):
		id := cache.CurrentSubmissionID()
		if id == 0 {
			m.status = "open a submission first"
			return m, nil
		}
		notes := cache.NotesForSubmission(id)
		if m.noteCursor >= len(notes) {
			return m, nil
		}
		note := notes[m.noteCursor]
		if !note.Editable {
			m.status = "that note is not yours to edit"
			return m, nil
		}
		draft, err := m.svc.StartEdit(id, note.ID)
		if err != nil {
			m.status = err.Error()
			return m, nil
		}
		return m.enterCompose(id, draft.Message), nil

	default:
		return m, nil
	}
}

// handleComposeKey handles keys while the draft editor is open. Every edit is
// mirrored into the draft so nothing is lost if submission fails.
func (m Model) handleComposeKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.cancel):
		m.svc.CancelDraft(m.composeFor)
		m.mode = modeQueue
		m.composeFor = 0
		m.draftInput.Blur()
		m.status = "draft discarded"
		return m, nil

	case key.Matches(msg, m.keys.submitNote):
		if strings.TrimSpace(m.draftInput.Value()) == "" {
			m.status = "note is empty"
			return m, nil
		}
		m.svc.UpdateDraft(m.composeFor, m.draftInput.Value())
		m.status = "saving note..."
		return m, m.submitDraft(m.composeFor)

	default:
		var cmd tea.Cmd
		m.draftInput, cmd = m.draftInput.Update(msg)
		m.svc.UpdateDraft(m.composeFor, m.draftInput.Value())
		return m, cmd
	}
}

// enterCompose opens the draft editor for a submission.
func (m Model) enterCompose(submissionID int, seed string) Model {
	m.mode = modeCompose
	m.composeFor = submissionID
	m.draftInput.SetValue(seed)
	m.draftInput.Focus()
	if seed == "" {
		m.status = "new note"
	} else {
		m.status = "editing note"
	}
	return m
}

// moveCursor shifts the queue cursor and opens the submission under it.
func (m Model) moveCursor(delta int) (tea.Model, tea.Cmd) {
	rows := m.flatSubmissions()
	if len(rows) == 0 {
		return m, nil
	}
	m.cursor += delta
	m.clampCursor()
	m.noteCursor = 0
	return m, m.openSubmission(rows[m.cursor].ID)
}

// maybeAutoSelect opens the first visible submission once after the initial
// load, when enabled.
func (m *Model) maybeAutoSelect() tea.Cmd {
	if !m.autoSelect {
		return nil
	}
	cache := m.svc.Store()
	groups := cache.GroupedSubmissions(m.groupBy, m.specs)
	var cmd tea.Cmd
	m.auto.Choose(groups, cache.CurrentSubmissionID(), func(sub domain.Submission) {
		m.cursor = m.indexOf(sub.ID)
		cmd = m.openSubmission(sub.ID)
	})
	return cmd
}

func (m Model) pollTick() tea.Cmd {
	return tea.Tick(m.pollEvery, func(t time.Time) tea.Msg {
		return pollTickMsg(t)
	})
}

func (m Model) syncQueue() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if m.roundID != nil {
		return syncedMsg{err: m.svc.LoadRound(ctx, *m.roundID)}
	}
	return syncedMsg{err: m.svc.LoadStatuses(ctx, m.statuses)}
}

func (m Model) syncNotes(submissionID int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return notesSyncedMsg{submissionID: submissionID, err: m.svc.LoadNotes(ctx, submissionID)}
	}
}

func (m Model) openSubmission(submissionID int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return notesSyncedMsg{submissionID: submissionID, err: m.svc.OpenSubmission(ctx, submissionID)}
	}
}

func (m Model) submitDraft(submissionID int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return draftDoneMsg{submissionID: submissionID, err: m.svc.SubmitDraft(ctx, submissionID)}
	}
}

// flatSubmissions flattens the grouped queue into cursor order.
func (m Model) flatSubmissions() []domain.Submission {
	groups := m.svc.Store().GroupedSubmissions(m.groupBy, m.specs)
	var flat []domain.Submission
	for _, group := range groups {
		flat = append(flat, group.Submissions...)
	}
	return flat
}

func (m Model) submissionAt(idx int) (domain.Submission, bool) {
	rows := m.flatSubmissions()
	if idx < 0 || idx >= len(rows) {
		return domain.Submission{}, false
	}
	return rows[idx], true
}

func (m Model) indexOf(submissionID int) int {
	for idx, sub := range m.flatSubmissions() {
		if sub.ID == submissionID {
			return idx
		}
	}
	return 0
}

func (m *Model) clampCursor() {
	limit := len(m.flatSubmissions()) - 1
	m.cursor = clamp(m.cursor, 0, limit)
}

func (m *Model) clampNoteCursor() {
	id := m.svc.Store().CurrentSubmissionID()
	limit := len(m.svc.Store().NotesForSubmission(id)) - 1
	m.noteCursor = clamp(m.noteCursor, 0, limit)
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (m Model) queuePaneWidth() int {
	w := m.width * 2 / 5
	if w < 30 {
		w = 30
	}
	return w
}

func (m Model) notesPaneWidth() int {
	w := m.width - m.queuePaneWidth() - 3
	if w < 30 {
		w = 30
	}
	return w
}

// View handles view.
func (m Model) View() tea.View {
	if !m.ready {
		v := tea.NewView("loading...")
		v.AltScreen = true
		return v
	}

	header := m.renderHeader()
	queue := m.renderQueue()
	notes := m.renderNotes()
	body := lipgloss.JoinHorizontal(lipgloss.Top, queue, " ", notes)
	footer := m.help.View(m.keys)

	v := tea.NewView(strings.Join([]string{header, body, footer}, "\n"))
	v.AltScreen = true
	return v
}

// renderHeader renders the title row and the synchronization banner.
func (m Model) renderHeader() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	cache := m.svc.Store()
	var fetchKey store.Key
	if m.roundID != nil {
		fetchKey = store.RoundKey(*m.roundID)
	} else {
		fetchKey = store.StatusesKey(cache.CurrentStatuses())
	}
	fetch := cache.FetchStateFor(fetchKey)

	banner := dimStyle.Render(m.status)
	switch {
	case fetch.Failed():
		banner = warnStyle.Render("sync error: " + fetch.Message + " (showing last known data)")
	case fetch.Pending():
		banner = dimStyle.Render("syncing...")
	}
	return titleStyle.Render("ansok") + "  " + banner
}

// renderQueue renders the grouped submission list.
func (m Model) renderQueue() string {
	cache := m.svc.Store()
	groups := cache.GroupedSubmissions(m.groupBy, m.specs)
	width := m.queuePaneWidth()

	groupStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	selectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	changedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	var lines []string
	flatIdx := 0
	for _, group := range groups {
		lines = append(lines, groupStyle.Render(truncate(group.Display, width)))
		for _, sub := range group.Submissions {
			marker := "  "
			if flatIdx == m.cursor {
				marker = "> "
			}
			label := fmt.Sprintf("%s#%d %s", marker, sub.ID, sub.Title)
			if sub.ChangedLocally {
				label += " *"
			}
			if _, external := cache.ExternalChangeFor(sub.ID); external {
				label += " !"
			}
			label = truncate(label, width)
			switch {
			case flatIdx == m.cursor:
				lines = append(lines, selectedStyle.Render(label))
			case sub.ChangedLocally:
				lines = append(lines, changedStyle.Render(label))
			default:
				lines = append(lines, label)
			}
			flatIdx++
		}
		lines = append(lines, "")
	}
	if flatIdx == 0 {
		lines = append(lines, dimStyle.Render("no submissions"))
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.bodyHeight()).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("239")).
		Render(strings.Join(lines, "\n"))
}

// renderNotes renders the selected submission's detail pane, or the compose
// editor when a draft is open.
func (m Model) renderNotes() string {
	cache := m.svc.Store()
	width := m.notesPaneWidth()

	titleStyle := lipgloss.NewStyle().Bold(true)
	metaStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	cursorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("229"))

	var lines []string
	sub, ok := cache.CurrentSubmission()
	if !ok {
		lines = append(lines, metaStyle.Render("select a submission"))
	} else {
		lines = append(lines, titleStyle.Render(truncate(fmt.Sprintf("#%d %s", sub.ID, sub.Title), width-2)))
		meta := "status: " + string(sub.Status)
		if sub.Round != nil {
			meta += fmt.Sprintf("  round: %d", *sub.Round)
		}
		lines = append(lines, metaStyle.Render(meta))
		if status, external := cache.ExternalChangeFor(sub.ID); external {
			lines = append(lines, warnStyle.Render("status changed remotely to "+string(status)+" (x to dismiss)"))
		}
		if len(sub.Actions) > 0 {
			labels := make([]string, 0, len(sub.Actions))
			for _, action := range sub.Actions {
				labels = append(labels, action.Display)
			}
			lines = append(lines, metaStyle.Render("actions: "+strings.Join(labels, ", ")))
		}
		lines = append(lines, "")

		notesFetch := cache.FetchStateFor(store.NotesKey(sub.ID))
		switch {
		case notesFetch.Failed():
			lines = append(lines, warnStyle.Render("notes error: "+notesFetch.Message))
		case notesFetch.Pending():
			lines = append(lines, metaStyle.Render("loading notes..."))
		}

		m2 := m.markdown
		notes := cache.NotesForSubmission(sub.ID)
		for idx, note := range notes {
			head := fmt.Sprintf("%s · %s", note.Author, note.CreatedAt.Local().Format("2006-01-02 15:04"))
			if note.EditedAt != nil {
				head += " (edited)"
			}
			if idx == m.noteCursor && m.mode == modeQueue {
				lines = append(lines, cursorStyle.Render("▎"+head))
			} else {
				lines = append(lines, metaStyle.Render(" "+head))
			}
			lines = append(lines, m2.render(note.Message, width-4))
			lines = append(lines, "")
		}
		if len(notes) == 0 && !notesFetch.Pending() {
			lines = append(lines, metaStyle.Render("no notes yet (n to write one)"))
		}
	}

	if m.mode == modeCompose {
		lines = append(lines, "")
		lines = append(lines, titleStyle.Render("── note ──"))
		if draft, ok := cache.DraftForSubmission(m.composeFor); ok && draft.Err != "" {
			lines = append(lines, warnStyle.Render(draft.Err))
		}
		lines = append(lines, m.draftInput.View())
		lines = append(lines, metaStyle.Render("ctrl+s save · esc discard"))
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.bodyHeight()).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("239")).
		Render(strings.Join(lines, "\n"))
}

func (m Model) bodyHeight() int {
	h := m.height - 4
	if h < 10 {
		h = 10
	}
	return h
}

func truncate(s string, width int) string {
	if width <= 1 || len(s) <= width {
		return s
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-1]) + "…"
}
