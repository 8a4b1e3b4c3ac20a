package tui

import "charm.land/bubbles/v2/key"

// keyMap represents key map data used by this package.
type keyMap struct {
	quit        key.Binding
	refresh     key.Binding
	toggleHelp  key.Binding
	moveUp      key.Binding
	moveDown    key.Binding
	noteUp      key.Binding
	noteDown    key.Binding
	open        key.Binding
	newNote     key.Binding
	editNote    key.Binding
	toggleGroup key.Binding
	ackChange   key.Binding
	submitNote  key.Binding
	cancel      key.Binding
}

// newKeyMap constructs key map.
func newKeyMap() keyMap {
	return keyMap{
		quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		refresh:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		toggleHelp:  key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
		moveUp:      key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "submission up")),
		moveDown:    key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "submission down")),
		noteUp:      key.NewBinding(key.WithKeys("shift+tab", "K"), key.WithHelp("K", "note up")),
		noteDown:    key.NewBinding(key.WithKeys("tab", "J"), key.WithHelp("J", "note down")),
		open:        key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open submission")),
		newNote:     key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new note")),
		editNote:    key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit note")),
		toggleGroup: key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "group by round/status")),
		ackChange:   key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "dismiss status change")),
		submitNote:  key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "save note")),
		cancel:      key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
	}
}

// ShortHelp handles short help.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.open, k.newNote, k.editNote, k.refresh, k.toggleGroup, k.quit,
	}
}

// FullHelp handles full help.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.open, k.newNote, k.editNote, k.refresh, k.toggleGroup, k.ackChange, k.toggleHelp, k.quit},
		{k.moveUp, k.moveDown, k.noteUp, k.noteDown},
		{k.submitNote, k.cancel},
	}
}
