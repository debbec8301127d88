package tui

import "charm.land/bubbles/v2/key"

// KeyMap defines the keybindings of the terminal view.
type KeyMap struct {
	Quit      key.Binding
	Open      key.Binding
	Back      key.Binding
	NextState key.Binding
	PrevState key.Binding
	Refresh   key.Binding

	// Dangerous actions, bound only with --danger.
	Pause  key.Binding
	Resume key.Binding
	Retry  key.Binding
	Remove key.Binding
}

// DefaultKeyMap returns the default keybindings. Dangerous bindings are
// disabled unless danger is set.
func DefaultKeyMap(danger bool) KeyMap {
	k := KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Open: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "jobs"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc", "backspace"),
			key.WithHelp("esc", "queues"),
		),
		NextState: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "next state"),
		),
		PrevState: key.NewBinding(
			key.WithKeys("shift+tab"),
			key.WithHelp("shift+tab", "prev state"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("ctrl+r", "f5"),
			key.WithHelp("ctrl+r", "refresh"),
		),
		Pause: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "pause"),
		),
		Resume: key.NewBinding(
			key.WithKeys("u"),
			key.WithHelp("u", "resume"),
		),
		Retry: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "retry"),
		),
		Remove: key.NewBinding(
			key.WithKeys("D"),
			key.WithHelp("D", "remove"),
		),
	}
	k.Pause.SetEnabled(danger)
	k.Resume.SetEnabled(danger)
	k.Retry.SetEnabled(danger)
	k.Remove.SetEnabled(danger)
	return k
}

// QueueHelp returns the bindings shown under the queue table.
func (k KeyMap) QueueHelp() []key.Binding {
	return enabled(k.Open, k.Pause, k.Resume, k.Refresh, k.Quit)
}

// JobHelp returns the bindings shown under the job table.
func (k KeyMap) JobHelp() []key.Binding {
	return enabled(k.Back, k.NextState, k.PrevState, k.Retry, k.Remove, k.Refresh, k.Quit)
}

func enabled(bindings ...key.Binding) []key.Binding {
	out := bindings[:0:0]
	for _, b := range bindings {
		if b.Enabled() {
			out = append(out, b)
		}
	}
	return out
}
