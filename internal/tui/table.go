package tui

import (
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/x/ansi"
)

// Column defines a table column.
type Column struct {
	Title string
	Width int
	// Right aligns cells to the right, used for counters.
	Right bool
}

// TableStyles holds the styles needed by the table.
type TableStyles struct {
	Text      lipgloss.Style
	Muted     lipgloss.Style
	Header    lipgloss.Style
	Selected  lipgloss.Style
	Separator lipgloss.Style
}

// Table is a scrollable table with row selection.
type Table struct {
	columns      []Column
	rows         [][]string
	styles       TableStyles
	width        int
	height       int
	selected     int
	yOffset      int
	emptyMessage string
}

// NewTable creates a table with the given columns.
func NewTable(columns []Column, emptyMessage string) *Table {
	return &Table{
		columns:      columns,
		emptyMessage: emptyMessage,
	}
}

// SetStyles updates the table styles.
func (t *Table) SetStyles(styles TableStyles) {
	t.styles = styles
}

// SetSize sets the table dimensions, header included.
func (t *Table) SetSize(width, height int) {
	t.width = width
	t.height = height
	t.ensureSelectedVisible()
}

// SetRows replaces the table data, keeping the selection in bounds.
func (t *Table) SetRows(rows [][]string) {
	t.rows = rows
	t.selected = max(min(t.selected, len(t.rows)-1), 0)
	t.ensureSelectedVisible()
}

// Selected returns the selected row index, or -1 when the table is empty.
func (t *Table) Selected() int {
	if len(t.rows) == 0 {
		return -1
	}
	return t.selected
}

// Reset moves the selection back to the first row.
func (t *Table) Reset() {
	t.selected = 0
	t.yOffset = 0
}

func (t *Table) viewportHeight() int {
	return max(t.height-2, 1)
}

// Update handles navigation keys.
func (t *Table) Update(msg tea.Msg) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return
	}
	last := max(len(t.rows)-1, 0)
	switch keyMsg.String() {
	case "up", "k":
		t.selected = max(t.selected-1, 0)
	case "down", "j":
		t.selected = min(t.selected+1, last)
	case "pgup":
		t.selected = max(t.selected-10, 0)
	case "pgdown":
		t.selected = min(t.selected+10, last)
	case "home", "g":
		t.selected = 0
	case "end", "G":
		t.selected = last
	default:
		return
	}
	t.ensureSelectedVisible()
}

func (t *Table) ensureSelectedVisible() {
	vh := t.viewportHeight()
	if t.selected < t.yOffset {
		t.yOffset = t.selected
	} else if t.selected >= t.yOffset+vh {
		t.yOffset = t.selected - vh + 1
	}
	t.yOffset = max(min(t.yOffset, len(t.rows)-vh), 0)
}

// View renders the header, separator and visible rows.
func (t *Table) View() string {
	widths := t.columnWidths()

	titles := make([]string, len(t.columns))
	for i, col := range t.columns {
		titles[i] = col.Title
	}
	lines := []string{
		t.styles.Header.Render(t.fit(t.renderRow(titles, widths))),
		t.styles.Separator.Render(strings.Repeat("─", max(t.width, 1))),
	}

	if len(t.rows) == 0 {
		lines = append(lines, t.styles.Muted.Render(t.emptyMessage))
		return strings.Join(lines, "\n")
	}

	end := min(t.yOffset+t.viewportHeight(), len(t.rows))
	for i := t.yOffset; i < end; i++ {
		line := t.fit(t.renderRow(t.rows[i], widths))
		if i == t.selected {
			lines = append(lines, t.styles.Selected.Render(line))
		} else {
			lines = append(lines, t.styles.Text.Render(line))
		}
	}
	return strings.Join(lines, "\n")
}

// columnWidths returns the max of the defined width and the widest cell per column.
func (t *Table) columnWidths() []int {
	widths := make([]int, len(t.columns))
	for i, col := range t.columns {
		widths[i] = max(col.Width, ansi.StringWidth(col.Title))
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], ansi.StringWidth(cell))
			}
		}
	}
	return widths
}

func (t *Table) renderRow(cells []string, widths []int) string {
	parts := make([]string, len(t.columns))
	last := len(t.columns) - 1
	for i, col := range t.columns {
		var cell string
		if i < len(cells) {
			cell = cells[i]
		}
		switch {
		case col.Right:
			parts[i] = padLeft(cell, widths[i])
		case i < last:
			parts[i] = padRight(cell, widths[i])
		default:
			parts[i] = cell
		}
	}
	return strings.Join(parts, " ")
}

// fit pads or truncates a plain line to the table width.
func (t *Table) fit(line string) string {
	if t.width <= 0 {
		return line
	}
	if w := ansi.StringWidth(line); w < t.width {
		return line + strings.Repeat(" ", t.width-w)
	}
	return ansi.Truncate(line, t.width, "…")
}

func padRight(s string, width int) string {
	if w := ansi.StringWidth(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}

func padLeft(s string, width int) string {
	if w := ansi.StringWidth(s); w < width {
		return strings.Repeat(" ", width-w) + s
	}
	return s
}
