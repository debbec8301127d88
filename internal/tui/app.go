// Package tui renders the `qontrol top` terminal view.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/qontrol/qontrol/internal/bullmq"
	"github.com/qontrol/qontrol/internal/dashboard"
)

const (
	defaultInterval = 5 * time.Second
	jobPageSize     = 200
)

type mode int

const (
	modeQueues mode = iota
	modeJobs
)

// tickMsg triggers a periodic refresh.
type tickMsg time.Time

type queuesMsg struct {
	queues []dashboard.QueueInfo
	at     time.Time
}

type jobsMsg struct {
	queue string
	state bullmq.JobState
	page  dashboard.JobPage
	err   error
}

// actionMsg reports the result of a pause, resume or job mutation.
type actionMsg struct {
	status string
	err    error
}

// Options configures an App.
type Options struct {
	// Danger enables pause, resume, retry and remove.
	Danger   bool
	Interval time.Duration
	Target   string
	Now      func() time.Time
}

// App is the terminal view model.
type App struct {
	svc      *dashboard.Service
	keys     KeyMap
	styles   Styles
	danger   bool
	interval time.Duration
	target   string
	now      func() time.Time

	width  int
	height int
	ready  bool
	mode   mode

	queues     []dashboard.QueueInfo
	queueTable *Table
	updatedAt  time.Time

	queue     string
	stateIdx  int
	jobs      []dashboard.JobSummary
	jobsTotal int
	jobTable  *Table

	status string
	err    error
}

// New creates an App over svc.
func New(svc *dashboard.Service, opts Options) App {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	styles := NewStyles()
	tableStyles := TableStyles{
		Text:      styles.Text,
		Muted:     styles.Muted,
		Header:    styles.TableHeader,
		Selected:  styles.TableSelected,
		Separator: styles.TableSeparator,
	}

	queueColumns := []Column{{Title: "Queue", Width: 20}, {Title: "Status", Width: 6}}
	for _, state := range bullmq.AllStates {
		queueColumns = append(queueColumns, Column{Title: string(state), Right: true})
	}
	queueTable := NewTable(queueColumns, "No queues found")
	queueTable.SetStyles(tableStyles)

	jobTable := NewTable([]Column{
		{Title: "ID", Width: 8},
		{Title: "Name", Width: 16},
		{Title: "Age", Width: 6, Right: true},
		{Title: "Duration", Width: 8, Right: true},
		{Title: "Attempts", Right: true},
	}, "No jobs")
	jobTable.SetStyles(tableStyles)

	return App{
		svc:        svc,
		keys:       DefaultKeyMap(opts.Danger),
		styles:     styles,
		danger:     opts.Danger,
		interval:   opts.Interval,
		target:     opts.Target,
		now:        opts.Now,
		queueTable: queueTable,
		jobTable:   jobTable,
	}
}

// Init implements tea.Model.
func (a App) Init() tea.Cmd {
	return tea.Batch(a.fetchQueuesCmd(), a.tickCmd())
}

func (a App) tickCmd() tea.Cmd {
	return tea.Tick(a.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (a App) fetchQueuesCmd() tea.Cmd {
	svc, now := a.svc, a.now
	return func() tea.Msg {
		return queuesMsg{queues: svc.Registry.AllQueuesInfo(context.Background()), at: now()}
	}
}

func (a App) fetchJobsCmd() tea.Cmd {
	svc, queue, state := a.svc, a.queue, a.state()
	return func() tea.Msg {
		page, err := svc.Jobs.List(context.Background(), queue, dashboard.JobQuery{
			PageSize: jobPageSize,
			States:   []bullmq.JobState{state},
		})
		return jobsMsg{queue: queue, state: state, page: page, err: err}
	}
}

func (a App) refreshCmd() tea.Cmd {
	if a.mode == modeJobs {
		return tea.Batch(a.fetchQueuesCmd(), a.fetchJobsCmd())
	}
	return a.fetchQueuesCmd()
}

func (a App) state() bullmq.JobState {
	return bullmq.AllStates[a.stateIdx]
}

// selectedQueue returns the queue under the cursor in the queue table.
func (a App) selectedQueue() (dashboard.QueueInfo, bool) {
	idx := a.queueTable.Selected()
	if idx < 0 || idx >= len(a.queues) {
		return dashboard.QueueInfo{}, false
	}
	return a.queues[idx], true
}

func (a App) selectedJob() (dashboard.JobSummary, bool) {
	idx := a.jobTable.Selected()
	if idx < 0 || idx >= len(a.jobs) {
		return dashboard.JobSummary{}, false
	}
	return a.jobs[idx], true
}

// Update implements tea.Model.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		return a, tea.Batch(a.refreshCmd(), a.tickCmd())

	case queuesMsg:
		a.queues = msg.queues
		a.updatedAt = msg.at
		a.queueTable.SetRows(a.queueRows())
		return a, nil

	case jobsMsg:
		if msg.queue != a.queue || msg.state != a.state() {
			return a, nil
		}
		a.err = msg.err
		a.jobs = msg.page.Jobs
		a.jobsTotal = msg.page.Total
		a.jobTable.SetRows(a.jobRows())
		return a, nil

	case actionMsg:
		a.status, a.err = msg.status, msg.err
		return a, a.refreshCmd()

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		// header bar + title + status line + navbar
		contentHeight := max(msg.Height-4, 3)
		a.queueTable.SetSize(msg.Width, contentHeight)
		a.jobTable.SetSize(msg.Width, contentHeight)
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)
	}
	return a, nil
}

func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, a.keys.Quit) {
		return a, tea.Quit
	}
	if key.Matches(msg, a.keys.Refresh) {
		return a, a.refreshCmd()
	}

	if a.mode == modeQueues {
		switch {
		case key.Matches(msg, a.keys.Open):
			info, ok := a.selectedQueue()
			if !ok {
				return a, nil
			}
			a.mode = modeJobs
			a.queue = info.Name
			a.stateIdx = 0
			a.resetJobs()
			return a, a.fetchJobsCmd()
		case key.Matches(msg, a.keys.Pause):
			return a, a.queueActionCmd(true)
		case key.Matches(msg, a.keys.Resume):
			return a, a.queueActionCmd(false)
		}
		a.queueTable.Update(msg)
		return a, nil
	}

	switch {
	case key.Matches(msg, a.keys.Back):
		a.mode = modeQueues
		a.queue = ""
		a.resetJobs()
		return a, nil
	case key.Matches(msg, a.keys.NextState):
		a.stateIdx = (a.stateIdx + 1) % len(bullmq.AllStates)
		a.resetJobs()
		return a, a.fetchJobsCmd()
	case key.Matches(msg, a.keys.PrevState):
		a.stateIdx = (a.stateIdx + len(bullmq.AllStates) - 1) % len(bullmq.AllStates)
		a.resetJobs()
		return a, a.fetchJobsCmd()
	case key.Matches(msg, a.keys.Retry):
		return a, a.jobActionCmd("retry", a.svc.Jobs.Retry)
	case key.Matches(msg, a.keys.Remove):
		return a, a.jobActionCmd("remove", a.svc.Jobs.Remove)
	}
	a.jobTable.Update(msg)
	return a, nil
}

func (a *App) resetJobs() {
	a.jobs = nil
	a.jobsTotal = 0
	a.status = ""
	a.err = nil
	a.jobTable.Reset()
	a.jobTable.SetRows(nil)
}

func (a App) queueActionCmd(pause bool) tea.Cmd {
	info, ok := a.selectedQueue()
	if !ok {
		return nil
	}
	registry := a.svc.Registry
	return func() tea.Msg {
		ctx := context.Background()
		if pause {
			if err := registry.Pause(ctx, info.Name); err != nil {
				return actionMsg{err: err}
			}
			return actionMsg{status: fmt.Sprintf("Paused %s", info.Name)}
		}
		if err := registry.Resume(ctx, info.Name); err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{status: fmt.Sprintf("Resumed %s", info.Name)}
	}
}

type jobAction func(ctx context.Context, queue, id string) (dashboard.Outcome, error)

func (a App) jobActionCmd(op string, fn jobAction) tea.Cmd {
	job, ok := a.selectedJob()
	if !ok {
		return nil
	}
	queue := a.queue
	return func() tea.Msg {
		outcome, err := fn(context.Background(), queue, job.ID)
		if err != nil {
			return actionMsg{err: fmt.Errorf("%s job %s: %w", op, job.ID, err)}
		}
		if !outcome.OK() {
			return actionMsg{err: fmt.Errorf("%s job %s: %s", op, job.ID, outcome)}
		}
		return actionMsg{status: fmt.Sprintf("%s job %s: %s", op, job.ID, outcome)}
	}
}

func (a App) queueRows() [][]string {
	rows := make([][]string, 0, len(a.queues))
	for _, q := range a.queues {
		status := "active"
		if q.IsPaused {
			status = "paused"
		}
		row := []string{q.Name, status}
		for _, state := range bullmq.AllStates {
			row = append(row, formatNumber(q.Counts[state]))
		}
		rows = append(rows, row)
	}
	return rows
}

func (a App) jobRows() [][]string {
	now := a.now()
	rows := make([][]string, 0, len(a.jobs))
	for _, job := range a.jobs {
		duration := "-"
		if job.Duration != nil {
			duration = formatDuration(*job.Duration)
		}
		rows = append(rows, []string{
			job.ID,
			job.Name,
			formatAge(job.CreatedAt, now),
			duration,
			fmt.Sprintf("%d", job.Attempts),
		})
	}
	return rows
}

// View implements tea.Model.
func (a App) View() tea.View {
	var v tea.View
	v.AltScreen = true
	v.SetContent(a.render())
	return v
}

func (a App) render() string {
	if !a.ready {
		return "Initializing..."
	}

	var title, content string
	var help []key.Binding
	if a.mode == modeJobs {
		title = a.jobsTitle()
		content = a.jobTable.View()
		help = a.keys.JobHelp()
	} else {
		title = a.styles.Title.Render(fmt.Sprintf("Queues (%d)", len(a.queues)))
		content = a.queueTable.View()
		help = a.keys.QueueHelp()
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		a.headerView(),
		title,
		content,
		a.statusView(),
		a.navView(help),
	)
}

func (a App) jobsTitle() string {
	title := a.styles.Title.Render(fmt.Sprintf("%s · %s (%d)", a.queue, a.state(), a.jobsTotal))
	for _, q := range a.queues {
		if q.Name == a.queue && q.IsPaused {
			title += " " + a.styles.Paused.Render("PAUSED")
		}
	}
	return title
}

func (a App) headerView() string {
	var totals [3]int64
	for _, q := range a.queues {
		totals[0] += q.Counts[bullmq.StateWaiting] + q.Counts[bullmq.StatePaused] + q.Counts[bullmq.StatePrioritized]
		totals[1] += q.Counts[bullmq.StateActive]
		totals[2] += q.Counts[bullmq.StateFailed]
	}
	items := []string{
		a.styles.BarLabel.Render(" qontrol "),
		a.styles.BarLabel.Render(" Waiting: ") + a.styles.BarValue.Render(formatNumber(totals[0])),
		a.styles.BarLabel.Render(" Active: ") + a.styles.BarValue.Render(formatNumber(totals[1])),
		a.styles.BarLabel.Render(" Failed: ") + a.styles.BarValue.Render(formatNumber(totals[2])),
	}
	if a.target != "" {
		items = append(items, a.styles.BarLabel.Render(" "+a.target+" "))
	}
	return a.styles.Bar.Width(a.width).Render(strings.Join(items, ""))
}

func (a App) statusView() string {
	switch {
	case a.err != nil:
		return a.styles.Error.Render("Error: " + a.err.Error())
	case a.status != "":
		return a.styles.Text.Render(a.status)
	case !a.updatedAt.IsZero():
		return a.styles.Muted.Render("Updated " + a.updatedAt.Format(time.TimeOnly))
	}
	return ""
}

func (a App) navView(bindings []key.Binding) string {
	var b strings.Builder
	for _, binding := range bindings {
		h := binding.Help()
		b.WriteString(a.styles.NavKey.Render(h.Key))
		b.WriteString(a.styles.NavItem.Render(h.Desc))
	}
	return a.styles.NavBar.Width(a.width).Render(b.String())
}
