package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vpnconsole/vpnconsole/internal/apiclient"
	"github.com/vpnconsole/vpnconsole/internal/service"
	"github.com/vpnconsole/vpnconsole/internal/ui"
)

// DashCmd shows a live dashboard of services and connected clients.
type DashCmd struct {
	Interval time.Duration `default:"5s" help:"Refresh interval."`
}

func (c *DashCmd) Run(globals *CLI) error {
	m := newDashModel(globals.client(), c.Interval)
	_, err := tea.NewProgram(m).Run()
	return err
}

// dashData holds everything the dashboard displays.
type dashData struct {
	url      string
	err      error
	latency  time.Duration
	status   *apiclient.Status
	clients  *apiclient.Clients
	fetched  time.Time
	lastNote string
}

// source is the subset of apiclient.Client the dashboard reads.
type source interface {
	Status(ctx context.Context) (*apiclient.Status, error)
	Clients(ctx context.Context) (*apiclient.Clients, error)
	Action(ctx context.Context, action, target string) (*apiclient.ActionResult, error)
}

func fetchDashData(src source, url string) dashData {
	d := dashData{url: url, fetched: time.Now()}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	st, err := src.Status(ctx)
	if err != nil {
		d.err = err
		return d
	}
	d.latency = time.Since(start)
	d.status = st

	if cl, err := src.Clients(ctx); err == nil {
		d.clients = cl
	}
	return d
}

// dashModel is the Bubble Tea model for the dashboard.
type dashModel struct {
	src      source
	url      string
	interval time.Duration
	data     dashData
	cursor   int
	busy     bool
	width    int
	quitting bool
}

func newDashModel(c *apiclient.Client, interval time.Duration) dashModel {
	return dashModel{
		src:      c,
		url:      c.BaseURL,
		interval: interval,
		data:     fetchDashData(c, c.BaseURL),
		width:    80,
	}
}

type tickMsg time.Time

func (m dashModel) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

type refreshMsg struct{ data dashData }

type actionMsg struct{ note string }

func (m dashModel) fetchCmd() tea.Cmd {
	return func() tea.Msg { return refreshMsg{data: fetchDashData(m.src, m.url)} }
}

func (m dashModel) actionCmd(action, target string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		res, err := m.src.Action(ctx, action, target)
		if err != nil {
			return actionMsg{note: ui.Error(err.Error())}
		}
		lines := make([]string, len(res.Outcomes))
		for i, o := range res.Outcomes {
			lines[i] = ui.Outcome(o)
		}
		return actionMsg{note: strings.Join(lines, "\n")}
	}
}

func (m dashModel) Init() tea.Cmd {
	return m.tickCmd()
}

func (m dashModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		ids := m.data.serviceIDs()
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, m.fetchCmd()
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(ids)-1 {
				m.cursor++
			}
		case "s", "x", "R":
			if m.busy || len(ids) == 0 {
				return m, nil
			}
			action := map[string]string{"s": "start", "x": "stop", "R": "restart"}[msg.String()]
			m.busy = true
			m.data.lastNote = fmt.Sprintf("%s %s...", action, ids[m.cursor])
			return m, m.actionCmd(action, ids[m.cursor])
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.fetchCmd(), m.tickCmd())

	case refreshMsg:
		note := m.data.lastNote
		m.data = msg.data
		m.data.lastNote = note
		if n := len(m.data.serviceIDs()); m.cursor >= n {
			m.cursor = max(n-1, 0)
		}
		return m, nil

	case actionMsg:
		m.busy = false
		m.data.lastNote = msg.note
		return m, m.fetchCmd()
	}

	return m, nil
}

func (m dashModel) View() string {
	if m.quitting {
		return ""
	}
	return renderDashboard(m.data, m.cursor, m.width)
}

// serviceIDs returns the service ids in display order.
func (d dashData) serviceIDs() []string {
	if d.status == nil {
		return nil
	}
	ids := make([]string, 0, len(d.status.Containers))
	for id := range d.status.Containers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// renderDashboard renders the full dashboard view.
func renderDashboard(d dashData, cursor, width int) string {
	width = min(width, ui.MaxWidth)

	sections := []string{renderServerSection(d, width)}
	if d.status != nil {
		sections = append(sections, renderServicesSection(d, cursor, width))
	}
	if d.clients != nil {
		sections = append(sections, renderClientsSection(d, width))
	}
	if d.lastNote != "" {
		sections = append(sections, d.lastNote)
	}
	sections = append(sections, ui.Row("keys", "↑/↓ select  s start  x stop  R restart  r refresh  q quit"))
	return strings.Join(sections, "\n")
}

func renderServerSection(d dashData, width int) string {
	lines := []string{ui.Row("URL", d.url)}
	if d.err != nil {
		lines = append(lines, ui.Row("STATUS", ui.Dot(service.StatusDown)+" unreachable"))
		lines = append(lines, ui.Row("ERROR", d.err.Error()))
		return ui.Section("Console", strings.Join(lines, "\n"), width)
	}
	lines = append(lines, ui.Row("STATUS", ui.Dot(service.StatusUp)+" connected"))
	lines = append(lines, ui.Row("LATENCY", fmt.Sprintf("%dms", d.latency.Milliseconds())))
	if d.status != nil && d.status.System.Uptime != "" {
		lines = append(lines, ui.Row("UPTIME", d.status.System.Uptime))
	}
	return ui.Section("Console", strings.Join(lines, "\n"), width)
}

func renderServicesSection(d dashData, cursor, width int) string {
	rows := make([][]string, 0, len(d.status.Containers))
	for i, id := range d.serviceIDs() {
		st := d.status.Containers[id]
		mark := " "
		if i == cursor {
			mark = ">"
		}
		rows = append(rows, []string{mark + " " + id, ui.Dot(st.Status) + " " + string(st.Status), st.Ports})
	}
	return ui.Section("Services", ui.Table([]string{"  NAME", "STATUS", "PORTS"}, rows), width)
}

func renderClientsSection(d dashData, width int) string {
	if d.clients.Count == 0 {
		return ui.Section("Clients", "none connected", width)
	}
	rows := make([][]string, 0, len(d.clients.Clients))
	for _, c := range d.clients.Clients {
		rows = append(rows, []string{c.Name, c.VirtualAddress, ui.Bytes(c.BytesReceived), ui.Bytes(c.BytesSent)})
	}
	return ui.Section(fmt.Sprintf("Clients (%d)", d.clients.Count),
		ui.Table([]string{"NAME", "VIRTUAL", "RX", "TX"}, rows), width)
}
