// Package tui is the interactive catalog browser: a search box over the
// reactive result stream, plus a downloads tab fed by the job tracker.
package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"modelcat/internal/catalog"
	"modelcat/internal/config"
	"modelcat/internal/downloads"
	"modelcat/internal/search"
)

type theme struct {
	title       lipgloss.Style
	tabActive   lipgloss.Style
	tabInactive lipgloss.Style
	head        lipgloss.Style
	rowSelected lipgloss.Style
	notice      lipgloss.Style
	origin      lipgloss.Style
	footer      lipgloss.Style
}

func defaultTheme() theme {
	return theme{
		title:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81")),
		tabActive:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("219")),
		tabInactive: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		head:        lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true),
		rowSelected: lipgloss.NewStyle().Bold(true),
		notice:      lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		origin:      lipgloss.NewStyle().Faint(true),
		footer:      lipgloss.NewStyle().Faint(true),
	}
}

type resultsMsg search.Snapshot

type downloadsMsg downloads.State

// Model is the bubbletea model wiring the search service and download
// tracker into one screen.
type Model struct {
	ctx     context.Context
	cfg     *config.Config
	svc     *search.Service
	tracker *downloads.Tracker

	resultsCh   <-chan search.Snapshot
	downloadsCh <-chan downloads.State

	th        theme
	input     textinput.Model
	w, h      int
	activeTab int // 0: Results, 1: Downloads
	selected  int
	snap      search.Snapshot
	dl        downloads.State
	status    string
}

func New(ctx context.Context, cfg *config.Config, svc *search.Service, tracker *downloads.Tracker) *Model {
	ti := textinput.New()
	ti.Placeholder = "search models or paste a hub URL"
	ti.Focus()
	resultsCh, _ := svc.Results().Subscribe()
	downloadsCh, _ := tracker.State().Subscribe()
	return &Model{
		ctx:         ctx,
		cfg:         cfg,
		svc:         svc,
		tracker:     tracker,
		resultsCh:   resultsCh,
		downloadsCh: downloadsCh,
		th:          defaultTheme(),
		input:       ti,
		snap:        svc.Results().Get(),
		dl:          tracker.State().Get(),
	}
}

func (m *Model) Init() tea.Cmd {
	m.svc.SearchNow("") // trending view on startup
	return tea.Batch(m.waitResults(), m.waitDownloads(), textinput.Blink)
}

func (m *Model) waitResults() tea.Cmd {
	return func() tea.Msg { return resultsMsg(<-m.resultsCh) }
}

func (m *Model) waitDownloads() tea.Cmd {
	return func() tea.Msg { return downloadsMsg(<-m.downloadsCh) }
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.w, m.h = msg.Width, msg.Height
		return m, nil
	case resultsMsg:
		m.snap = search.Snapshot(msg)
		if m.selected >= len(m.snap.Items) {
			m.selected = 0
		}
		return m, m.waitResults()
	case downloadsMsg:
		m.dl = downloads.State(msg)
		return m, m.waitDownloads()
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.svc.Close()
		return m, tea.Quit
	case "tab":
		m.activeTab = (m.activeTab + 1) % 2
		return m, nil
	case "enter":
		if m.activeTab == 0 {
			m.svc.SearchNow(m.input.Value())
		}
		return m, nil
	case "up":
		if m.selected > 0 {
			m.selected--
		}
		return m, nil
	case "down":
		if m.selected < m.rowCount()-1 {
			m.selected++
		}
		return m, nil
	case "right", "pgdown":
		if m.activeTab == 0 {
			m.svc.LoadPage(m.snap.Page + 1)
		}
		return m, nil
	case "left", "pgup":
		if m.activeTab == 0 && m.snap.Page > 1 {
			m.svc.LoadPage(m.snap.Page - 1)
		}
		return m, nil
	case "ctrl+d":
		if m.activeTab == 0 {
			m.startDownload()
		}
		return m, nil
	case "ctrl+p":
		if m.activeTab == 1 {
			m.pauseOrResume()
		}
		return m, nil
	}
	if m.activeTab == 0 {
		var cmd tea.Cmd
		before := m.input.Value()
		m.input, cmd = m.input.Update(msg)
		if m.input.Value() != before {
			m.svc.SetQuery(m.input.Value())
		}
		return m, cmd
	}
	return m, nil
}

func (m *Model) rowCount() int {
	if m.activeTab == 0 {
		return len(m.snap.Items)
	}
	return len(m.dl.Active) + len(m.dl.History)
}

// startDownload requests the selected item's first file. A pasted URL with
// an embedded filename wins over the default pick.
func (m *Model) startDownload() {
	if m.selected >= len(m.snap.Items) {
		return
	}
	it := m.snap.Items[m.selected]
	name := m.snap.PendingFilename
	if name == "" {
		if len(it.Files) == 0 {
			m.status = "no downloadable files for " + it.RepoID
			return
		}
		name = it.Files[0].Filename
	}
	dest := filepath.Join(m.cfg.General.ModelsFolder, filepath.Base(name))
	if err := m.tracker.Request(m.ctx, it.RepoID, name, dest, m.cfg.Downloads.AutoLoad); err != nil {
		m.status = err.Error()
		return
	}
	m.status = "downloading " + name
}

func (m *Model) pauseOrResume() {
	if m.selected >= len(m.dl.Active) {
		return
	}
	j := m.dl.Active[m.selected]
	var err error
	if j.Status == downloads.StatusPaused {
		err = m.tracker.Resume(m.ctx, j.ID)
	} else {
		err = m.tracker.Pause(m.ctx, j.ID)
	}
	if err != nil {
		m.status = err.Error()
	}
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(m.th.title.Render("modelcat"))
	b.WriteString("  ")
	for i, name := range []string{"Results", "Downloads"} {
		st := m.th.tabInactive
		if i == m.activeTab {
			st = m.th.tabActive
		}
		b.WriteString(st.Render(name))
		b.WriteString(" ")
	}
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	if m.activeTab == 0 {
		b.WriteString(m.viewResults())
	} else {
		b.WriteString(m.viewDownloads())
	}
	if m.status != "" {
		b.WriteString("\n" + m.th.notice.Render(m.status))
	}
	b.WriteString("\n" + m.th.footer.Render("enter search · ←/→ page · ctrl+d download · tab switch · esc quit"))
	return b.String()
}

func (m *Model) viewResults() string {
	var b strings.Builder
	switch {
	case m.snap.Unavailable:
		return m.th.notice.Render("search unavailable — no live, cached, or bundled results") + "\n"
	case m.snap.NoMorePages:
		b.WriteString(m.th.notice.Render("no more pages") + "\n")
	case m.snap.Notice != "":
		b.WriteString(m.th.notice.Render(m.snap.Notice) + "\n")
	}
	b.WriteString(m.th.head.Render(fmt.Sprintf("%-42s %-10s %10s %8s  %s", "REPO", "PARAMS", "DOWNLOADS", "LIKES", "ORIGIN")))
	b.WriteString("\n")
	rows := m.snap.Items
	if max := m.maxRows(); len(rows) > max {
		rows = rows[:max]
	}
	for i, it := range rows {
		line := fmt.Sprintf("%-42s %-10s %10s %8d  %s",
			trunc(it.RepoID, 42), paramStr(it), humanize.Comma(it.Downloads), it.Likes, it.Origin)
		if i == m.selected {
			line = m.th.rowSelected.Render("> " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(line + "\n")
	}
	b.WriteString(m.th.origin.Render(fmt.Sprintf("page %d · %d items · %s", max(1, m.snap.Page), len(m.snap.Items), m.snap.Phase)))
	b.WriteString("\n")
	return b.String()
}

func (m *Model) viewDownloads() string {
	var b strings.Builder
	b.WriteString(m.th.head.Render(fmt.Sprintf("%-34s %-12s %s", "FILE", "STATUS", "PROGRESS")))
	b.WriteString("\n")
	i := 0
	for _, j := range m.dl.Active {
		b.WriteString(m.dlRow(i, j))
		i++
	}
	for _, j := range m.dl.History {
		b.WriteString(m.dlRow(i, j))
		i++
	}
	if i == 0 && len(m.dl.Pending) == 0 {
		b.WriteString(m.th.origin.Render("no downloads") + "\n")
	}
	for key := range m.dl.Pending {
		b.WriteString(m.th.origin.Render("  " + key + "  (requested)\n"))
	}
	return b.String()
}

func (m *Model) dlRow(i int, j downloads.Job) string {
	line := fmt.Sprintf("%-34s %-12s %s", trunc(j.Filename, 34), j.Status, j.Progress())
	if j.Error != "" {
		line += "  " + m.th.notice.Render(j.Error)
	}
	if i == m.selected && m.activeTab == 1 {
		return m.th.rowSelected.Render("> "+line) + "\n"
	}
	return "  " + line + "\n"
}

func (m *Model) maxRows() int {
	if m.h == 0 {
		return 20
	}
	if r := m.h - 8; r > 0 {
		return r
	}
	return 5
}

func paramStr(it catalog.Item) string {
	if it.ParameterCount == nil {
		return "?"
	}
	return humanize.SI(float64(*it.ParameterCount), "")
}

func trunc(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
