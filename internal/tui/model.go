package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"facetree/internal/report"
	"facetree/internal/service"
)

// ProgressMsg carries one computed matrix cell.
type ProgressMsg service.Event

// DoneMsg ends the computation.
type DoneMsg struct {
	Result *service.Result
	Err    error
}

// Job runs the pipeline, reporting cells through progress.
type Job func(ctx context.Context, progress func(service.Event)) (*service.Result, error)

// Model is the Bubble Tea model that follows a run and then shows its result.
type Model struct {
	title    string
	fraction float64
	spinner  spinner.Model
	progress progress.Model
	viewport viewport.Model
	last     service.Event
	result   *service.Result
	err      error
	finished bool
	ready    bool
}

// New creates a model. fraction sets the grouping threshold as a share of
// the tallest merge.
func New(title string, fraction float64) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	return Model{
		title:    title,
		fraction: fraction,
		spinner:  sp,
		progress: progress.New(progress.WithDefaultGradient()),
		viewport: viewport.New(0, 0),
	}
}

// Init starts the spinner.
func (m Model) Init() tea.Cmd { return m.spinner.Tick }

// Update handles progress, completion, key and window events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		reserved := 3 // header, status and a spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.progress.Width = max(10, msg.Width-20)
		m.viewport.SetContent(m.renderResult())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.String() == "q" {
			return m, tea.Quit
		}
		if m.finished {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		return m, nil
	case ProgressMsg:
		m.last = service.Event(msg)
		return m, nil
	case DoneMsg:
		m.finished = true
		m.result = msg.Result
		m.err = msg.Err
		m.viewport.SetContent(m.renderResult())
		m.viewport.GotoTop()
		return m, nil
	case spinner.TickMsg:
		if m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the progress screen while running and the result afterwards.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := titleStyle.Render(m.title)
	if !m.finished {
		status := "loading inputs"
		percent := 0.0
		if m.last.Total > 0 {
			status = fmt.Sprintf("%s %s  %d/%d", m.last.A, m.last.B, m.last.Done, m.last.Total)
			percent = float64(m.last.Done) / float64(m.last.Total)
		}
		return header + "\n\n" + m.spinner.View() + " " + status + "\n" + m.progress.ViewAs(percent)
	}
	var status string
	if m.err != nil {
		status = errorStyle.Render("Error: " + m.err.Error())
	} else {
		status = hintStyle.Render("↑/↓ scroll, q quit")
	}
	return header + "\n" + resultBoxStyle.Render(m.viewport.View()) + "\n" + status
}

// Result returns what the job produced once DoneMsg arrived.
func (m Model) Result() (*service.Result, error) { return m.result, m.err }

func (m Model) renderResult() string {
	if !m.finished {
		return ""
	}
	if m.err != nil || m.result == nil {
		return "No result."
	}
	names := m.result.Clustered.Names()
	doc := report.NewTreeDocument(m.result.Tree, names, m.fraction)

	var b strings.Builder
	b.WriteString(sectionStyle.Render("Distances"))
	b.WriteString("\n")
	b.WriteString(renderMatrix(m.result, names))
	b.WriteString("\n")
	b.WriteString(sectionStyle.Render(fmt.Sprintf("Merges (%s)", doc.Linkage)))
	b.WriteString("\n")
	for i, mg := range doc.Merges {
		fmt.Fprintf(&b, "#%d  %s + %s  %.4f  size %d\n", len(names)+i, nodeName(mg.A, names), nodeName(mg.B, names), mg.Distance, mg.Size)
	}
	b.WriteString("\n")
	b.WriteString(sectionStyle.Render(fmt.Sprintf("Groups below %.4f", doc.Threshold)))
	b.WriteString("\n")
	for i, g := range doc.Groups {
		style := lipgloss.NewStyle().Foreground(groupColors[i%len(groupColors)])
		b.WriteString(style.Render(strings.Join(g, " ")))
		b.WriteString("\n")
	}
	return b.String()
}

func renderMatrix(res *service.Result, names []string) string {
	const cell = 9
	var b strings.Builder
	b.WriteString(strings.Repeat(" ", cell))
	for _, n := range names {
		b.WriteString(fmt.Sprintf("%*s", cell, clip(n, cell-1)))
	}
	b.WriteString("\n")
	for i, n := range names {
		b.WriteString(fmt.Sprintf("%-*s", cell, clip(n, cell-1)))
		for j := range names {
			b.WriteString(fmt.Sprintf("%*.4f", cell, res.Clustered.At(i, j)))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func nodeName(id int, names []string) string {
	if id < len(names) {
		return names[id]
	}
	return fmt.Sprintf("#%d", id)
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var (
	titleStyle     = lipgloss.NewStyle().Bold(true)
	sectionStyle   = lipgloss.NewStyle().Bold(true).Underline(true)
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	hintStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	groupColors    = []lipgloss.Color{"10", "12", "13", "14", "11", "9"}
)

// Run shows the model while job executes. Quitting early cancels the job.
func Run(ctx context.Context, m Model, job Job) (*service.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(m, tea.WithAltScreen())
	done := make(chan DoneMsg, 1)
	go func() {
		res, err := job(ctx, func(e service.Event) { p.Send(ProgressMsg(e)) })
		msg := DoneMsg{Result: res, Err: err}
		done <- msg
		p.Send(msg)
	}()
	if _, err := p.Run(); err != nil {
		return nil, err
	}
	cancel()
	msg := <-done
	return msg.Result, msg.Err
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
