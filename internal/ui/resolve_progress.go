package ui

import (
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

type hostStartedMsg struct{ host string }

type hostDoneMsg struct {
	host  string
	found bool
	err   error
}

type finishMsg struct{}

// resolveModel shows one spinner per host while a project is looked up.
type resolveModel struct {
	title    string
	order    []string
	spinners map[string]*SpinnerComponent
	done     bool
}

func newResolveModel(project string, hosts []string) resolveModel {
	m := resolveModel{
		title:    "Looking for " + project,
		order:    hosts,
		spinners: make(map[string]*SpinnerComponent, len(hosts)),
	}
	for _, h := range hosts {
		sc := NewSpinnerComponent(h)
		m.spinners[h] = &sc
	}
	return m
}

func (m resolveModel) Init() tea.Cmd {
	return nil
}

func (m resolveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case hostStartedMsg:
		if sc, ok := m.spinners[msg.host]; ok {
			return m, sc.Start()
		}
	case hostDoneMsg:
		if sc, ok := m.spinners[msg.host]; ok {
			switch {
			case msg.err != nil:
				sc.Finish(SpinnerFailed, "unreachable")
			case msg.found:
				sc.Finish(SpinnerSuccess, "found")
			default:
				sc.Finish(SpinnerSkipped, "not here")
			}
		}
	case spinner.TickMsg:
		var cmds []tea.Cmd
		for _, sc := range m.spinners {
			var cmd tea.Cmd
			*sc, cmd = sc.Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	case finishMsg:
		m.done = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.done = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m resolveModel) View() string {
	var b strings.Builder
	b.WriteString(HeaderStyle().Render(m.title))
	b.WriteString("\n")
	for _, h := range m.order {
		b.WriteString("  ")
		b.WriteString(m.spinners[h].View())
		b.WriteString("\n")
	}
	return b.String()
}

// ResolveProgress draws live per-host status while a resolve fan-out runs.
// It satisfies resolve.Observer. Only use it on an interactive terminal.
type ResolveProgress struct {
	program *tea.Program
	done    chan struct{}
}

// NewResolveProgress prepares a progress display for project over hosts,
// drawn to out.
func NewResolveProgress(project string, hosts []string, out io.Writer) *ResolveProgress {
	return &ResolveProgress{
		program: tea.NewProgram(newResolveModel(project, hosts),
			tea.WithOutput(out),
			tea.WithInput(nil),
		),
		done: make(chan struct{}),
	}
}

// Start runs the display in the background.
func (p *ResolveProgress) Start() {
	go func() {
		defer close(p.done)
		_, _ = p.program.Run()
	}()
}

// HostStarted marks host as being checked.
func (p *ResolveProgress) HostStarted(host string) {
	p.program.Send(hostStartedMsg{host: host})
}

// HostDone records host's outcome.
func (p *ResolveProgress) HostDone(host string, found bool, err error) {
	p.program.Send(hostDoneMsg{host: host, found: found, err: err})
}

// Stop draws the final state and waits for the display to exit.
func (p *ResolveProgress) Stop() {
	p.program.Send(finishMsg{})
	<-p.done
}
