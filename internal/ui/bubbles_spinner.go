package ui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// SpinnerFrames are the animation frames shared by every spinner.
var SpinnerFrames = spinner.Spinner{
	Frames: []string{"◐", "◓", "◑", "◒"},
	FPS:    time.Second / 10,
}

// SpinnerState is where a SpinnerComponent is in its lifecycle.
type SpinnerState int

const (
	SpinnerPending SpinnerState = iota
	SpinnerInProgress
	SpinnerSuccess
	SpinnerFailed
	SpinnerSkipped
)

// SpinnerComponent is one labelled spinner inside a larger Bubble Tea model.
type SpinnerComponent struct {
	spinner   spinner.Model
	Label     string
	Detail    string
	State     SpinnerState
	StartTime time.Time
	EndTime   time.Time
}

// NewSpinnerComponent creates a pending spinner with the given label.
func NewSpinnerComponent(label string) SpinnerComponent {
	sp := spinner.New()
	sp.Spinner = SpinnerFrames
	sp.Style = lipgloss.NewStyle().Foreground(ColorSecondary)

	return SpinnerComponent{
		spinner: sp,
		Label:   label,
		State:   SpinnerPending,
	}
}

// Update advances the animation. Ticks meant for other spinners are ignored
// by the underlying model.
func (s SpinnerComponent) Update(msg tea.Msg) (SpinnerComponent, tea.Cmd) {
	if s.State != SpinnerInProgress {
		return s, nil
	}
	if tickMsg, ok := msg.(spinner.TickMsg); ok {
		var cmd tea.Cmd
		s.spinner, cmd = s.spinner.Update(tickMsg)
		return s, cmd
	}
	return s, nil
}

// View renders the spinner in its current state.
func (s SpinnerComponent) View() string {
	switch s.State {
	case SpinnerInProgress:
		return s.spinner.View() + " " + s.Label + "..."
	case SpinnerSuccess:
		return s.viewFinal(SymbolComplete, ColorSuccess)
	case SpinnerFailed:
		return s.viewFinal(SymbolFail, ColorError)
	case SpinnerSkipped:
		return s.viewFinal(SymbolPending, ColorMuted)
	default:
		return lipgloss.NewStyle().Foreground(ColorMuted).Render(SymbolPending) + " " + s.Label
	}
}

func (s SpinnerComponent) viewFinal(symbol string, color lipgloss.Color) string {
	muted := lipgloss.NewStyle().Foreground(ColorMuted)
	out := lipgloss.NewStyle().Foreground(color).Render(symbol) + " " + s.Label
	if s.Detail != "" {
		out += " " + muted.Render(s.Detail)
	}
	return out + " " + muted.Render(formatDuration(s.Elapsed()))
}

// Start moves the spinner to in-progress and returns its first tick.
func (s *SpinnerComponent) Start() tea.Cmd {
	s.State = SpinnerInProgress
	s.StartTime = time.Now()
	return s.spinner.Tick
}

// Finish moves the spinner to a final state with an optional detail.
func (s *SpinnerComponent) Finish(state SpinnerState, detail string) {
	s.State = state
	s.Detail = detail
	s.EndTime = time.Now()
}

// Elapsed returns the time between Start and Finish, or since Start while
// still running.
func (s SpinnerComponent) Elapsed() time.Duration {
	if s.StartTime.IsZero() {
		return 0
	}
	if !s.EndTime.IsZero() {
		return s.EndTime.Sub(s.StartTime)
	}
	return time.Since(s.StartTime)
}
