package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Ratio bar block characters.
const (
	barFilled = '█'
	barEmpty  = '░'
)

// RenderRatioBar draws ratio (0..1, clamped) as a bar of width cells
// followed by a percentage, e.g. "[████████░░░░]  67%". Higher is better:
// the bar is green from 80%, yellow from 50%, red below.
func RenderRatioBar(ratio float64, width int) string {
	if width <= 0 {
		return ""
	}
	if ratio < 0 {
		ratio = 0
	} else if ratio > 1 {
		ratio = 1
	}

	filled := int(ratio * float64(width))
	var sb strings.Builder
	sb.Grow(width*3 + 2)
	sb.WriteRune('[')
	for i := 0; i < filled; i++ {
		sb.WriteRune(barFilled)
	}
	for i := filled; i < width; i++ {
		sb.WriteRune(barEmpty)
	}
	sb.WriteRune(']')

	style := lipgloss.NewStyle().Foreground(ratioColor(ratio))
	return style.Render(sb.String()) + fmt.Sprintf(" %3.0f%%", ratio*100)
}

func ratioColor(ratio float64) lipgloss.Color {
	switch {
	case ratio >= 0.8:
		return ColorSuccess
	case ratio >= 0.5:
		return ColorWarning
	default:
		return ColorError
	}
}
