package ui

// Unicode symbols for status indicators.
const (
	SymbolSuccess  = "✓" // Operation succeeded
	SymbolFail     = "✗" // Operation failed
	SymbolPending  = "○" // Not yet started
	SymbolProgress = "◐" // In progress
	SymbolComplete = "●" // Reachable / found
	SymbolSkipped  = "⊘" // Skipped (no shell transport)
	SymbolWarning  = "!" // Advisory
)
