package ui

// Unicode symbols for status indicators.
const (
	SymbolSuccess  = "✓" // Healthy node, valid rule
	SymbolFail     = "✗" // Unhealthy node, invalid rule
	SymbolPending  = "○" // Disconnected or disabled
	SymbolProgress = "◐" // Connecting
	SymbolComplete = "●" // Connected
)

// StateSymbol returns the indicator for a session state name.
func StateSymbol(state string) string {
	switch state {
	case "connected":
		return SymbolComplete
	case "connecting", "reconnecting":
		return SymbolProgress
	case "closed":
		return SymbolFail
	default:
		return SymbolPending
	}
}
