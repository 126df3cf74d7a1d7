// Package ui provides the terminal rendering pieces shared by deckhand's
// command output and its console view.
//
// # Components Overview
//
//	Sparkline     - One-row graphs for utilization history
//	Progress bars - Percentage bars with color thresholds
//	Tables        - Fleet status and filter rule listings
//	Styles        - Colors for session states and power states
//	Formatting    - Bytes, rates and uptime in human units
//
// # Color Scheme
//
// Colors are ANSI codes for broad terminal compatibility:
//
//	ColorSuccess   (green)  - Running servers, healthy nodes
//	ColorError     (red)    - Offline servers, failures
//	ColorWarning   (yellow) - Transitional states
//	ColorInfo      (cyan)   - Network graphs, informational text
//	ColorMuted     (gray)   - Secondary text
//	ColorSecondary (blue)   - In-progress indicators
//
// # Progress Bars
//
//	ui.RenderProgressBar(67.5, 20)  // [█████████████░░░░░░░]  68%
//
// Colors change based on percentage: green (0-60%), yellow (60-80%), red (80-100%).
package ui
