// Package tui implements the interactive console view for one server.
//
// The view owns a single daemon session for its lifetime. It shows the
// connection and power state, round-trip ping and uptime in a header, a row
// of sparklines fed from the session's performance history, the filtered
// console output in a scrollable viewport, and a command input.
//
// # Message Flow
//
// The session reports through a Sink whose methods run on the session's own
// goroutine. Sink turns each callback into a tea.Msg on a buffered channel,
// and waitForEvent polls that channel from a tea.Cmd so every update lands
// in Model.Update on the Bubble Tea goroutine:
//
//  1. Init opens the session and starts polling the sink
//  2. stateMsg, powerMsg, statsMsg and linesMsg update the model
//  3. Power keys run the action in a command and report its resolution
//  4. esc or ctrl+c closes the session, then quits
package tui
