// Package cli implements the deckhand command-line interface.
//
// # Command Structure
//
//	deckhand status                - Probe every node and print fleet health
//	deckhand console <server>      - Interactive console for one server
//	deckhand exec <server> <cmd>   - Send one console command
//	deckhand power <server> <act>  - Start, stop, restart or kill a server
//	deckhand filters ...           - Manage console filter rules
//	deckhand serve                 - Run the HTTP status server
//	deckhand service ...           - Install the status server as an OS service
//	deckhand doctor                - Diagnose config and connectivity
//
// Commands load deckhand.yaml (see internal/config), build the domain
// objects they need and hand off to the status, session, tui and server
// packages. Failures are returned as structured errors from
// internal/errors and rendered once by Execute.
package cli
