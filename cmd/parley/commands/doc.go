// Package commands implements the parley command-line interface.
//
// Each subcommand builds on the shared wiring from the root command:
// init creates the local identity, register publishes it to the relay,
// and rooms, send and recv operate on a logged-in session.
package commands
