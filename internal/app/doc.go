// Package app wires stores, services and clients into a running client.
//
// It owns the Session type: one instance per logged-in connection,
// created by Login and destroyed by Close. All per-connection state
// (token, server key, membership cache, event pump) lives on the
// Session rather than in process-wide globals.
package app
