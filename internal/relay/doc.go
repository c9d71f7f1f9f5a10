// Package relay provides an HTTP implementation of the directory and
// transport contracts used by parley.
//
// The relay acts as the rendezvous for accounts and rooms: it stores
// public keys, authenticates accounts, forwards encrypted envelopes and
// pushes room/membership events to connected clients.
//
// Supported operations include:
//   - Registering an account with its public key.
//   - Authenticating and obtaining the server's public key.
//   - Listing rooms and requesting a direct room with a peer.
//   - Delivering encrypted envelopes.
//   - Subscribing to the event stream (server-sent events).
//
// All requests are JSON over HTTP and accept a context for cancellation
// and deadlines. Non-2xx statuses are returned as errors.
package relay
