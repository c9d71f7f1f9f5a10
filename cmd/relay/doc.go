// Command relay is an in-memory directory and transport server for
// local development and tests.
//
// It stores accounts and their public keys, authenticates clients,
// manages rooms (public and private channels plus direct rooms),
// forwards encrypted envelopes and pushes room, membership and
// presence events over server-sent events.
//
// Public-channel envelopes arrive encrypted under the relay's own RSA
// key; the relay decrypts them and rebroadcasts the plaintext to the
// room. Private envelopes are forwarded untouched; the relay cannot
// read them.
package main
