// Package envelope builds and consumes encrypted message envelopes.
//
// High-level flow:
//   - Send: classify the room; for private/direct rooms resolve the
//     recipient set, encrypt the content under a fresh symmetric key
//     and wrap that key once per recipient; for public channels
//     encrypt the content once under the server's key. The finished
//     envelope is handed to the transport.
//   - Receive: find our wrapped-key entry, unwrap with our private key
//     and decrypt the content. Envelopes not addressed to us are
//     discarded, not failed.
//
// Recipient resolution and key wrapping run as one atomic unit with
// respect to membership updates; see the roster package.
package envelope
