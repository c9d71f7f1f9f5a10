// Package roster tracks room membership for the encryption pipeline.
//
// The cache is the single authority for "who can currently decrypt this
// room". Membership events from the transport are applied through one
// update path, and the send pipeline resolves its recipient set under
// the same lock that guards those updates, so a send never observes a
// partial or superseded member list.
package roster
