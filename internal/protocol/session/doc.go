// Package session owns the node's link-level reliability helpers.
//
// Ownership boundary:
// - reserved control payloads (RESEND, ESTABLISH_UDP)
// - resend ledger of packet ids the node has asked to be repeated
// - connect timeouts and retry backoff
package session
