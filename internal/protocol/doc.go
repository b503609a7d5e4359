// Package protocol owns the node wire contract.
//
// Ownership boundary:
// - reserved message types and protocol constants (this package)
// - crc: CRC-16/CCITT-FALSE integrity check
// - frame: packet header, framing, packet-id counter
// - args: tagged argument values
// - schema: command UI types and command descriptions
// - session: control messages and the reliability policy
//
// Every multi-byte integer on the wire is little-endian.
package protocol
