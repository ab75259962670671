// Package common contains shared constants and sentinel errors used across
// pairsync components.
package common

// ProtocolVersion is the wire protocol version. Both the pairing payload and
// every protocol message carry it; any mismatch short-circuits handling.
const ProtocolVersion = 1

// DefaultServiceType is the well-known mDNS service type both sides of a
// pairing share.
const DefaultServiceType = "_pairsync._tcp"
