// Package model defines the Signal K delta shapes shared by the connector,
// the host and the archive.
//
// A Delta is kept as raw JSON members so that fields the relay does not
// understand are forwarded byte-for-byte. Only the archive decodes the
// updates/values structure.
package model
