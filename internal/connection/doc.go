// Package connection implements the gateway Connector.
//
// The Connector:
//   - Holds one WebSocket connection to the iKommunicate stream endpoint
//   - Tags every delta with context "vessels.self" and hands it to the host
//   - Reports connected / error / closed through the host's provider status
//   - Retries on a fixed interval after every close, until Stop
//
// All reactions run on a single event-loop goroutine. Events carry the
// generation of the socket that produced them, so a superseded socket's
// late events are dropped instead of touching the current one.
package connection
