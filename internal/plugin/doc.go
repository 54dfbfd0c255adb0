// Package plugin describes the connector as a Signal K server plugin: its
// identity, the options object and JSON schema the host presents to users,
// and the Host callbacks the connector reports through.
package plugin
