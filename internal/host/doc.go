// Package host is a standalone plugin host for the connector.
//
// App implements plugin.Host: provider status and errors are kept for the
// health endpoint, Debug and Error go to slog, and every delta is fanned out
// to the registered sinks in order.
package host
