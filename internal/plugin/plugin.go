package plugin

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rickgao/ikommunicate-connector/internal/model"
)

// Plugin identity as registered with the host.
const (
	ID          = "signalk-ikommunicate-connector"
	Name        = "iKommunicate Connector"
	Description = "SignalK Node Server plugin to get data from an iKommunicate"
)

// DefaultPort is the iKommunicate's HTTP port.
const DefaultPort = 80

// Host is what the connector needs from the application that loaded it.
// All calls are fire-and-forget.
type Host interface {
	SetProviderStatus(msg string)
	SetProviderError(msg string)

	// Debug and Error take slog-style key/value pairs after the message.
	Debug(msg string, args ...any)
	Error(msg string, args ...any)

	// HandleMessage ingests one tagged delta on behalf of sourceID.
	HandleMessage(sourceID string, delta model.Delta)
}

// Options is the plugin configuration object.
type Options struct {
	IPAddress string `json:"ipaddress"`
	Port      int    `json:"port"`
}

// ParseOptions decodes a host-supplied options object and applies the port
// default.
func ParseOptions(data []byte) (Options, error) {
	var opts Options
	if err := json.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("decode plugin options: %w", err)
	}
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	return opts, nil
}

// Validate enforces the schema's required fields.
func (o Options) Validate() error {
	if o.IPAddress == "" {
		return errors.New("ipaddress is required")
	}
	if o.Port < 1 || o.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", o.Port)
	}
	return nil
}

// Metadata is the static description served to the host UI.
type Metadata struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema"`
}

// Describe returns the plugin's metadata including its schema.
func Describe() Metadata {
	return Metadata{
		ID:          ID,
		Name:        Name,
		Description: Description,
		Schema:      Schema(),
	}
}

var schema = []byte(`{
  "type": "object",
  "required": ["ipaddress", "port"],
  "properties": {
    "ipaddress": {
      "type": "string",
      "title": "Address for the iKommunicate"
    },
    "port": {
      "type": "number",
      "title": "The port of the iKommunicate",
      "default": 80
    }
  }
}`)

// Schema returns the JSON schema for Options.
func Schema() json.RawMessage {
	out := make(json.RawMessage, len(schema))
	copy(out, schema)
	return out
}
