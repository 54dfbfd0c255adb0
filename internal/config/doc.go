// Package config loads the connector's YAML configuration.
//
// Values may reference the environment with ${VAR}; expansion happens before
// parsing, so secrets such as the archive password can stay out of the file.
package config
