package governanceapi

import (
	"fmt"
	"reflect"

	"github.com/c360studio/semstreams/component"
)

// apiSchema defines the configuration schema.
var apiSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the governance API component.
type Config struct {
	// MaxListResults caps the number of entries one list endpoint returns.
	MaxListResults int `json:"max_list_results"`

	// Ports contains input/output port definitions.
	Ports *component.PortConfig `json:"ports,omitempty"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		MaxListResults: 1000,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.MaxListResults <= 0 {
		return fmt.Errorf("max_list_results must be positive")
	}
	return nil
}
