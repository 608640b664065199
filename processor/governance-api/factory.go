package governanceapi

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// RegistryInterface defines the minimal interface needed for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the governance API component with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "governance-api",
		Factory:     NewComponent,
		Schema:      apiSchema,
		Type:        "processor",
		Protocol:    "http",
		Domain:      "governance",
		Description: "HTTP endpoints for proposals, decisions, and pipeline statistics",
		Version:     "0.1.0",
	})
}
