package chainmonitor

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// RegistryInterface defines the minimal interface needed for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the chain monitor component with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "chain-monitor",
		Factory:     NewComponent,
		Schema:      monitorSchema,
		Type:        "processor",
		Protocol:    "governance",
		Domain:      "governance",
		Description: "Polls DAO realms for proposals and drives the automation decision pipeline",
		Version:     "0.1.0",
	})
}
