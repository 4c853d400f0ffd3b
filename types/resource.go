package types

import "fmt"

// ResourceType classifies a persisted resource.
type ResourceType string

const (
	ResourceTypeModule   ResourceType = "module"
	ResourceTypeFunction ResourceType = "function"
	ResourceTypeEnv      ResourceType = "env"
	ResourceTypeBlob     ResourceType = "blob"
	ResourceTypeSecret   ResourceType = "secret"
)

// ResourceConfig is the envelope persisted for a named resource. The
// gateway treats Config as opaque; only Name, Type, and Env drive
// placement and authorization.
type ResourceConfig struct {
	// Name is the store key the resource lives under.
	Name string `json:"name" msgpack:"name"`
	// Type classifies the resource.
	Type ResourceType `json:"type" msgpack:"type"`
	// Env is the owning environment. Empty means the server default.
	Env string `json:"env,omitempty" msgpack:"env,omitempty"`
	// Config is the opaque resource body.
	Config map[string]any `json:"config,omitempty" msgpack:"config,omitempty"`
}

// Validate checks the fields the gateway relies on.
func (r *ResourceConfig) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("resource missing name")
	}
	switch r.Type {
	case ResourceTypeModule, ResourceTypeFunction, ResourceTypeEnv,
		ResourceTypeBlob, ResourceTypeSecret:
	default:
		return fmt.Errorf("invalid resource type %q", r.Type)
	}
	return nil
}

// EnvOptions are the initialization options for an environment actor.
// Construction is idempotent by name; options are applied only by the
// call that wins creation.
type EnvOptions struct {
	// Name is the environment name.
	Name string `json:"name" msgpack:"name"`
	// Packages lists dependencies to install at creation.
	Packages []string `json:"packages,omitempty" msgpack:"packages,omitempty"`
	// Vars are environment variables visible to callables.
	Vars map[string]string `json:"vars,omitempty" msgpack:"vars,omitempty"`
	// Concurrency bounds simultaneous calls inside the environment.
	// Zero means the server default.
	Concurrency int `json:"concurrency,omitempty" msgpack:"concurrency,omitempty"`
}

// Validate checks environment options.
func (o *EnvOptions) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("env options missing name")
	}
	if o.Concurrency < 0 {
		return fmt.Errorf("invalid concurrency %d: must be non-negative", o.Concurrency)
	}
	return nil
}

// SecretRecord is registered secret material, opaque to the gateway.
type SecretRecord struct {
	// Provider names the secret backend (e.g., "aws", "gcp", "sky").
	Provider string `json:"provider" msgpack:"provider"`
	// Values is the secret material.
	Values map[string]string `json:"values" msgpack:"values"`
	// Env is the owning environment. Empty means the server default.
	Env string `json:"env,omitempty" msgpack:"env,omitempty"`
}

// SecretKey is the store key a provider's material is saved under.
func SecretKey(provider string) string {
	return "secrets/" + provider
}

// Validate checks the secret record.
func (s *SecretRecord) Validate() error {
	if s.Provider == "" {
		return fmt.Errorf("secret missing provider")
	}
	return nil
}
