package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/justapithecus/adit/metrics"
	"github.com/justapithecus/adit/types"
	"github.com/justapithecus/adit/wire"
)

// CheckReport is the gateway health report.
type CheckReport struct {
	Status        string           `json:"status"`
	Version       string           `json:"version"`
	Commit        string           `json:"commit,omitempty"`
	StartedAt     time.Time        `json:"started_at"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	LastActivity  time.Time        `json:"last_activity"`
	DefaultEnv    string           `json:"default_env"`
	Envs          map[string]int   `json:"envs"`
	ActiveCalls   int              `json:"active_calls"`
	ConfigSaved   bool             `json:"config_saved,omitempty"`
	Metrics       metrics.Snapshot `json:"metrics"`
}

// PackageAck reports the provisioning outcome for one package.
type PackageAck struct {
	Package string `json:"package"`
	Status  string `json:"status"`
	Detail  string `json:"detail,omitempty"`
}

// EnvResult reports an environment installation.
type EnvResult struct {
	Env      string       `json:"env"`
	Packages []PackageAck `json:"packages,omitempty"`
}

// ResourceResult reports a stored resource configuration.
type ResourceResult struct {
	Name string             `json:"name"`
	Type types.ResourceType `json:"type"`
	Env  string             `json:"env"`
}

// SecretOutcome reports the registration result for one provider.
type SecretOutcome struct {
	Provider string `json:"provider"`
	Env      string `json:"env"`
	Status   string `json:"status"`
	Detail   string `json:"detail,omitempty"`
}

// Check fetches the gateway health report.
func (c *Client) Check(ctx context.Context) (CheckReport, error) {
	var report CheckReport
	if err := c.doJSON(ctx, http.MethodPost, "/check", nil, nil, &report); err != nil {
		return CheckReport{}, err
	}
	return report, nil
}

// SaveClusterConfig persists a YAML cluster configuration document on
// the gateway and returns the resulting health report.
func (c *Client) SaveClusterConfig(ctx context.Context, doc []byte) (CheckReport, error) {
	if len(doc) == 0 {
		return CheckReport{}, errors.New("missing config document")
	}
	msg := types.Message{Data: doc}
	var report CheckReport
	if err := c.doJSON(ctx, http.MethodPost, "/check", nil, msg, &report); err != nil {
		return CheckReport{}, err
	}
	return report, nil
}

// CreateEnv installs (or reuses) the named environment, delegating
// any package list to the gateway's provisioner.
func (c *Client) CreateEnv(ctx context.Context, opts types.EnvOptions) (EnvResult, error) {
	data, err := wire.EncodePayload(opts)
	if err != nil {
		return EnvResult{}, fmt.Errorf("encode env options: %w", err)
	}
	msg := types.Message{Data: data}
	var out EnvResult
	if err := c.doJSON(ctx, http.MethodPost, "/env", nil, msg, &out); err != nil {
		return EnvResult{}, err
	}
	return out, nil
}

// PutResource stores a resource configuration in the target
// environment, reviving it through a registered factory when the
// gateway has one for the resource type.
func (c *Client) PutResource(ctx context.Context, env string, cfg types.ResourceConfig) (ResourceResult, error) {
	data, err := wire.EncodePayload(cfg)
	if err != nil {
		return ResourceResult{}, fmt.Errorf("encode resource: %w", err)
	}
	msg := types.Message{Env: env, Data: data}
	var out ResourceResult
	if err := c.doJSON(ctx, http.MethodPost, "/resource", nil, msg, &out); err != nil {
		return ResourceResult{}, err
	}
	return out, nil
}

// AddSecrets registers provider-keyed secrets, returning one outcome
// per record. Records may carry their own target environment; env is
// the fallback for those that do not.
func (c *Client) AddSecrets(ctx context.Context, env string, records []types.SecretRecord) ([]SecretOutcome, error) {
	if len(records) == 0 {
		return nil, errors.New("missing secret records")
	}
	data, err := wire.EncodePayload(records)
	if err != nil {
		return nil, fmt.Errorf("encode secrets: %w", err)
	}
	msg := types.Message{Env: env, Data: data}
	var out struct {
		Results []SecretOutcome `json:"results"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/secrets", nil, msg, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}
