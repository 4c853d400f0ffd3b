package server

import (
	"context"
	"errors"

	"github.com/justapithecus/adit/log"
	"github.com/justapithecus/adit/runtime"
	"github.com/justapithecus/adit/types"
)

// errProvision wraps package installation failures so /env can answer
// with a gateway status instead of blaming the request.
var errProvision = errors.New("provision failed")

// PackageAck reports the outcome of installing one package.
type PackageAck struct {
	Package string `json:"package"`
	Status  string `json:"status"`
	Detail  string `json:"detail,omitempty"`
}

// Provisioner installs an environment's packages. Implementations run
// inside the request, so slow installs should respect the context.
type Provisioner interface {
	Install(ctx context.Context, env *runtime.Environment, packages []string) ([]PackageAck, error)
}

// ResourceFactory revives a stored resource config into the live
// object kept in the environment store.
type ResourceFactory func(cfg types.ResourceConfig) (any, error)

// LogProvisioner acknowledges install requests without acting on
// them. The environment keeps the package list either way; a sidecar
// or operator performs the actual installs out of band.
type LogProvisioner struct {
	logger *log.Logger
}

// NewLogProvisioner creates the acknowledging provisioner.
func NewLogProvisioner(logger *log.Logger) *LogProvisioner {
	if logger == nil {
		logger = log.NewLogger("provision", "info")
	}
	return &LogProvisioner{logger: logger}
}

// Install records each requested package and acks it.
func (p *LogProvisioner) Install(_ context.Context, env *runtime.Environment, packages []string) ([]PackageAck, error) {
	acks := make([]PackageAck, 0, len(packages))
	for _, pkg := range packages {
		p.logger.Info("package install recorded", map[string]any{
			"env":     env.Name(),
			"package": pkg,
		})
		acks = append(acks, PackageAck{Package: pkg, Status: "recorded"})
	}
	return acks, nil
}

var _ Provisioner = (*LogProvisioner)(nil)
