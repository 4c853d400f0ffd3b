package server

import (
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/justapithecus/adit/auth"
	"github.com/justapithecus/adit/iox"
	"github.com/justapithecus/adit/metrics"
	"github.com/justapithecus/adit/types"
)

// clusterConfigFile is the file name the posted cluster config is
// persisted under inside the data directory.
const clusterConfigFile = "cluster_config.yaml"

// CheckReport is the /check response: liveness plus enough shape to
// debug a deployment from one curl.
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

// check answers the health probe. A payload is taken as the cluster
// config and persisted, which needs write on the server resource;
// probing without one is open to anyone.
func (s *Server) check(w http.ResponseWriter, r *http.Request) {
	op := startOp("check")
	msg, err := decodeMessage(r)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}

	saved := false
	if len(msg.Data) > 0 {
		if err := s.authorize(r, serverResource, auth.LevelWrite); err != nil {
			s.fail(w, r, op, err)
			return
		}
		if err := s.saveClusterConfig(msg.Data); err != nil {
			s.fail(w, r, op, err)
			return
		}
		saved = true
	}

	now := time.Now().UTC()
	report := CheckReport{
		Status:        "ok",
		Version:       types.Version,
		Commit:        s.cfg.Commit,
		StartedAt:     s.startedAt,
		UptimeSeconds: int64(now.Sub(s.startedAt).Seconds()),
		LastActivity:  s.lastActivity(),
		DefaultEnv:    s.registry.Default(),
		Envs:          s.registry.KeyCounts(),
		ActiveCalls:   s.dispatcher.Active(),
		ConfigSaved:   saved,
		Metrics:       s.cfg.Collector.Snapshot(),
	}
	s.done(w, r, op, report)
}

// saveClusterConfig validates and persists the posted cluster config.
func (s *Server) saveClusterConfig(data []byte) error {
	if s.cfg.DataDir == "" {
		return fmt.Errorf("no data directory configured")
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid cluster config: %w", err)
	}
	return iox.WriteFileAtomic(filepath.Join(s.cfg.DataDir, clusterConfigFile), data, 0o600)
}
