package server

import (
	"fmt"
	"net/http"

	"github.com/justapithecus/adit/auth"
	"github.com/justapithecus/adit/types"
	"github.com/justapithecus/adit/wire"
)

type installResult struct {
	Env      string       `json:"env"`
	Packages []PackageAck `json:"packages,omitempty"`
}

// installEnv creates or reuses an environment and installs its
// packages. Creation is idempotent: options only apply to the call
// that wins it.
func (s *Server) installEnv(w http.ResponseWriter, r *http.Request) {
	op := startOp("env")
	msg, err := decodeMessage(r)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}

	opts := types.EnvOptions{}
	if len(msg.Data) > 0 {
		if err := wire.DecodePayloadInto(msg.Data, &opts); err != nil {
			s.fail(w, r, op, err)
			return
		}
	}
	if opts.Name == "" {
		opts.Name = msg.Env
	}
	if opts.Name == "" {
		opts.Name = s.registry.Default()
	}
	if err := opts.Validate(); err != nil {
		s.fail(w, r, op, err)
		return
	}
	op.env = opts.Name

	if err := s.authorize(r, opts.Name, auth.LevelWrite); err != nil {
		s.fail(w, r, op, err)
		return
	}
	env, err := s.registry.GetOrCreateWith(opts)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}

	acks, err := s.cfg.Provisioner.Install(r.Context(), env, opts.Packages)
	if err != nil {
		s.fail(w, r, op, fmt.Errorf("%w: %s", errProvision, err))
		return
	}
	s.done(w, r, op, installResult{Env: env.Name(), Packages: acks})
}

type resourceResult struct {
	Name string             `json:"name"`
	Type types.ResourceType `json:"type"`
	Env  string             `json:"env"`
}

// putResource stores a named resource from its config envelope. Types
// with a registered factory are revived into live objects; the rest
// keep the config itself so later gets can reconstruct them
// client-side.
func (s *Server) putResource(w http.ResponseWriter, r *http.Request) {
	op := startOp("resource")
	msg, err := decodeMessage(r)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}

	var cfg types.ResourceConfig
	if err := wire.DecodePayloadInto(msg.Data, &cfg); err != nil {
		s.fail(w, r, op, err)
		return
	}
	if err := cfg.Validate(); err != nil {
		s.fail(w, r, op, err)
		return
	}
	if cfg.Env == "" {
		cfg.Env = msg.Env
	}
	op.key = cfg.Name
	op.env = cfg.Env

	if err := s.authorize(r, cfg.Name, auth.LevelWrite); err != nil {
		s.fail(w, r, op, err)
		return
	}
	env, err := s.registry.GetOrCreate(cfg.Env)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	op.env = env.Name()
	cfg.Env = env.Name()

	var stored any = cfg
	if factory, ok := s.cfg.Factories[cfg.Type]; ok {
		v, err := factory(cfg)
		if err != nil {
			s.fail(w, r, op, fmt.Errorf("revive %s %q: %w", cfg.Type, cfg.Name, err))
			return
		}
		stored = v
	}
	env.Store().Put(cfg.Name, stored)
	s.cfg.Collector.IncObjectPut()
	if msg.Save {
		s.persist(env.Name(), cfg.Name, msg.Data)
	}
	s.done(w, r, op, resourceResult{Name: cfg.Name, Type: cfg.Type, Env: env.Name()})
}

// SecretOutcome reports what happened to one provider's material.
type SecretOutcome struct {
	Provider string `json:"provider"`
	Env      string `json:"env"`
	Status   string `json:"status"`
	Detail   string `json:"detail,omitempty"`
}

type secretsResult struct {
	Results []SecretOutcome `json:"results"`
}

// addSecrets stores secret material per provider. Each record succeeds
// or fails on its own; the response reports every outcome and the
// route answers 200 as long as the request itself was well formed.
func (s *Server) addSecrets(w http.ResponseWriter, r *http.Request) {
	op := startOp("secrets")
	msg, err := decodeMessage(r)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}

	var records []types.SecretRecord
	if err := wire.DecodePayloadInto(msg.Data, &records); err != nil {
		s.fail(w, r, op, err)
		return
	}
	if len(records) == 0 {
		s.fail(w, r, op, fmt.Errorf("secrets missing records"))
		return
	}

	out := secretsResult{Results: make([]SecretOutcome, 0, len(records))}
	for _, rec := range records {
		out.Results = append(out.Results, s.addSecret(r, msg, rec))
	}
	s.done(w, r, op, out)
}

// addSecret stores one provider's material, reporting the outcome
// instead of failing the batch.
func (s *Server) addSecret(r *http.Request, msg *types.Message, rec types.SecretRecord) SecretOutcome {
	if rec.Env == "" {
		rec.Env = msg.Env
	}
	if rec.Env == "" {
		rec.Env = s.registry.Default()
	}
	outcome := SecretOutcome{Provider: rec.Provider, Env: rec.Env}

	if err := rec.Validate(); err != nil {
		outcome.Status = "error"
		outcome.Detail = err.Error()
		return outcome
	}
	if err := s.authorize(r, rec.Env, auth.LevelWrite); err != nil {
		outcome.Status = "denied"
		outcome.Detail = err.Error()
		return outcome
	}
	env, err := s.registry.GetOrCreate(rec.Env)
	if err != nil {
		outcome.Status = "error"
		outcome.Detail = err.Error()
		return outcome
	}
	env.Store().Put(types.SecretKey(rec.Provider), rec)
	s.cfg.Collector.IncObjectPut()
	outcome.Status = "ok"
	return outcome
}
