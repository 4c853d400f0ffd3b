// Package server exposes the gateway over HTTP. Unary routes speak
// plain JSON; call and object reads stream newline-delimited Response
// chunks so partial results and captured logs arrive as they happen.
//
// Routes are thin: they decode the envelope, authorize, and hand the
// work to the dispatcher and registry. Every route records an activity
// entry, so the ledger sees denied and failed operations too.
package server

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/justapithecus/adit/auth"
	"github.com/justapithecus/adit/ledger"
	"github.com/justapithecus/adit/log"
	"github.com/justapithecus/adit/metrics"
	"github.com/justapithecus/adit/runtime"
	"github.com/justapithecus/adit/store"
	"github.com/justapithecus/adit/types"
)

// serverResource is the resource name server-wide operations are
// authorized against.
const serverResource = "server"

// Config configures a Server. Dispatcher is required; everything else
// degrades gracefully when absent.
type Config struct {
	// DataDir is the directory for server-level state such as the
	// cluster config. Empty disables persistence of that state.
	DataDir string

	// PollInterval bounds one poll iteration when streaming. Zero means
	// runtime.DefaultPollInterval.
	PollInterval time.Duration

	// GetWait is the default bounded wait for object reads when the
	// request does not carry one. Zero means runtime.DefaultGetWait.
	GetWait time.Duration

	// Commit identifies the build, surfaced by /check.
	Commit string

	// Dispatcher launches and tracks calls. Required.
	Dispatcher *runtime.Dispatcher

	// Gate authorizes operations. Nil grants everything.
	Gate *auth.Gate

	// Recorder receives activity entries. Nil discards them.
	Recorder *ledger.Recorder

	// Collector counts route-level metrics.
	Collector *metrics.Collector

	// Disk mirrors saved objects onto durable storage. Nil disables
	// write-through.
	Disk *store.Disk

	// Provisioner installs environment packages. Nil means a logging
	// provisioner that records requests without acting on them.
	Provisioner Provisioner

	// Factories revive resource configs into live objects by type.
	// Types without a factory are stored as plain config.
	Factories map[types.ResourceType]ResourceFactory

	// Logger receives request and route logs.
	Logger *log.Logger
}

// Server is the gateway's HTTP face.
type Server struct {
	cfg        Config
	dispatcher *runtime.Dispatcher
	registry   *runtime.Registry
	logger     *log.Logger
	router     chi.Router

	startedAt  time.Time
	lastActive atomic.Int64
}

// New builds the server and its route table.
func New(cfg Config) (*Server, error) {
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("server config missing dispatcher")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = runtime.DefaultPollInterval
	}
	if cfg.GetWait <= 0 {
		cfg.GetWait = runtime.DefaultGetWait
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewLogger("server", "info")
	}
	if cfg.Provisioner == nil {
		cfg.Provisioner = NewLogProvisioner(cfg.Logger)
	}

	s := &Server{
		cfg:        cfg,
		dispatcher: cfg.Dispatcher,
		registry:   cfg.Dispatcher.Registry(),
		logger:     cfg.Logger,
		startedAt:  time.Now().UTC(),
	}
	s.lastActive.Store(s.startedAt.UnixMilli())

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(s.requestID)
	r.Use(s.credential)

	r.Post("/check", s.check)
	r.Post("/env", s.installEnv)
	r.Post("/resource", s.putResource)
	r.Post("/secrets", s.addSecrets)
	r.Post("/run", s.runNamed)
	r.Post("/cancel", s.cancel)

	r.Get("/object", s.getObject)
	r.Post("/object", s.putObject)
	r.Put("/object", s.renameObject)
	r.Delete("/object", s.deleteObject)

	r.Get("/run_object", s.getRunObject)
	r.Get("/keys", s.keys)

	r.Post("/call/{fn_name}", s.callFn)

	// The module route matches last so named routes above keep their
	// meaning.
	r.Post("/{module}/{method}", s.callMethod)

	s.router = r
	return s, nil
}

// Router returns the HTTP handler for mounting or serving.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) touch() {
	s.lastActive.Store(time.Now().UTC().UnixMilli())
}

func (s *Server) lastActivity() time.Time {
	return time.UnixMilli(s.lastActive.Load()).UTC()
}

// authorize checks the request's credential against a resource.
func (s *Server) authorize(r *http.Request, resource string, required auth.Level) error {
	return s.cfg.Gate.Authorize(r.Context(), credentialFrom(r.Context()), resource, required)
}

// authorizeInvoke checks the right to call into resource within env.
func (s *Server) authorizeInvoke(r *http.Request, resource, env string) error {
	return s.cfg.Gate.AuthorizeInvoke(r.Context(), credentialFrom(r.Context()), resource, env)
}
