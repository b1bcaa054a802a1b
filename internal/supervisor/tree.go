// Package supervisor runs the server's long-lived services under a
// suture supervisor tree: the HTTP API in one child supervisor and the
// CF model reload loop in another, so a crashing reload never takes the
// API down with it.
package supervisor

import (
	"context"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/cinemind/cinemind/internal/logging"
)

// TreeConfig holds the supervisor failure parameters.
type TreeConfig struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

// DefaultTreeConfig matches suture's documented defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree is the two-layer supervisor: api and model children under one
// root.
type Tree struct {
	root  *suture.Supervisor
	api   *suture.Supervisor
	model *suture.Supervisor
}

// NewTree builds the supervisor hierarchy. Suture events go through the
// slog bridge into the shared zerolog sink.
func NewTree(cfg TreeConfig) *Tree {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5.0
	}
	if cfg.FailureDecay == 0 {
		cfg.FailureDecay = 30.0
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = 15 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	hook := (&sutureslog.Handler{Logger: logging.Slog()}).MustHook()
	spec := suture.Spec{
		EventHook:        hook,
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}

	t := &Tree{
		root:  suture.New("cinemind", spec),
		api:   suture.New("api", spec),
		model: suture.New("model", spec),
	}
	t.root.Add(t.api)
	t.root.Add(t.model)
	return t
}

// AddAPIService registers a service under the api layer.
func (t *Tree) AddAPIService(svc suture.Service) {
	t.api.Add(svc)
}

// AddModelService registers a service under the model layer.
func (t *Tree) AddModelService(svc suture.Service) {
	t.model.Add(svc)
}

// Serve blocks until ctx is cancelled or the tree fails terminally.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}
