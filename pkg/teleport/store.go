// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package teleport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mia-platform/mltrack/internal/logger"
	"github.com/mia-platform/mltrack/pkg/backend"
	"github.com/mia-platform/mltrack/pkg/backend/stores"
)

const loggerName = "mltrack:teleport"

var defaultStore = sync.OnceValue(func() *Store {
	return NewStore(stores.NewClient())
})

// Default returns the process wide store used by the package level functions.
func Default() *Store {
	return defaultStore()
}

// Store holds the process wide destination and applies it to a backend client.
// The lock keeps reads and writes memory safe, concurrent sessions still race and
// the last writer wins.
type Store struct {
	client *backend.Client

	lock    sync.RWMutex
	current *Destination
}

// NewStore returns an empty store applying destinations to client.
func NewStore(client *backend.Client) *Store {
	return &Store{client: client}
}

// Client returns the backend client the store applies destinations to.
func (s *Store) Client() *backend.Client {
	return s.client
}

// Set replaces the active destination with d and selects it on the backend.
// When the backend step fails the previous destination is active again, unless
// another Set replaced d in the meantime.
func (s *Store) Set(ctx context.Context, d Destination) error {
	if err := d.Validate(); err != nil {
		return err
	}

	s.lock.Lock()
	previous := s.current
	s.current = &d
	s.lock.Unlock()

	if err := s.Apply(ctx, d); err != nil {
		s.lock.Lock()
		if s.current == &d {
			s.current = previous
		}
		s.lock.Unlock()
		return err
	}
	return nil
}

// Get returns the active destination, ErrContextNotSet when none was ever set.
func (s *Store) Get() (Destination, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if s.current == nil {
		return Destination{}, ErrContextNotSet
	}
	return *s.current, nil
}

// Use installs d until the returned restore function is called, which brings back
// the destination active before the call.
func (s *Store) Use(ctx context.Context, d Destination) (func(), error) {
	if err := d.Validate(); err != nil {
		return func() {}, err
	}

	s.lock.Lock()
	previous := s.current
	s.current = &d
	s.lock.Unlock()

	restore := func() {
		s.lock.Lock()
		defer s.lock.Unlock()
		s.current = previous
	}

	if err := s.Apply(ctx, d); err != nil {
		restore()
		return func() {}, err
	}
	return restore, nil
}

// Resolve returns the destination of ctx, then the active one, then the one in the environment.
func (s *Store) Resolve(ctx context.Context) (Destination, error) {
	if d, ok := FromContext(ctx); ok {
		return d, nil
	}

	if d, err := s.Get(); err == nil {
		return d, nil
	}

	d, err := FromEnv()
	if err != nil {
		return Destination{}, fmt.Errorf("%w: %w", ErrContextNotSet, err)
	}
	if d.ExperimentName == "" {
		return Destination{}, ErrContextNotSet
	}
	return d, nil
}

// Activate resolves the destination for ctx and applies it to the backend.
func (s *Store) Activate(ctx context.Context) (Destination, error) {
	d, err := s.Resolve(ctx)
	if err != nil {
		return Destination{}, err
	}
	return d, s.Apply(ctx, d)
}

// Apply points the backend client to d: the tracking endpoint is set when given, the
// experiment is created with the artifact location when missing and then selected.
func (s *Store) Apply(ctx context.Context, d Destination) error {
	log := logger.Named(ctx, loggerName)
	log.Debug("applying destination",
		"experiment", d.ExperimentName,
		"trackingEndpoint", d.TrackingEndpoint,
		"artifactLocation", d.ArtifactLocation,
	)

	if d.TrackingEndpoint != "" {
		if err := s.client.SetTrackingEndpoint(ctx, d.TrackingEndpoint); err != nil {
			return err
		}
	}

	experiment, err := s.client.GetExperimentByName(ctx, d.ExperimentName)
	if err != nil {
		return err
	}

	if experiment == nil && d.ArtifactLocation != "" {
		_, err := s.client.CreateExperiment(ctx, d.ExperimentName, d.ArtifactLocation)
		if errors.Is(err, backend.ErrExperimentAlreadyExists) {
			log.Debug("experiment created concurrently", "experiment", d.ExperimentName)
		} else if err != nil {
			return err
		}
	}

	return s.client.SetExperiment(ctx, d.ExperimentName)
}

// SetDestination replaces the process wide destination.
func SetDestination(ctx context.Context, d Destination) error {
	return Default().Set(ctx, d)
}

// GetDestination returns the process wide destination.
func GetDestination() (Destination, error) {
	return Default().Get()
}

// Use installs d process wide until restore is called.
func Use(ctx context.Context, d Destination) (func(), error) {
	return Default().Use(ctx, d)
}

// Resolve returns the destination a tracked call made with ctx would use.
func Resolve(ctx context.Context) (Destination, error) {
	return Default().Resolve(ctx)
}
