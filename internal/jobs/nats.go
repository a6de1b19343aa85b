package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const subjectPrefix = "jobs."

// Envelope is the wire format of a job message. TenantID is mandatory for
// tenant-scoped jobs and checked before the body is invoked.
type Envelope struct {
	TenantID *uuid.UUID      `json:"tenant_id,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

type registration struct {
	fn            JobFunc
	bootstrap     BootstrapFunc
	requireTenant bool
}

// Subscriber dispatches NATS job messages to registered handlers. The job
// name is the subject suffix: a message on "jobs.capa.escalate" runs the
// handler registered as "capa.escalate".
type Subscriber struct {
	nc       *nats.Conn
	runner   *Runner
	handlers map[string]registration
	subs     []*nats.Subscription
}

// NewSubscriber creates a NATS job subscriber.
func NewSubscriber(nc *nats.Conn, runner *Runner) *Subscriber {
	return &Subscriber{
		nc:       nc,
		runner:   runner,
		handlers: make(map[string]registration),
	}
}

// Register adds a tenant-scoped job handler. Messages without a tenant are
// rejected at decode time.
func (s *Subscriber) Register(name string, fn JobFunc) {
	s.handlers[name] = registration{fn: fn, requireTenant: true}
}

// RegisterGlobal adds a handler for jobs that legitimately run without a
// tenant (platform maintenance).
func (s *Subscriber) RegisterGlobal(name string, fn JobFunc) {
	s.handlers[name] = registration{fn: fn}
}

// RegisterBootstrap adds a tenant-scoped handler for jobs addressed by a
// foreign key instead of a tenant id. An explicit tenant id on the envelope
// still wins; otherwise lookup derives it from the payload.
func (s *Subscriber) RegisterBootstrap(name string, lookup BootstrapFunc, fn JobFunc) {
	s.handlers[name] = registration{fn: fn, bootstrap: lookup, requireTenant: true}
}

// Start subscribes and blocks until the context is cancelled.
func (s *Subscriber) Start(ctx context.Context) error {
	sub, err := s.nc.Subscribe(subjectPrefix+">", func(msg *nats.Msg) {
		s.dispatch(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("subscribe jobs: %w", err)
	}
	s.subs = append(s.subs, sub)

	log.Info().
		Int("handlers", len(s.handlers)).
		Msg("Job subscriber started")

	<-ctx.Done()

	for _, sub := range s.subs {
		sub.Unsubscribe() //nolint:errcheck
	}

	return ctx.Err()
}

func (s *Subscriber) dispatch(ctx context.Context, msg *nats.Msg) {
	name := strings.TrimPrefix(msg.Subject, subjectPrefix)

	reg, ok := s.handlers[name]
	if !ok {
		log.Warn().Str("job", name).Msg("No handler for job")
		return
	}

	var env Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		log.Error().Err(err).Str("job", name).Msg("Failed to decode job envelope")
		return
	}
	if reg.requireTenant && env.TenantID == nil && reg.bootstrap == nil {
		log.Error().Str("job", name).Err(ErrMissingTenant).Msg("Rejecting job")
		return
	}

	var err error
	if env.TenantID == nil && reg.bootstrap != nil {
		err = s.runner.Bootstrap(ctx, name, env.Payload, reg.bootstrap, reg.fn)
	} else {
		err = s.runner.Run(ctx, name, env.TenantID, env.Payload, reg.fn)
	}
	if err != nil {
		log.Error().Err(err).Str("job", name).Msg("Job execution failed")
	}
}
