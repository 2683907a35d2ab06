// Package liveness pings renderers periodically and prunes the ones that
// stop answering.
package liveness

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/fixtureplay/internal/metrics"
	"github.com/ayusman/fixtureplay/internal/protocol"
)

// DefaultPingInterval is used when Config.PingInterval is zero.
const DefaultPingInterval = 5 * time.Second

// Sweeper closes a ping round and reports the renderers it pruned.
type Sweeper interface {
	Sweep() []protocol.RendererID
}

// Config holds Scheduler options.
type Config struct {
	PingInterval time.Duration
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
}

// Scheduler runs ping rounds. A round sweeps the connection records and then
// broadcasts pingRenderers; renderers answer with their fixture list.
type Scheduler struct {
	sweeper  Sweeper
	poster   protocol.Poster
	interval time.Duration
	log      *zap.Logger
	metrics  *metrics.Metrics
}

// New creates a Scheduler.
func New(sweeper Sweeper, poster protocol.Poster, cfg Config) *Scheduler {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		sweeper:  sweeper,
		poster:   poster,
		interval: cfg.PingInterval,
		log:      log.Named("liveness"),
		metrics:  cfg.Metrics,
	}
}

// Interval returns the time between rounds.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Tick runs one round synchronously and returns the pruned renderer ids.
func (s *Scheduler) Tick() []protocol.RendererID {
	pruned := s.sweeper.Sweep()
	for _, id := range pruned {
		s.log.Info("renderer stopped responding", zap.String("renderer", string(id)))
	}

	s.metrics.Round()
	if err := s.poster.Post(protocol.PingRenderers{}); err != nil {
		s.log.Warn("ping failed", zap.Error(err))
	} else {
		s.metrics.Sent(string(protocol.TypePingRenderers))
	}
	return pruned
}

// Run fires a round immediately and then every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Debug("starting ping rounds", zap.Duration("interval", s.interval))

	// The first round announces the UI to lazy renderers.
	s.Tick()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Tick()
		}
	}
}
