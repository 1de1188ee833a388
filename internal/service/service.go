// Package service is the composition root (spec.md §4.9): it wires the
// outbox store, sequence allocator, checkpoint store, publisher,
// dispatcher, poller, and heartbeat ticker into one lifecycle, and
// exposes what the HTTP layer needs to serve a connection.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mdarapour/sse-realtime-demo/internal/dispatcher"
	"github.com/mdarapour/sse-realtime-demo/internal/heartbeat"
	"github.com/mdarapour/sse-realtime-demo/internal/outbox"
	"github.com/mdarapour/sse-realtime-demo/internal/poller"
	"github.com/mdarapour/sse-realtime-demo/internal/publisher"
	"github.com/mdarapour/sse-realtime-demo/internal/replay"
	"github.com/mdarapour/sse-realtime-demo/internal/stream"
)

// Store is the combined storage surface the Service needs: outbox reads
// and writes, sequence allocation, and checkpoint persistence. *outbox.MongoStore
// satisfies this directly.
type Store interface {
	outbox.Store
	outbox.SequenceAllocator
	outbox.CheckpointStore
}

// Config controls the Service's background task cadence. Zero values
// fall back to each component's own defaults.
type Config struct {
	PollInterval      time.Duration
	PollBatchSize     int
	PollErrorBackoff  time.Duration
	HeartbeatInterval time.Duration
	ShutdownTimeout   time.Duration
}

const defaultShutdownTimeout = 10 * time.Second

// Service is the running process's single instance of the event plane.
type Service struct {
	store      Store
	publisher  *publisher.Publisher
	dispatcher *dispatcher.Dispatcher
	poller     *poller.Poller
	heartbeat  *heartbeat.Ticker
	replay     *replay.Coordinator
	logger     *slog.Logger

	shutdownTimeout time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Service over store. It does not start any background
// goroutines; call Start for that.
func New(store Store, logger *slog.Logger, cfg Config) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	pub := publisher.New(store, store, logger)
	disp := dispatcher.New(logger)

	var pollOpts []poller.Option
	if cfg.PollBatchSize > 0 {
		pollOpts = append(pollOpts, poller.WithBatchSize(cfg.PollBatchSize))
	}
	if cfg.PollInterval > 0 {
		pollOpts = append(pollOpts, poller.WithPollInterval(cfg.PollInterval))
	}
	if cfg.PollErrorBackoff > 0 {
		pollOpts = append(pollOpts, poller.WithErrorBackoff(cfg.PollErrorBackoff))
	}
	poll := poller.New(store, disp, logger, pollOpts...)

	var hbOpts []heartbeat.Option
	if cfg.HeartbeatInterval > 0 {
		hbOpts = append(hbOpts, heartbeat.WithInterval(cfg.HeartbeatInterval))
	}
	hb := heartbeat.New(pub, disp.HasLocalClients, logger, hbOpts...)

	replayCoord := replay.New(store, logger)

	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	return &Service{
		store:           store,
		publisher:       pub,
		dispatcher:      disp,
		poller:          poll,
		heartbeat:       hb,
		replay:          replayCoord,
		logger:          logger.With("component", "service"),
		shutdownTimeout: shutdownTimeout,
	}
}

// Publisher exposes the publish path for the HTTP layer's publish
// handlers.
func (s *Service) Publisher() *publisher.Publisher { return s.publisher }

// Dispatcher exposes the registry for the HTTP layer's connect handler.
func (s *Service) Dispatcher() *dispatcher.Dispatcher { return s.dispatcher }

// Replay exposes the replay coordinator for the HTTP layer's connect
// handler.
func (s *Service) Replay() *replay.Coordinator { return s.replay }

// CheckpointStore exposes the checkpoint store so the HTTP layer's
// connect handler can load a client's persisted checkpoint before replay.
func (s *Service) CheckpointStore() outbox.CheckpointStore { return s.store }

// NewEngine builds a Stream Engine for a newly connecting client.
func (s *Service) NewEngine(clientID string, opts ...stream.Option) *stream.Engine {
	return stream.New(clientID, s.store, s.logger, opts...)
}

// Start seeds the poller's replay window and launches the poller and
// heartbeat ticker as background goroutines. It returns once the
// poller's initial seek has completed; the background loops continue
// running until Stop is called.
func (s *Service) Start(ctx context.Context) error {
	if err := s.poller.Init(ctx); err != nil {
		return fmt.Errorf("service: poller init: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		var wg sync.WaitGroup
		wg.Add(2)

		go func() {
			defer wg.Done()
			if err := s.poller.Run(runCtx); err != nil && runCtx.Err() == nil {
				s.logger.Error("poller exited unexpectedly", "error", err)
			}
		}()

		go func() {
			defer wg.Done()
			s.heartbeat.Run(runCtx)
		}()

		wg.Wait()
	}()

	s.logger.Info("service started")
	return nil
}

// Stop cancels the background loops and waits for them to exit, bounded
// by the configured shutdown timeout (mirroring the teacher's
// main.go server.Shutdown pattern, generalized to non-HTTP loops).
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	timeout := time.NewTimer(s.shutdownTimeout)
	defer timeout.Stop()

	select {
	case <-done:
		s.logger.Info("service stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout.C:
		return fmt.Errorf("service: shutdown timed out after %s", s.shutdownTimeout)
	}
}
