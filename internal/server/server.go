// Package server is the supervisor: it runs the HTTP/WebSocket listener,
// schedules the periodic cleanup sweep and drives graceful shutdown.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/trivio-gg/trivio/internal/database"
	"github.com/trivio-gg/trivio/internal/quiz"
	"github.com/trivio-gg/trivio/internal/ws"
)

const (
	// shutdownGrace bounds the whole teardown sequence.
	shutdownGrace = 10 * time.Second
	// rateLimitSlack is how long past its window a rate-limit entry may
	// linger before the sweep discards it.
	rateLimitSlack = 60 * time.Second
)

// Supervisor owns process lifecycle for the session core.
type Supervisor struct {
	log      *logrus.Logger
	registry *ws.Registry
	engine   *quiz.Engine
	db       *database.DB
	httpSrv  *http.Server
	cron     *cron.Cron
}

func New(log *logrus.Logger, addr string, handler http.Handler, registry *ws.Registry, engine *quiz.Engine, db *database.DB) *Supervisor {
	return &Supervisor{
		log:      log,
		registry: registry,
		engine:   engine,
		db:       db,
		httpSrv: &http.Server{
			Addr:        addr,
			Handler:     handler,
			ReadTimeout: 10 * time.Second,
		},
		cron: cron.New(),
	}
}

// Run serves until ctx is cancelled, then tears down within the
// shutdown grace: stop accepting, close live connections with GoingAway,
// cancel all room timers, close the store.
func (s *Supervisor) Run(ctx context.Context) error {
	s.cron.AddFunc("@every 1m", s.sweep)
	s.cron.Start()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Infof("listening on %s", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.shutdown()
		return nil
	})

	return g.Wait()
}

func (s *Supervisor) shutdown() {
	s.log.Info("shutting down")
	deadline, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	stopped := s.cron.Stop()

	if err := s.httpSrv.Shutdown(deadline); err != nil {
		s.log.WithField("error", err).Warn("http shutdown")
	}
	s.registry.CloseAll(websocket.StatusGoingAway, "server shutting down")
	s.engine.Shutdown()

	// Let any in-flight cron job finish before the store closes.
	select {
	case <-stopped.Done():
	case <-deadline.Done():
	}
	s.db.Close()
	s.log.Info("shutdown complete")
}

// sweep removes stale rate-limit entries and expunges long-dead rooms.
func (s *Supervisor) sweep() {
	now := time.Now()
	s.registry.SweepRateLimiters(now, rateLimitSlack)
	if removed := s.engine.Sweep(now); removed > 0 {
		s.log.WithField("rooms", removed).Info("swept dead rooms")
	}
}
