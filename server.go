// Package querydesk composes the query pipeline and its HTTP front end.
package querydesk

import (
	"context"
	"errors"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"

	"pkt.systems/pslog"
	"pkt.systems/querydesk/core"
	"pkt.systems/querydesk/httpapi"
	"pkt.systems/querydesk/internal/pdp"
)

// Server runs the HTTP API until stopped.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
	// Addr reports the bound listen address once started.
	Addr() string
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	HTTP httpapi.Config
}

// ServerDeps captures dependencies required to build the server.
type ServerDeps struct {
	Pipeline core.Pipeline
	Users    core.UserDirectory
	Auth     httpapi.Authenticator
	Admin    pdp.Admin
	Hub      *httpapi.Hub
	Logger   pslog.Logger
}

// New constructs a server.
func New(cfg ServerConfig, deps ServerDeps) (Server, error) {
	httpSrv, err := httpapi.NewServer(cfg.HTTP, httpapi.Deps{
		Pipeline: deps.Pipeline,
		Users:    deps.Users,
		Auth:     deps.Auth,
		Admin:    deps.Admin,
		Hub:      deps.Hub,
		Logger:   deps.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &compositeServer{cfg: cfg, httpSrv: httpSrv}, nil
}

type compositeServer struct {
	cfg     ServerConfig
	httpSrv *httpapi.Server
	logger  pslog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	group   *errgroup.Group
	addr    string
	started bool
}

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	listener, err := net.Listen("tcp", s.cfg.HTTP.Addr)
	if err != nil {
		return err
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.logger = pslog.Ctx(s.ctx)
	s.addr = listener.Addr().String()
	s.started = true

	s.logger.Info("server start", "http_addr", s.addr, "http_base_path", s.cfg.HTTP.BasePath)
	s.httpSrv.SetBaseContext(s.ctx)
	group, gctx := errgroup.WithContext(s.ctx)
	group.Go(func() error {
		if err := httpapi.Serve(gctx, listener, s.httpSrv.Handler()); err != nil {
			s.logger.Error("http server failed", "err", err)
			return err
		}
		return nil
	})
	s.group = group
	return nil
}

func (s *compositeServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	group := s.group
	started := s.started
	cancel := s.cancel
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}
	err := group.Wait()
	cancel()
	if err != nil {
		s.logger.Error("server stopped", "err", err)
	}
	return err
}

func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	group := s.group
	started := s.started
	log := s.logger
	s.mu.Unlock()
	if !started {
		return nil
	}
	log.Info("server stop requested")
	cancel()
	if ctx == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		_ = group.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-done:
		log.Info("server stopped")
		return nil
	}
}
