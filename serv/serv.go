// Package serv hosts the ecliptic service: the management HTTP API used by
// the dashboard and the MCP surface used by agents, over one catalog and one
// pool of datastore files.
package serv

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/eclipticdb/ecliptic/catalog"
	"github.com/eclipticdb/ecliptic/controller"
	"github.com/eclipticdb/ecliptic/datastore"
	"github.com/eclipticdb/ecliptic/serv/internal/util"
)

var version string

const (
	serverName = "Ecliptic"
	defaultHP  = "0.0.0.0:8080"
)

// Service is one running ecliptic instance.
type Service struct {
	conf *Config
	log  *zap.SugaredLogger
	zlog *zap.Logger
	cat  *catalog.Store
	ctrl *controller.Controllers
	srv  *http.Server
}

// NewService opens the catalog and the datastores directory and wires the
// controllers. The caller owns Start and Close.
func NewService(conf *Config) (*Service, error) {
	zlog := newLogger(conf)
	log := zlog.Sugar()

	cat, err := catalog.Open(conf.CatalogPath, log)
	if err != nil {
		return nil, err
	}

	pool := datastore.NewPool(conf.DataDir)
	files := datastore.NewManager(afero.NewOsFs(), pool, log)

	return &Service{
		conf: conf,
		log:  log,
		zlog: zlog,
		cat:  cat,
		ctrl: controller.New(cat, files, log),
	}, nil
}

func newLogger(conf *Config) *zap.Logger {
	json := conf.LogFormat == "json" || (conf.LogFormat != "simple" && conf.Production)
	return util.NewLoggerAtLevel(json, util.ParseLevel(conf.LogLevel))
}

// Start runs the HTTP server until an interrupt arrives, then drains and
// closes the backends.
func (s *Service) Start() error {
	r := chi.NewRouter()
	handler := s.routesHandler(r)

	if !s.conf.MCP.Disable {
		s.log.Debugw("mcp tools registered", "tools", mcpToolNames)
	}

	s.srv = &http.Server{
		Addr:              s.conf.hostPort,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		MaxHeaderBytes:    1 << 20,
		ReadHeaderTimeout: 10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt)
		<-sigint

		if err := s.srv.Shutdown(context.Background()); err != nil {
			s.log.Warn("shutdown signal received")
		}
		close(idleConnsClosed)
	}()

	s.srv.RegisterOnShutdown(func() {
		s.Close()
		s.log.Info("shutdown complete")
	})

	ver := version
	if ver == "" {
		ver = "not-set"
	}
	s.zlog.Info("service started",
		zap.String("version", ver),
		zap.String("host-port", s.conf.hostPort),
		zap.String("app-name", s.conf.AppName),
		zap.Bool("production", s.conf.Production),
		zap.Bool("mcp-only", s.conf.MCP.Only),
	)

	if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	<-idleConnsClosed
	return nil
}

// Close releases every pooled datastore connection and the catalog.
func (s *Service) Close() {
	s.ctrl.Files.Pool().CloseAll()
	if err := s.cat.Close(); err != nil {
		s.log.Warnf("catalog close: %s", err)
	}
}

// Controllers exposes the wired controllers, used by the stdio MCP mode and
// by tests.
func (s *Service) Controllers() *controller.Controllers { return s.ctrl }
