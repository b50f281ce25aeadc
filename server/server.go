// Package server is the HTTP front end of the line counter
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cyclopcam/linecount/pkg/counting"
	"github.com/cyclopcam/linecount/pkg/nn"
	"github.com/cyclopcam/linecount/pkg/nnremote"
	"github.com/cyclopcam/linecount/server/config"
	"github.com/cyclopcam/linecount/server/countdb"
	"github.com/cyclopcam/linecount/server/monitor"
	"github.com/cyclopcam/linecount/server/storage"
	"github.com/cyclopcam/logs"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
)

type Server struct {
	Log              logs.Log
	Config           config.Config
	Monitor          *monitor.Monitor
	CountDB          *countdb.CountDB
	Storage          storage.Storage
	ShutdownComplete chan error // Receives the result of Shutdown()

	registry     *prometheus.Registry
	signalIn     chan os.Signal
	httpServer   *http.Server
	httpRouter   *httprouter.Router
	wsUpgrader   websocket.Upgrader
	shutdownLock sync.Mutex
	isShutdown   bool
}

// NewServer opens the database and the blob store, connects to the detector (if one is configured),
// and sets up the HTTP routes. Call ListenHTTP to start serving.
func NewServer(logger logs.Log, cfg *config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Open blob store
	var store storage.Storage
	var err error
	if cfg.Storage.GCSBucket != "" {
		store, err = storage.NewStorageGCS(logger, cfg.Storage.GCSBucket)
	} else {
		store, err = storage.NewStorageFS(logger, cfg.Storage.Root)
	}
	if err != nil {
		return nil, fmt.Errorf("Failed to open storage: %w", err)
	}

	db, err := countdb.Open(logger, cfg.DBFilename)
	if err != nil {
		return nil, err
	}

	var detector nn.ObjectDetector
	if cfg.Detector.URL != "" {
		remote, err := nnremote.New(cfg.Detector.URL, cfg.Detector.Timeout())
		if err != nil {
			db.Close()
			return nil, err
		}
		logger.Infof("Using %v detector at %v", remote.Config().Architecture, cfg.Detector.URL)
		detector = remote
	} else {
		logger.Infof("No detector configured. Only recordings with detections can be counted.")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())

	settings := monitor.DefaultSettings()
	settings.MaxSessions = cfg.MaxSessions
	settings.MinConfidence = cfg.Detector.ProbabilityThreshold
	settings.Detection.ProbabilityThreshold = cfg.Detector.ProbabilityThreshold
	settings.Detection.NmsIouThreshold = cfg.Detector.NmsIouThreshold
	settings.Counting = counting.Settings{
		IOUThreshold: cfg.IOUThreshold,
		Verbose:      cfg.VerboseCrossings,
	}
	settings.Tracker = cfg.Tracker

	s := &Server{
		Log:              logger,
		Config:           *cfg,
		Monitor:          monitor.NewMonitor(logger, settings, detector, registry),
		CountDB:          db,
		Storage:          store,
		ShutdownComplete: make(chan error, 1),
		registry:         registry,
	}
	s.setupHttpRoutes()
	return s, nil
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.httpRouter
}

// addr example: ":5001"
func (s *Server) ListenHTTP(addr string) error {
	s.Log.Infof("Listening on %v", addr)
	s.shutdownLock.Lock()
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.httpRouter,
	}
	s.shutdownLock.Unlock()
	return s.httpServer.ListenAndServe()
}

func (s *Server) ListenForKillSignals() {
	s.signalIn = make(chan os.Signal, 1)
	signal.Notify(s.signalIn, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig, ok := <-s.signalIn
		if ok {
			s.Log.Infof("Received OS signal '%v'. Shutting down", sig.String())
			s.Shutdown()
		}
	}()
}

// Shutdown stops the HTTP server and all sessions, and closes the database.
// The result is sent to ShutdownComplete. Calls after the first one do nothing.
func (s *Server) Shutdown() {
	s.shutdownLock.Lock()
	if s.isShutdown {
		s.shutdownLock.Unlock()
		return
	}
	s.isShutdown = true
	httpServer := s.httpServer
	s.shutdownLock.Unlock()

	s.Log.Infof("Shutdown")
	if s.signalIn != nil {
		signal.Stop(s.signalIn)
		close(s.signalIn)
	}

	var err error
	if httpServer != nil {
		s.Log.Infof("Closing HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = httpServer.Shutdown(ctx)
		cancel()
	}
	s.Monitor.Close()
	s.CountDB.Close()
	if closer, ok := s.Storage.(io.Closer); ok {
		if cerr := closer.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	if err != nil {
		s.Log.Warnf("Shutdown complete, with error: %v", err)
	} else {
		s.Log.Infof("Shutdown complete")
	}
	s.ShutdownComplete <- err
}
