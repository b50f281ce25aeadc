// Package monitor runs counting sessions. Each session reads frames from a source,
// runs them through the detector, tracker and counter, and publishes the result
// of every frame to its watchers.
package monitor

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/cyclopcam/linecount/pkg/counting"
	"github.com/cyclopcam/linecount/pkg/nn"
	"github.com/cyclopcam/linecount/pkg/tracker"
	"github.com/cyclopcam/logs"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

var ErrSessionNotFound = errors.New("Session not found")
var ErrTooManySessions = errors.New("Too many active sessions")
var ErrMonitorClosed = errors.New("Monitor is closed")

type Settings struct {
	MaxSessions   int                // Maximum number of concurrently active sessions
	MinConfidence float32            // Detections below this confidence are ignored
	Detection     nn.DetectionParams // Passed to the detector
	Counting      counting.Settings
	Tracker       tracker.Settings
	NewTracker    func() nn.Tracker // Optional. If nil, each session gets a tracker.New(Tracker)
}

func DefaultSettings() Settings {
	return Settings{
		MaxSessions:   4,
		MinConfidence: 0.3,
		Detection:     *nn.NewDetectionParams(),
		Counting:      counting.DefaultSettings(),
		Tracker:       tracker.DefaultSettings(),
	}
}

type Monitor struct {
	Log      logs.Log
	Metrics  *Metrics
	settings Settings
	detector nn.ObjectDetector // May be nil

	sessionsLock sync.Mutex
	sessions     map[string]*Session
	closed       bool
}

// NewMonitor creates a monitor that owns detector (which may be nil, if all sources
// carry recorded detections). Metrics are registered with reg.
func NewMonitor(logger logs.Log, settings Settings, detector nn.ObjectDetector, reg prometheus.Registerer) *Monitor {
	if settings.MaxSessions <= 0 {
		settings.MaxSessions = 1
	}
	return &Monitor{
		Log:      logger,
		Metrics:  NewMetrics(reg),
		settings: settings,
		detector: detector,
		sessions: map[string]*Session{},
	}
}

// Close stops all sessions, and closes the detector
func (m *Monitor) Close() {
	m.Log.Infof("Monitor shutting down")
	m.sessionsLock.Lock()
	m.closed = true
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.sessionsLock.Unlock()

	for _, s := range all {
		s.Stop()
	}
	if m.detector != nil {
		m.detector.Close()
	}
	m.Log.Infof("Monitor is closed")
}

// HasDetector returns true if sources that carry images can be counted
func (m *Monitor) HasDetector() bool {
	return m.detector != nil
}

// StartSession starts running source through the counting pipeline.
// The session takes ownership of source, and closes it when the frame loop exits.
// If an error is returned, the caller still owns source.
func (m *Monitor) StartSession(source FrameSource, options SessionOptions) (*Session, error) {
	counter := counting.NewCounter(m.Log, m.settings.Counting)
	if options.Line != nil {
		if err := counter.SetLine(*options.Line); err != nil {
			return nil, err
		}
	}
	var tr nn.Tracker
	if m.settings.NewTracker != nil {
		tr = m.settings.NewTracker()
	} else {
		tr = tracker.New(m.settings.Tracker)
	}

	s := &Session{
		Log:           m.Log,
		ID:            uuid.New().String(),
		name:          options.Name,
		startedAt:     time.Now().UTC(),
		source:        source,
		detector:      m.detector,
		detectParams:  m.settings.Detection,
		minConfidence: m.settings.MinConfidence,
		tracker:       tr,
		counter:       counter,
		metrics:       m.Metrics,
		pace:          options.Pace,
		looperStopped: make(chan bool),
	}

	m.sessionsLock.Lock()
	defer m.sessionsLock.Unlock()
	if m.closed {
		return nil, ErrMonitorClosed
	}
	if m.numActiveLocked() >= m.settings.MaxSessions {
		return nil, ErrTooManySessions
	}
	m.sessions[s.ID] = s
	s.active.Store(true)
	m.Metrics.ActiveSessions.Inc()
	m.Log.Infof("Starting session %v on %v", s.ID, s.name)
	go s.loop()
	return s, nil
}

// Caller must hold sessionsLock
func (m *Monitor) numActiveLocked() int {
	n := 0
	for _, s := range m.sessions {
		if s.IsActive() {
			n++
		}
	}
	return n
}

// NumActive returns the number of sessions whose frame loop is running
func (m *Monitor) NumActive() int {
	m.sessionsLock.Lock()
	defer m.sessionsLock.Unlock()
	return m.numActiveLocked()
}

func (m *Monitor) GetSession(id string) (*Session, error) {
	m.sessionsLock.Lock()
	defer m.sessionsLock.Unlock()
	s := m.sessions[id]
	if s == nil {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Sessions returns all sessions, active and stopped, oldest first
func (m *Monitor) Sessions() []*Session {
	m.sessionsLock.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.sessionsLock.Unlock()
	sort.Slice(all, func(i, j int) bool {
		if all[i].startedAt.Equal(all[j].startedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].startedAt.Before(all[j].startedAt)
	})
	return all
}

// RemoveSession stops the session if it is still running, and forgets it
func (m *Monitor) RemoveSession(id string) error {
	m.sessionsLock.Lock()
	s := m.sessions[id]
	delete(m.sessions, id)
	m.sessionsLock.Unlock()
	if s == nil {
		return ErrSessionNotFound
	}
	s.Stop()
	m.Log.Infof("Removed session %v", id)
	return nil
}
