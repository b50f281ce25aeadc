package monitor

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyclopcam/linecount/pkg/counting"
	"github.com/cyclopcam/linecount/pkg/nn"
	"github.com/cyclopcam/linecount/pkg/perfstats"
	"github.com/cyclopcam/logs"
)

// FrameSource produces the frames of one video.
// NextFrame returns io.EOF at the end of the stream. It must not block indefinitely,
// otherwise the session cannot be stopped.
type FrameSource interface {
	NextFrame() (*nn.Frame, error)
	FPS() float64     // Native frame rate of the source
	Classes() []string // Class names of recorded detections (nil for COCO)
	Close() error
}

// SessionOptions control a new session
type SessionOptions struct {
	Name string         // Human readable name of the source, such as a recording filename
	Line *counting.Line // Counting line. If nil, we track without counting until a line is set.
	Pace bool           // Run at the source's native frame rate, instead of as fast as possible
}

// FrameEvent is sent to watchers after each frame
type FrameEvent struct {
	SessionID string                 `json:"sessionID"`
	Frame     int                    `json:"frame"`
	PTS       float64                `json:"pts"` // Seconds since the start of the video
	Result    *counting.FrameResult `json:"result"`
}

// SessionInfo is a snapshot of the state of a session
type SessionInfo struct {
	ID         string                    `json:"id"`
	Name       string                    `json:"name"`
	Active     bool                      `json:"active"`
	StartedAt  time.Time                 `json:"startedAt"`
	Frames     int64                     `json:"frames"`
	Line       *counting.Line            `json:"line,omitempty"`
	Counts     counting.Counts           `json:"counts"`
	LastUpdate *time.Time                `json:"lastUpdate,omitempty"` // Time of the most recent change to the counts
	NumTracks  int                       `json:"numTracks"`
	Perf       perfstats.PipelineSummary `json:"perf"`
}

// Session is one video being run through the counting pipeline.
// The frame loop runs on its own goroutine, from StartSession until the end of the
// stream, or until Stop(). The counts remain available after the loop has stopped.
type Session struct {
	Log logs.Log
	ID  string

	name          string
	startedAt     time.Time
	source        FrameSource
	detector      nn.ObjectDetector // May be nil, in which case frames must carry recorded detections
	detectParams  nn.DetectionParams
	minConfidence float32
	tracker       nn.Tracker // Owned by the frame loop
	counter       *counting.Counter
	metrics       *Metrics
	perf          perfstats.Pipeline
	pace          bool

	frames        atomic.Int64
	active        atomic.Bool
	mustStop      atomic.Bool // True if Stop() has been called
	looperStopped chan bool   // Closed when the frame loop has exited

	watchersLock sync.RWMutex
	watchers     []chan *FrameEvent
}

// Name of the source
func (s *Session) Name() string {
	return s.name
}

// IsActive is true while the frame loop is running
func (s *Session) IsActive() bool {
	return s.active.Load()
}

// Done is closed when the frame loop exits
func (s *Session) Done() <-chan bool {
	return s.looperStopped
}

// Stop the frame loop, and wait for it to exit. Safe to call more than once.
func (s *Session) Stop() {
	s.mustStop.Store(true)
	<-s.looperStopped
}

// SetLine replaces the counting line. An invalid line returns an error and changes nothing.
func (s *Session) SetLine(line counting.Line) error {
	if err := s.counter.SetLine(line); err != nil {
		return err
	}
	s.Log.Infof("Session %v line set to (%v,%v)-(%v,%v)", s.ID, line.Start.X, line.Start.Y, line.End.X, line.End.Y)
	return nil
}

// Reset zeroes the counts, and forgets which vehicles have been counted
func (s *Session) Reset() {
	s.counter.Reset()
	s.Log.Infof("Session %v counts reset", s.ID)
}

// Counts returns the current counts
func (s *Session) Counts() counting.Counts {
	return s.counter.Counts()
}

// Statistics returns the counts, and the time at which they last changed (zero if never)
func (s *Session) Statistics() (counting.Counts, time.Time) {
	return s.counter.Stats().Snapshot()
}

func (s *Session) Info() SessionInfo {
	counts, lastUpdate := s.counter.Stats().Snapshot()
	info := SessionInfo{
		ID:        s.ID,
		Name:      s.name,
		Active:    s.IsActive(),
		StartedAt: s.startedAt,
		Frames:    s.frames.Load(),
		Counts:    counts,
		NumTracks: s.counter.NumTracks(),
		Perf:      s.perf.Summary(),
	}
	if line, ok := s.counter.Line(); ok {
		info.Line = &line
	}
	if !lastUpdate.IsZero() {
		info.LastUpdate = &lastUpdate
	}
	return info
}

// Frame loop. Runs until the end of the stream, or Stop()
func (s *Session) loop() {
	lastErrAt := time.Time{}

	var ticker *time.Ticker
	if s.pace {
		fps := s.source.FPS()
		if fps <= 0 {
			fps = 30
		}
		ticker = time.NewTicker(time.Duration(float64(time.Second) / fps))
		defer ticker.Stop()
	}

	for !s.mustStop.Load() {
		frame, err := s.source.NextFrame()
		if err == io.EOF {
			s.Log.Infof("Session %v reached the end of %v after %v frames", s.ID, s.name, s.frames.Load())
			break
		} else if err != nil {
			s.Log.Errorf("Session %v failed to read frame: %v", s.ID, err)
			break
		}
		s.processFrame(frame, &lastErrAt)
		if ticker != nil {
			<-ticker.C
		}
	}

	if err := s.source.Close(); err != nil {
		s.Log.Warnf("Session %v failed to close source: %v", s.ID, err)
	}
	s.Log.Infof("Session %v stopped. %v", s.ID, s.perf.Summary())
	s.active.Store(false)
	s.metrics.ActiveSessions.Dec()
	close(s.looperStopped)
}

func (s *Session) processFrame(frame *nn.Frame, lastErrAt *time.Time) {
	var objects []nn.ObjectDetection
	var classes []string
	if frame.HasRecorded {
		objects = frame.Recorded
		classes = s.source.Classes()
	} else if frame.Image != nil && s.detector != nil {
		start := time.Now()
		found, err := s.detector.DetectObjects(*frame.Image, &s.detectParams)
		s.perf.AddDetect(time.Since(start))
		if err != nil {
			// Treat this frame as having no objects
			s.metrics.DetectorErrors.Inc()
			if time.Since(*lastErrAt) > 15*time.Second {
				s.Log.Errorf("Session %v error detecting objects: %v", s.ID, err)
				*lastErrAt = time.Now()
			}
		} else {
			objects = found
			classes = s.detector.Config().Classes
		}
	}

	vehicles := nn.FilterVehicles(objects, classes, s.minConfidence)

	start := time.Now()
	tracks := s.tracker.Update(nn.ScoredBoxes(vehicles))
	trackTime := time.Since(start)

	start = time.Now()
	result := s.counter.ProcessFrame(vehicles, tracks)
	s.perf.AddFrame(trackTime, time.Since(start))

	s.frames.Add(1)
	s.metrics.FramesProcessed.Inc()
	for _, c := range result.Crossings {
		s.metrics.Crossings.WithLabelValues(c.Class.String()).Inc()
	}

	s.sendToWatchers(&FrameEvent{
		SessionID: s.ID,
		Frame:     frame.Index,
		PTS:       frame.PTS.Seconds(),
		Result:    result,
	})
}
