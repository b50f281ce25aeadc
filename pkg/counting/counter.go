// Package counting turns per-frame detections and tracks into a per-class count
// of the vehicles that cross a line. Each track is counted at most once.
package counting

import (
	"fmt"
	"sync"

	"github.com/cyclopcam/linecount/pkg/nn"
	"github.com/cyclopcam/logs"
)

type Settings struct {
	IOUThreshold float32 // Minimum IoU for a track to inherit a detection's class. Zero value will use the default.
	Verbose      bool    // Log every crossing
}

func DefaultSettings() Settings {
	return Settings{
		IOUThreshold: DefaultIOUThreshold,
	}
}

// A track as it was seen in one frame, after classification and counting.
// SYNC-TRACKED-VEHICLE
type TrackedVehicle struct {
	ID      int64            `json:"id"`
	Box     nn.Box           `json:"box"`
	Class   *nn.VehicleClass `json:"class,omitempty"` // nil if the track has not been classified yet
	Side    *Side            `json:"side,omitempty"`  // nil until the track is classified and a line is set
	Counted bool             `json:"counted"`
}

// Label is the caption that we draw next to the box of a vehicle
func (v *TrackedVehicle) Label() string {
	if v.Class == nil {
		return fmt.Sprintf("ID: %v", v.ID)
	}
	return fmt.Sprintf("ID: %v %v", v.ID, *v.Class)
}

// A crossing event
type Crossing struct {
	TrackID int64           `json:"trackID"`
	Class   nn.VehicleClass `json:"class"`
	From    Side            `json:"from"`
	To      Side            `json:"to"`
}

// Result of processing one frame. This is everything needed to draw an overlay.
// SYNC-FRAME-RESULT
type FrameResult struct {
	Line      *Line            `json:"line,omitempty"`
	Objects   []TrackedVehicle `json:"objects"`
	Crossings []Crossing       `json:"crossings"`
	Counts    Counts           `json:"counts"`
}

// ClassifiedTrack is a track from a tracker that preserves class labels
type ClassifiedTrack struct {
	ID    int64           `json:"id"`
	Box   nn.Box          `json:"box"`
	Class nn.VehicleClass `json:"class"`
}

// Counter is the crossing and counting engine of one session.
// ProcessFrame, SetLine and Reset are serialized, so a reset never runs in the
// middle of a frame. Counts can be read at any time without waiting for a frame.
type Counter struct {
	Log logs.Log

	settings  Settings
	frameLock sync.Mutex // Held for the duration of a frame, and for any change of line or reset
	line      Line
	hasLine   bool
	tracks    *TrackStore
	stats     Stats
}

func NewCounter(log logs.Log, settings Settings) *Counter {
	if settings.IOUThreshold == 0 {
		settings.IOUThreshold = DefaultIOUThreshold
	}
	return &Counter{
		Log:      log,
		settings: settings,
		tracks:   NewTrackStore(),
	}
}

// SetLine configures or reconfigures the counting line.
// All track state is forgotten, because sides computed against the old line are
// meaningless against the new one. Counts are kept.
// An invalid line returns an error and changes nothing.
func (c *Counter) SetLine(line Line) error {
	if err := line.Validate(); err != nil {
		return err
	}
	c.frameLock.Lock()
	defer c.frameLock.Unlock()
	c.line = line
	c.hasLine = true
	c.tracks.Clear()
	return nil
}

// ClearLine removes the counting line. Tracking and classification continue, but nothing is counted.
func (c *Counter) ClearLine() {
	c.frameLock.Lock()
	defer c.frameLock.Unlock()
	c.hasLine = false
	c.tracks.Clear()
}

// Line returns false if no line has been configured
func (c *Counter) Line() (Line, bool) {
	c.frameLock.Lock()
	defer c.frameLock.Unlock()
	return c.line, c.hasLine
}

// Reset zeroes all counts and forgets all track history
func (c *Counter) Reset() {
	c.frameLock.Lock()
	defer c.frameLock.Unlock()
	c.tracks.Clear()
	c.stats.reset()
}

// Counts returns a consistent snapshot of the counts
func (c *Counter) Counts() Counts {
	counts, _ := c.stats.Snapshot()
	return counts
}

func (c *Counter) Stats() *Stats {
	return &c.stats
}

// NumTracks is the number of distinct track identities seen since the last reset
func (c *Counter) NumTracks() int {
	c.frameLock.Lock()
	defer c.frameLock.Unlock()
	return c.tracks.Len()
}

// ProcessFrame runs one frame through the engine.
// detections are the vehicles found by the detector in this frame, and tracks are
// the tracker's output for the same frame, in the order that the tracker reported them.
// Tracks inherit the class of the detection that they overlap best. A classified
// track that moves from one side of the line to the other is counted, once.
func (c *Counter) ProcessFrame(detections []nn.VehicleDetection, tracks []nn.TrackedObject) *FrameResult {
	c.frameLock.Lock()
	defer c.frameLock.Unlock()

	tracks = validTracks(tracks)
	for _, m := range Associate(tracks, detections, c.settings.IOUThreshold) {
		r := c.tracks.GetOrCreate(tracks[m.Track].ID)
		r.Class = detections[m.Detection].Class
		r.HasClass = true
	}

	return c.countTracks(tracks)
}

// Drop tracks with a non-positive ID or a malformed box.
// The input slice is returned as-is when nothing needs dropping.
func validTracks(tracks []nn.TrackedObject) []nn.TrackedObject {
	for i, t := range tracks {
		if t.ID <= 0 || !t.Box.IsValid() {
			clean := append([]nn.TrackedObject{}, tracks[:i]...)
			for _, t := range tracks[i+1:] {
				if t.ID > 0 && t.Box.IsValid() {
					clean = append(clean, t)
				}
			}
			return clean
		}
	}
	return tracks
}

// ProcessClassifiedFrame is ProcessFrame for trackers that preserve class labels.
// The track's class is taken directly from the tracker, so no association is needed.
func (c *Counter) ProcessClassifiedFrame(tracks []ClassifiedTrack) *FrameResult {
	c.frameLock.Lock()
	defer c.frameLock.Unlock()

	plain := make([]nn.TrackedObject, 0, len(tracks))
	for _, t := range tracks {
		if t.ID <= 0 || !t.Box.IsValid() {
			continue
		}
		if t.Class.Valid() {
			r := c.tracks.GetOrCreate(t.ID)
			r.Class = t.Class
			r.HasClass = true
		}
		plain = append(plain, nn.TrackedObject{ID: t.ID, Box: t.Box})
	}

	return c.countTracks(plain)
}

// Run the crossing logic over all tracks of the current frame.
// tracks must already be free of malformed entries. Caller must hold frameLock.
func (c *Counter) countTracks(tracks []nn.TrackedObject) *FrameResult {
	result := &FrameResult{
		Objects:   make([]TrackedVehicle, 0, len(tracks)), // non-nil, so that we always get an array in our JSON output
		Crossings: make([]Crossing, 0),
	}
	if c.hasLine {
		line := c.line
		result.Line = &line
	}

	for _, track := range tracks {
		r := c.tracks.GetOrCreate(track.ID)
		obj := TrackedVehicle{
			ID:  track.ID,
			Box: track.Box,
		}
		if r.HasClass {
			class := r.Class
			obj.Class = &class
		}

		if r.HasClass && c.hasLine {
			side := c.line.SideOf(track.Box.Center())
			obj.Side = &side
			if !r.HasSide {
				r.Side = side
				r.HasSide = true
			} else {
				if side != r.Side && side != SideOnLine && r.Side != SideOnLine && !r.Counted {
					c.stats.increment(r.Class)
					r.Counted = true
					result.Crossings = append(result.Crossings, Crossing{
						TrackID: track.ID,
						Class:   r.Class,
						From:    r.Side,
						To:      side,
					})
					if c.settings.Verbose {
						center := track.Box.Center()
						c.Log.Infof("Counter: '%v' %v crossed from %v to %v at %.0f,%.0f", r.Class, track.ID, r.Side, side, center.X, center.Y)
					}
				}
				r.Side = side
			}
		}
		obj.Counted = r.Counted
		result.Objects = append(result.Objects, obj)
	}

	result.Counts, _ = c.stats.Snapshot()
	return result
}
