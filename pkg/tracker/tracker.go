// Package tracker is a simple class-agnostic multi-object tracker.
//
// It is the default tracker of the counting pipeline, for when no external tracker
// is plugged in. Each track predicts its next position by constant velocity, and
// incoming boxes are greedily matched to the track whose prediction they overlap best.
package tracker

import (
	"github.com/bmharper/flatbush-go"
	"github.com/bmharper/ringbuffer"
	"github.com/chewxy/math32"
	"github.com/cyclopcam/linecount/pkg/idgen"
	"github.com/cyclopcam/linecount/pkg/nn"
)

type Settings struct {
	IOUThreshold    float32 `json:"iouThreshold"`    // Minimum IoU between a box and a track's predicted position, for the box to continue the track
	MaxMissedFrames int     `json:"maxMissedFrames"` // A track that goes unmatched for more than this many consecutive frames is dropped
	MinHits         int     `json:"minHits"`         // A track must be matched this many times before it is reported
	HistorySize     int     `json:"historySize"`     // Number of past positions that we keep per track, for velocity estimation
}

func DefaultSettings() Settings {
	return Settings{
		IOUThreshold:    0.3,
		MaxMissedFrames: 1,
		MinHits:         3,
		HistorySize:     8,
	}
}

// Internal state of a track
type track struct {
	id        int64
	history   ringbuffer.RingP[nn.Box] // Most recent matched positions
	hits      int                      // Total number of frames in which we were matched
	missed    int                      // Number of consecutive frames in which we were not matched
	matched   bool                     // Matched in the current frame
	confirmed bool                     // Seen often enough to be reported
}

// Tracker is not safe for concurrent use. It is owned by a single frame loop.
type Tracker struct {
	settings Settings
	nextID   idgen.Int64
	tracks   []*track
	frame    int // Number of frames since the last reset
}

func New(settings Settings) *Tracker {
	def := DefaultSettings()
	if settings.IOUThreshold <= 0 {
		settings.IOUThreshold = def.IOUThreshold
	}
	if settings.MaxMissedFrames < 0 {
		settings.MaxMissedFrames = 0
	}
	if settings.MinHits <= 0 {
		settings.MinHits = 1
	}
	if settings.HistorySize < 2 {
		settings.HistorySize = def.HistorySize
	}
	return &Tracker{
		settings: settings,
	}
}

func (t *track) last() nn.Box {
	return t.history.Peek(t.history.Len() - 1)
}

// Predict where the track will be in the next frame, assuming constant velocity
// over the recorded history.
func (t *track) predict() nn.Box {
	last := t.last()
	n := t.history.Len()
	if n < 2 {
		return last
	}
	first := t.history.Peek(0).Center()
	lastC := last.Center()
	vx := (lastC.X - first.X) / float32(n-1)
	vy := (lastC.Y - first.Y) / float32(n-1)
	// A track that has missed frames has moved further since its last sighting
	ahead := float32(1 + t.missed)
	return last.Offset(vx*ahead, vy*ahead)
}

// Update consumes the boxes of the current frame, and returns the confirmed tracks that
// were matched in this frame, in order of track creation.
func (t *Tracker) Update(boxes []nn.ScoredBox) []nn.TrackedObject {
	t.frame++

	predicted := make([]nn.Box, len(t.tracks))
	for i, tr := range t.tracks {
		predicted[i] = tr.predict()
		tr.matched = false
	}

	// Create spatial index on the predicted positions of the current tracks
	fb := flatbush.NewFlatbush[int32]()
	fb.Reserve(len(predicted))
	for _, p := range predicted {
		fb.Add(floor(p.X1), floor(p.Y1), ceil(p.X2), ceil(p.Y2))
	}
	fb.Finish()

	// Greedily match each incoming box (in input order) to the unmatched track whose
	// predicted position it overlaps best.
	nearby := []int{}
	for _, b := range boxes {
		box := b.Box
		if !box.IsValid() {
			continue
		}
		bestJ := -1
		bestIOU := float32(0)
		if len(predicted) != 0 {
			nearby = fb.SearchFast(floor(box.X1), floor(box.Y1), ceil(box.X2), ceil(box.Y2), nearby)
			for _, j := range nearby {
				if t.tracks[j].matched {
					continue
				}
				iou := box.IOU(predicted[j])
				if iou > bestIOU {
					bestIOU = iou
					bestJ = j
				}
			}
		}
		if bestJ != -1 && bestIOU >= t.settings.IOUThreshold {
			tr := t.tracks[bestJ]
			tr.matched = true
			tr.hits++
			tr.missed = 0
			tr.history.Add(box)
			if tr.hits >= t.settings.MinHits {
				tr.confirmed = true
			}
		} else {
			// During warm-up, new tracks are confirmed immediately, so that vehicles
			// already in view at the start of a video are not delayed.
			tr := &track{
				id:        t.nextID.Next(),
				history:   ringbuffer.NewRingP[nn.Box](nextPowerOf2(t.settings.HistorySize)),
				hits:      1,
				matched:   true,
				confirmed: t.frame <= t.settings.MinHits || t.settings.MinHits <= 1,
			}
			tr.history.Add(box)
			// New tracks are appended after the existing ones, so they are not matched by
			// later boxes in this frame, because they are not in the spatial index.
			t.tracks = append(t.tracks, tr)
		}
	}

	// Age out tracks that have not been seen for too long
	remaining := t.tracks[:0]
	for _, tr := range t.tracks {
		if !tr.matched {
			tr.missed++
		}
		if tr.missed <= t.settings.MaxMissedFrames {
			remaining = append(remaining, tr)
		}
	}
	for i := len(remaining); i < len(t.tracks); i++ {
		t.tracks[i] = nil
	}
	t.tracks = remaining

	out := make([]nn.TrackedObject, 0, len(t.tracks))
	for _, tr := range t.tracks {
		if tr.matched && tr.confirmed {
			out = append(out, nn.TrackedObject{
				ID:  tr.id,
				Box: tr.last(),
			})
		}
	}
	return out
}

// Reset forgets all tracks. Track IDs keep increasing, so IDs are never reused.
func (t *Tracker) Reset() {
	t.tracks = nil
	t.frame = 0
}

// NumTracks returns the number of live tracks, including unconfirmed ones
func (t *Tracker) NumTracks() int {
	return len(t.tracks)
}

func floor(v float32) int32 {
	return int32(math32.Floor(v))
}

func ceil(v float32) int32 {
	return int32(math32.Ceil(v))
}

func nextPowerOf2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
