// Package replay plays back a recording of detector output as a stream of frames.
//
// A recording is the JSON form of nn.VideoLabels: the objects that a detector found
// in each frame of a video. Replaying a recording runs the tracking and counting
// pipeline exactly as it would run on the video, without needing the video or the model.
package replay

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cyclopcam/linecount/pkg/nn"
)

// Frame rate that we assume when a recording doesn't specify one
const DefaultFPS = 30

// Limits on the frame numbers of a recording. Gaps are replayed as empty frames,
// so without these a tiny recording could describe billions of frames.
const (
	MaxFrameGap = 30 * 60 * 10      // 10 minutes at 30 FPS between consecutive recorded frames
	MaxFrames   = 30 * 60 * 60 * 24 // 24 hours at 30 FPS
)

var ErrFrameGap = errors.New("Gap between recorded frames is too large")
var ErrTooManyFrames = errors.New("Recording has too many frames")

// Recording is a decoded detection recording, with a read cursor
type Recording struct {
	labels   *nn.VideoLabels
	frames   []*nn.ImageLabels // Frames with normalized, strictly increasing frame numbers
	next     int               // Index into frames of the next frame to emit
	nextIdx  int               // Frame number of the next frame to emit
	dropped  int               // Number of malformed objects dropped while decoding
	numTotal int               // Total number of frames, including the gaps between recorded frames
}

// Open reads a recording from a JSON file
func Open(filename string) (*Recording, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rec, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("Failed to read recording %v: %w", filename, err)
	}
	return rec, nil
}

// Decode reads a recording from JSON.
// Objects with a negative class or a malformed box are dropped.
// Frame numbers that go backwards are replaced by the next frame number, and gaps
// between frame numbers are replayed as frames with no objects.
// A gap of more than MaxFrameGap, or a frame number beyond MaxFrames, is an error.
func Decode(r io.Reader) (*Recording, error) {
	labels := &nn.VideoLabels{}
	if err := json.NewDecoder(r).Decode(labels); err != nil {
		return nil, err
	}
	if labels.FPS < 0 {
		return nil, fmt.Errorf("Invalid frame rate %v", labels.FPS)
	}
	rec := &Recording{
		labels: labels,
	}
	prev := -1
	for _, f := range labels.Frames {
		if f == nil {
			continue
		}
		// prev is bounded by MaxFrames, so these sums cannot overflow
		if f.Frame > prev+1+MaxFrameGap {
			return nil, fmt.Errorf("%w: frame %v follows frame %v", ErrFrameGap, f.Frame, prev)
		}
		if f.Frame >= MaxFrames || prev+1 >= MaxFrames {
			return nil, fmt.Errorf("%w: more than %v", ErrTooManyFrames, MaxFrames)
		}
		clean := &nn.ImageLabels{
			Frame:   max(f.Frame, prev+1),
			Objects: make([]nn.ObjectDetection, 0, len(f.Objects)),
		}
		for _, obj := range f.Objects {
			if obj.Class < 0 || !obj.Box.IsValid() {
				rec.dropped++
				continue
			}
			clean.Objects = append(clean.Objects, obj)
		}
		prev = clean.Frame
		rec.frames = append(rec.frames, clean)
	}
	rec.numTotal = prev + 1
	return rec, nil
}

// Write a recording as JSON
func Write(w io.Writer, labels *nn.VideoLabels) error {
	enc := json.NewEncoder(w)
	return enc.Encode(labels)
}

// WriteFile writes a recording to a JSON file
func WriteFile(filename string, labels *nn.VideoLabels) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := Write(f, labels); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// NextFrame returns the next frame, or io.EOF at the end of the recording
func (r *Recording) NextFrame() (*nn.Frame, error) {
	if r.nextIdx >= r.numTotal {
		return nil, io.EOF
	}
	frame := &nn.Frame{
		Index:       r.nextIdx,
		PTS:         r.FrameTime(r.nextIdx),
		HasRecorded: true,
	}
	if r.next < len(r.frames) && r.frames[r.next].Frame == r.nextIdx {
		frame.Recorded = r.frames[r.next].Objects
		r.next++
	}
	r.nextIdx++
	return frame, nil
}

// Rewind to the first frame
func (r *Recording) Rewind() {
	r.next = 0
	r.nextIdx = 0
}

// FrameTime returns the presentation time of the given frame
func (r *Recording) FrameTime(frame int) time.Duration {
	return time.Duration(float64(frame) * float64(time.Second) / r.FPS())
}

// FPS returns the frame rate of the source video
func (r *Recording) FPS() float64 {
	if r.labels.FPS == 0 {
		return DefaultFPS
	}
	return r.labels.FPS
}

// Classes returns the class names of the model that produced the recording (nil means COCO)
func (r *Recording) Classes() []string {
	if len(r.labels.Classes) == 0 {
		return nil
	}
	return r.labels.Classes
}

// NumFrames returns the total number of frames, including frames with no objects
func (r *Recording) NumFrames() int {
	return r.numTotal
}

// NumDropped returns the number of malformed objects that were dropped while decoding
func (r *Recording) NumDropped() int {
	return r.dropped
}

// Close is a no-op, so that a Recording can be used wherever a closable frame source is expected
func (r *Recording) Close() error {
	return nil
}
