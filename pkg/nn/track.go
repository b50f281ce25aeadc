package nn

import "time"

// ScoredBox is a class-agnostic detection, which is what a tracker consumes
type ScoredBox struct {
	Box   Box     `json:"box"`
	Score float32 `json:"score"`
}

// TrackedObject is a box with a persistent identity, assigned by a Tracker.
// IDs are positive, and stable for as long as the tracker keeps reporting them.
type TrackedObject struct {
	ID  int64 `json:"id"`
	Box Box   `json:"box"`
}

// Tracker assigns persistent identities to boxes across frames.
// The tracker knows nothing about classes.
type Tracker interface {
	// Update consumes the boxes of the current frame, and returns the tracks that
	// are visible in this frame, in a stable order.
	Update(boxes []ScoredBox) []TrackedObject

	// Reset forgets all tracks
	Reset()
}

// ScoredBoxes strips the class from vehicle detections, for feeding into a Tracker
func ScoredBoxes(dets []VehicleDetection) []ScoredBox {
	boxes := make([]ScoredBox, len(dets))
	for i, d := range dets {
		boxes[i] = ScoredBox{Box: d.Box, Score: d.Confidence}
	}
	return boxes
}

// Frame is a single frame flowing through the counting pipeline.
// A frame either carries an image for the detector, or detections that were
// recorded earlier (in which case the detector is skipped).
type Frame struct {
	Index    int               // Zero-based frame number
	PTS      time.Duration     // Presentation time, relative to the start of the video
	Image    *ImageCrop        // nil if the frame carries recorded detections
	Recorded []ObjectDetection // Recorded detector output. Only meaningful if HasRecorded is true.

	HasRecorded bool
}
