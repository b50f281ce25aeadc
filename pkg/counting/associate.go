package counting

import "github.com/cyclopcam/linecount/pkg/nn"

// Minimum IoU between a track and a detection for the track to inherit the detection's class
const DefaultIOUThreshold = 0.1

// Match pairs a track with the detection that it overlaps best.
// Track and Detection are indices into the slices given to Associate.
type Match struct {
	Track     int
	Detection int
	IOU       float32
}

// Associate matches tracks to detections, greedily.
// Tracks are visited in the order that the tracker reported them, and each one takes the
// unmatched detection with the highest IoU. Ties go to the detection that appears first.
// A pair is only accepted if its IoU is at least threshold.
// This is not a globally optimal assignment. When two overlapping detections of different
// classes compete for one track, whichever track is visited first wins.
// Detections with an unknown class or a malformed box are never matched.
func Associate(tracks []nn.TrackedObject, detections []nn.VehicleDetection, threshold float32) []Match {
	if len(tracks) == 0 || len(detections) == 0 {
		return nil
	}
	used := make([]bool, len(detections))
	for i, det := range detections {
		if !det.Class.Valid() || !det.Box.IsValid() {
			used[i] = true
		}
	}
	matches := []Match{}
	for ti, track := range tracks {
		if !track.Box.IsValid() {
			continue
		}
		bestJ := -1
		bestIOU := float32(0)
		for j, det := range detections {
			if used[j] {
				continue
			}
			iou := track.Box.IOU(det.Box)
			if iou > bestIOU {
				bestIOU = iou
				bestJ = j
			}
		}
		if bestJ != -1 && bestIOU >= threshold {
			used[bestJ] = true
			matches = append(matches, Match{
				Track:     ti,
				Detection: bestJ,
				IOU:       bestIOU,
			})
		}
	}
	return matches
}
