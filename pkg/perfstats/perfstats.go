// Package perfstats records the time taken by the stages of the frame pipeline
package perfstats

import (
	"fmt"
	"sync"
	"time"
)

// Accumulate samples of how long something took
type TimeAccumulator struct {
	Samples int64
	Total   time.Duration
	Max     time.Duration
}

func (a *TimeAccumulator) Reset() {
	*a = TimeAccumulator{}
}

func (a *TimeAccumulator) AddSample(v time.Duration) {
	a.Samples++
	a.Total += v
	a.Max = max(a.Max, v)
}

func (a *TimeAccumulator) Average() time.Duration {
	if a.Samples == 0 {
		return 0
	}
	return time.Duration(a.Total.Nanoseconds() / a.Samples)
}

// Pipeline holds the timings of one frame pipeline.
// It is written by the frame loop, and read by status queries.
type Pipeline struct {
	lock   sync.Mutex
	detect TimeAccumulator
	track  TimeAccumulator
	count  TimeAccumulator
}

// SYNC-PIPELINE-PERF
type PipelineSummary struct {
	Frames        int64   `json:"frames"`
	AvgDetectMS   float64 `json:"avgDetectMS"`
	AvgTrackMS    float64 `json:"avgTrackMS"`
	AvgCountMS    float64 `json:"avgCountMS"`
	MaxDetectMS   float64 `json:"maxDetectMS"`
	DetectSamples int64   `json:"detectSamples"` // Frames that went through the detector (recorded frames don't)
}

func (p *Pipeline) AddDetect(d time.Duration) {
	p.lock.Lock()
	p.detect.AddSample(d)
	p.lock.Unlock()
}

// AddFrame records the tracker and counter time of one frame
func (p *Pipeline) AddFrame(track, count time.Duration) {
	p.lock.Lock()
	p.track.AddSample(track)
	p.count.AddSample(count)
	p.lock.Unlock()
}

func (p *Pipeline) Summary() PipelineSummary {
	p.lock.Lock()
	defer p.lock.Unlock()
	return PipelineSummary{
		Frames:        p.count.Samples,
		AvgDetectMS:   ms(p.detect.Average()),
		AvgTrackMS:    ms(p.track.Average()),
		AvgCountMS:    ms(p.count.Average()),
		MaxDetectMS:   ms(p.detect.Max),
		DetectSamples: p.detect.Samples,
	}
}

func (s PipelineSummary) String() string {
	return fmt.Sprintf("%v frames, detect %.2f ms (max %.2f), track %.3f ms, count %.3f ms", s.Frames, s.AvgDetectMS, s.MaxDetectMS, s.AvgTrackMS, s.AvgCountMS)
}

func ms(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}
