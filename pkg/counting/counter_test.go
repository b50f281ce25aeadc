package counting

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cyclopcam/linecount/pkg/nn"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

// A 20x20 box centered on (cx, cy)
func boxAt(cx, cy float32) nn.Box {
	return nn.MakeBox(cx-10, cy-10, cx+10, cy+10)
}

func trackAt(id int64, cx, cy float32) nn.TrackedObject {
	return nn.TrackedObject{ID: id, Box: boxAt(cx, cy)}
}

func detAt(class nn.VehicleClass, cx, cy float32) nn.VehicleDetection {
	return nn.VehicleDetection{Class: class, Confidence: 0.8, Box: boxAt(cx, cy)}
}

func newTestCounter(t *testing.T) *Counter {
	c := NewCounter(logs.NewTestingLog(t), Settings{Verbose: true})
	line, err := NewLine(100, 50, 100, 500)
	require.NoError(t, err)
	require.NoError(t, c.SetLine(line))
	return c
}

func requireConsistent(t *testing.T, counts Counts) {
	sum := int64(0)
	for _, v := range counts.PerClass {
		sum += v
	}
	require.Equal(t, sum, counts.Total)
}

// Feed a single classified track through a sequence of center points
func walk(c *Counter, id int64, class nn.VehicleClass, points ...nn.Point) {
	for _, p := range points {
		c.ProcessFrame([]nn.VehicleDetection{detAt(class, p.X, p.Y)}, []nn.TrackedObject{trackAt(id, p.X, p.Y)})
	}
}

func TestVerticalLineScenario(t *testing.T) {
	c := newTestCounter(t)

	// Frame 1: side is unresolved, so it is only stored
	r := c.ProcessFrame([]nn.VehicleDetection{detAt(nn.VehicleCar, 50, 100)}, []nn.TrackedObject{trackAt(7, 50, 100)})
	require.Empty(t, r.Crossings)
	require.Equal(t, int64(0), c.Counts().Total)
	require.Len(t, r.Objects, 1)
	require.Equal(t, nn.VehicleCar, *r.Objects[0].Class)
	require.NotNil(t, r.Objects[0].Side)
	require.Equal(t, SideLeft, *r.Objects[0].Side)

	// Frame 2: the track flips sides, and is counted
	r = c.ProcessFrame([]nn.VehicleDetection{detAt(nn.VehicleCar, 150, 100)}, []nn.TrackedObject{trackAt(7, 150, 100)})
	require.Equal(t, []Crossing{{TrackID: 7, Class: nn.VehicleCar, From: SideLeft, To: SideRight}}, r.Crossings)
	counts := c.Counts()
	require.Equal(t, int64(1), counts.Get(nn.VehicleCar))
	require.Equal(t, int64(1), counts.Total)
	require.Equal(t, counts, r.Counts)
	require.True(t, r.Objects[0].Counted)

	// Frame 3: still on the same side, so nothing more
	r = c.ProcessFrame([]nn.VehicleDetection{detAt(nn.VehicleCar, 200, 100)}, []nn.TrackedObject{trackAt(7, 200, 100)})
	require.Empty(t, r.Crossings)
	require.Equal(t, int64(1), c.Counts().Get(nn.VehicleCar))
	require.Equal(t, int64(1), c.Counts().Total)
}

func TestCountAtMostOnce(t *testing.T) {
	c := newTestCounter(t)
	left := nn.Point{X: 50, Y: 100}
	right := nn.Point{X: 150, Y: 100}
	// Cross back and forth 5 times
	walk(c, 3, nn.VehicleTruck, left, right, left, right, left, right)
	counts := c.Counts()
	require.Equal(t, int64(1), counts.Get(nn.VehicleTruck))
	require.Equal(t, int64(1), counts.Total)
	requireConsistent(t, counts)
}

func TestOnLineNeverCounts(t *testing.T) {
	c := newTestCounter(t)
	// left, on-line, left
	walk(c, 4, nn.VehicleBus, nn.Point{X: 50, Y: 100}, nn.Point{X: 100, Y: 100}, nn.Point{X: 50, Y: 100})
	require.Equal(t, int64(0), c.Counts().Total)

	// Starting on the line, and then moving off it, is not a crossing either
	walk(c, 5, nn.VehicleBus, nn.Point{X: 100, Y: 200}, nn.Point{X: 150, Y: 200})
	require.Equal(t, int64(0), c.Counts().Total)

	// left, on-line, right is not counted, because the comparison is always between
	// consecutive observations, and one of them is always on the line.
	walk(c, 6, nn.VehicleBus, nn.Point{X: 50, Y: 300}, nn.Point{X: 100, Y: 300}, nn.Point{X: 150, Y: 300})
	require.Equal(t, int64(0), c.Counts().Total)
}

func TestResetAllowsRecount(t *testing.T) {
	c := newTestCounter(t)
	left := nn.Point{X: 50, Y: 100}
	right := nn.Point{X: 150, Y: 100}
	walk(c, 7, nn.VehicleMotorcycle, left, right)
	require.Equal(t, int64(1), c.Counts().Total)
	require.Equal(t, 1, c.NumTracks())

	c.Reset()
	require.Equal(t, Counts{}, c.Counts())
	require.Equal(t, 0, c.NumTracks())

	// After the reset, the first sighting only stores the side again
	walk(c, 7, nn.VehicleMotorcycle, right)
	require.Equal(t, int64(0), c.Counts().Total)
	walk(c, 7, nn.VehicleMotorcycle, left)
	require.Equal(t, int64(1), c.Counts().Get(nn.VehicleMotorcycle))
	require.Equal(t, int64(1), c.Counts().Total)
}

func TestUnassociatedTrackNeverCounts(t *testing.T) {
	c := newTestCounter(t)
	// The only detections are far away from the track
	for _, x := range []float32{50, 150, 50, 150} {
		r := c.ProcessFrame([]nn.VehicleDetection{detAt(nn.VehicleCar, 400, 400)}, []nn.TrackedObject{trackAt(11, x, 100)})
		require.Nil(t, r.Objects[0].Class)
	}
	require.Equal(t, int64(0), c.Counts().Total)
}

func TestBusAssociation(t *testing.T) {
	c := newTestCounter(t)
	trackBox := nn.MakeBox(0, 0, 100, 100)
	// Unclassified at first
	r := c.ProcessFrame(nil, []nn.TrackedObject{{ID: 9, Box: trackBox}})
	require.Nil(t, r.Objects[0].Class)

	// IoU of 0.4
	bus := nn.VehicleDetection{Class: nn.VehicleBus, Confidence: 0.7, Box: nn.MakeBox(0, 0, 40, 100)}
	r = c.ProcessFrame([]nn.VehicleDetection{bus}, []nn.TrackedObject{{ID: 9, Box: trackBox}})
	require.NotNil(t, r.Objects[0].Class)
	require.Equal(t, nn.VehicleBus, *r.Objects[0].Class)
	require.Equal(t, "ID: 9 bus", r.Objects[0].Label())

	// A later association overwrites the class
	truck := nn.VehicleDetection{Class: nn.VehicleTruck, Confidence: 0.7, Box: trackBox}
	r = c.ProcessFrame([]nn.VehicleDetection{truck}, []nn.TrackedObject{{ID: 9, Box: trackBox}})
	require.Equal(t, nn.VehicleTruck, *r.Objects[0].Class)
}

func TestEmptyDetectionsKeepClass(t *testing.T) {
	c := newTestCounter(t)
	walk(c, 12, nn.VehicleBicycle, nn.Point{X: 50, Y: 100})

	// The detector misses the bicycle, but the tracker still follows it across the line
	r := c.ProcessFrame(nil, []nn.TrackedObject{trackAt(12, 60, 100)})
	require.Equal(t, nn.VehicleBicycle, *r.Objects[0].Class)
	r = c.ProcessFrame([]nn.VehicleDetection{}, []nn.TrackedObject{trackAt(12, 150, 100)})
	require.Len(t, r.Crossings, 1)
	require.Equal(t, int64(1), c.Counts().Get(nn.VehicleBicycle))

	// No tracks at all is a no-op
	r = c.ProcessFrame(nil, nil)
	require.Empty(t, r.Objects)
	require.NotNil(t, r.Objects)
	require.Equal(t, int64(1), c.Counts().Total)
}

func TestNoLineSuppressesCounting(t *testing.T) {
	c := NewCounter(logs.NewTestingLog(t), DefaultSettings())
	walk(c, 1, nn.VehicleCar, nn.Point{X: 50, Y: 100}, nn.Point{X: 150, Y: 100})
	require.Equal(t, int64(0), c.Counts().Total)
	_, hasLine := c.Line()
	require.False(t, hasLine)

	// Classification continued while there was no line
	line, _ := NewLine(100, 50, 100, 500)
	require.NoError(t, c.SetLine(line))
	r := c.ProcessFrame(nil, []nn.TrackedObject{trackAt(1, 150, 100)})
	require.Nil(t, r.Objects[0].Class, "SetLine forgets all track state")
	require.NotNil(t, r.Line)
	require.Equal(t, line, *r.Line)
}

func TestSetLineResetsTracksButNotCounts(t *testing.T) {
	c := newTestCounter(t)
	walk(c, 1, nn.VehicleCar, nn.Point{X: 50, Y: 100}, nn.Point{X: 150, Y: 100})
	require.Equal(t, int64(1), c.Counts().Total)

	// Invalid lines change nothing
	before, _ := c.Line()
	require.ErrorIs(t, c.SetLine(Line{}), ErrInvalidLine)
	after, _ := c.Line()
	require.Equal(t, before, after)
	require.Equal(t, 1, c.NumTracks())

	// A horizontal line. Track 1 has been forgotten, so it can be counted against the new line.
	line, err := NewLine(0, 300, 1000, 300)
	require.NoError(t, err)
	require.NoError(t, c.SetLine(line))
	require.Equal(t, 0, c.NumTracks())
	walk(c, 1, nn.VehicleCar, nn.Point{X: 150, Y: 200}, nn.Point{X: 150, Y: 400})
	require.Equal(t, int64(2), c.Counts().Get(nn.VehicleCar))

	c.ClearLine()
	_, hasLine := c.Line()
	require.False(t, hasLine)
}

func TestMalformedTracksSkipped(t *testing.T) {
	c := newTestCounter(t)
	tracks := []nn.TrackedObject{
		{ID: 0, Box: boxAt(50, 100)},
		{ID: -3, Box: boxAt(50, 100)},
		{ID: 4, Box: nn.MakeBox(10, 10, 0, 0)},
		trackAt(5, 50, 100),
	}
	r := c.ProcessFrame([]nn.VehicleDetection{detAt(nn.VehicleCar, 50, 100)}, tracks)
	require.Len(t, r.Objects, 1)
	require.Equal(t, int64(5), r.Objects[0].ID)
	require.Equal(t, nn.VehicleCar, *r.Objects[0].Class, "Malformed tracks must not steal detections")
	require.Equal(t, 1, c.NumTracks())
}

func TestManyTracks(t *testing.T) {
	c := newTestCounter(t)
	classes := nn.AllVehicleClasses
	// 50 vehicles, spread out vertically so that their boxes never overlap, all cross from left to right
	for _, x := range []float32{40, 70, 130, 160} {
		var dets []nn.VehicleDetection
		var tracks []nn.TrackedObject
		for i := 0; i < 50; i++ {
			y := float32(60 + i*40)
			dets = append(dets, detAt(classes[i%len(classes)], x, y))
			tracks = append(tracks, trackAt(int64(i+1), x, y))
		}
		c.ProcessFrame(dets, tracks)
	}
	counts := c.Counts()
	require.Equal(t, int64(50), counts.Total)
	for _, class := range classes {
		require.Equal(t, int64(10), counts.Get(class))
	}
	requireConsistent(t, counts)
}

func TestProcessClassifiedFrame(t *testing.T) {
	c := newTestCounter(t)
	c.ProcessClassifiedFrame([]ClassifiedTrack{{ID: 2, Box: boxAt(50, 100), Class: nn.VehicleTruck}})
	r := c.ProcessClassifiedFrame([]ClassifiedTrack{
		{ID: 2, Box: boxAt(150, 100), Class: nn.VehicleTruck},
		{ID: 3, Box: boxAt(50, 200), Class: nn.VehicleClass(-1)},
		{ID: 0, Box: boxAt(50, 300), Class: nn.VehicleCar},
		{ID: 4, Box: nn.MakeBox(10, 10, 0, 0), Class: nn.VehicleCar},
	})
	require.Len(t, r.Crossings, 1)
	require.Len(t, r.Objects, 2)
	require.Nil(t, r.Objects[1].Class)
	require.Nil(t, r.Objects[1].Side)
	require.Equal(t, 2, c.NumTracks())
	require.Equal(t, int64(1), c.Counts().Get(nn.VehicleTruck))
}

func TestSideUnknownUntilClassifiedWithLine(t *testing.T) {
	// No line: classified, but the side is unknown
	c := NewCounter(logs.NewTestingLog(t), DefaultSettings())
	r := c.ProcessFrame([]nn.VehicleDetection{detAt(nn.VehicleCar, 100, 100)}, []nn.TrackedObject{trackAt(1, 100, 100)})
	require.NotNil(t, r.Objects[0].Class)
	require.Nil(t, r.Objects[0].Side)
	raw, err := json.Marshal(r.Objects[0])
	require.NoError(t, err)
	require.NotContains(t, string(raw), `"side"`)

	// Unclassified track with a line: also unknown
	c = newTestCounter(t)
	r = c.ProcessFrame(nil, []nn.TrackedObject{trackAt(2, 100, 100)})
	require.Nil(t, r.Objects[0].Side)

	// Classified and exactly on the line is distinguishable from unknown
	r = c.ProcessFrame([]nn.VehicleDetection{detAt(nn.VehicleCar, 100, 100)}, []nn.TrackedObject{trackAt(2, 100, 100)})
	require.NotNil(t, r.Objects[0].Side)
	require.Equal(t, SideOnLine, *r.Objects[0].Side)
	raw, err = json.Marshal(r.Objects[0])
	require.NoError(t, err)
	require.Contains(t, string(raw), `"side":0`)
}

// Readers must never see a torn aggregate, and resets must not interleave with frames
func TestConcurrentReaders(t *testing.T) {
	c := newTestCounter(t)
	stop := make(chan bool)
	torn := atomic.Bool{}
	wg := sync.WaitGroup{}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				counts := c.Counts()
				sum := int64(0)
				for _, v := range counts.PerClass {
					sum += v
				}
				if sum != counts.Total {
					torn.Store(true)
				}
			}
		}()
	}

	for i := int64(1); i <= 200; i++ {
		class := nn.AllVehicleClasses[i%int64(nn.NumVehicleClasses)]
		walk(c, i, class, nn.Point{X: 50, Y: 100}, nn.Point{X: 150, Y: 100})
		if i == 100 {
			c.Reset()
		}
	}
	close(stop)
	wg.Wait()
	require.False(t, torn.Load())
	require.Equal(t, int64(100), c.Counts().Total)
}
