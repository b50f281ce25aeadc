package tracker

import (
	"testing"

	"github.com/cyclopcam/linecount/pkg/nn"
	"github.com/stretchr/testify/require"
)

// A 100x60 box with its top-left corner at x,y
func box(x, y float32) nn.ScoredBox {
	return nn.ScoredBox{Box: nn.MakeBox(x, y, x+100, y+60), Score: 0.9}
}

func ids(objs []nn.TrackedObject) []int64 {
	r := []int64{}
	for _, o := range objs {
		r = append(r, o.ID)
	}
	return r
}

func TestSingleObject(t *testing.T) {
	tr := New(DefaultSettings())
	for i := 0; i < 6; i++ {
		b := box(float32(i*10), 100)
		out := tr.Update([]nn.ScoredBox{b})
		require.Len(t, out, 1)
		require.Equal(t, int64(1), out[0].ID)
		require.Equal(t, b.Box, out[0].Box)
	}
	require.Equal(t, 1, tr.NumTracks())
}

func TestConfirmation(t *testing.T) {
	tr := New(DefaultSettings())
	for frame := 1; frame <= 7; frame++ {
		boxes := []nn.ScoredBox{box(float32(frame*10), 100)}
		if frame >= 5 {
			// A second object appears after warm-up
			boxes = append(boxes, box(1000, float32(300+frame*5)))
		}
		out := tr.Update(boxes)
		switch {
		case frame < 7:
			require.Equal(t, []int64{1}, ids(out), "frame %v", frame)
		default:
			require.Equal(t, []int64{1, 2}, ids(out), "frame %v", frame)
		}
	}
}

func TestMissedFrames(t *testing.T) {
	tr := New(DefaultSettings())
	// Moving 50 pixels per frame
	for _, x := range []float32{0, 50, 100} {
		require.Equal(t, []int64{1}, ids(tr.Update([]nn.ScoredBox{box(x, 0)})))
	}

	// One missed frame is tolerated, and the prediction carries the track across the gap
	require.Empty(t, tr.Update(nil))
	require.Equal(t, 1, tr.NumTracks())
	require.Equal(t, []int64{1}, ids(tr.Update([]nn.ScoredBox{box(200, 0)})))

	// Two missed frames drops the track
	tr.Update(nil)
	tr.Update(nil)
	require.Equal(t, 0, tr.NumTracks())
	// The object comes back with a new identity, which is unconfirmed, because warm-up is over
	require.Empty(t, tr.Update([]nn.ScoredBox{box(350, 0)}))
	require.Equal(t, 1, tr.NumTracks())
	tr.Update([]nn.ScoredBox{box(400, 0)})
	require.Equal(t, []int64{2}, ids(tr.Update([]nn.ScoredBox{box(450, 0)})))

	// After a reset, IDs keep increasing, and warm-up starts over
	tr.Reset()
	require.Equal(t, 0, tr.NumTracks())
	require.Equal(t, []int64{3}, ids(tr.Update([]nn.ScoredBox{box(450, 0)})))
}

func TestOneBoxPerTrack(t *testing.T) {
	tr := New(DefaultSettings())
	tr.Update([]nn.ScoredBox{box(0, 0)})
	// Two boxes that both overlap track 1. The first one continues the track, and
	// the second one starts a new track.
	out := tr.Update([]nn.ScoredBox{box(5, 0), box(0, 5)})
	require.Equal(t, []int64{1, 2}, ids(out))
	require.Equal(t, box(5, 0).Box, out[0].Box)
}

func TestInvalidBoxesIgnored(t *testing.T) {
	tr := New(Settings{MinHits: 1})
	out := tr.Update([]nn.ScoredBox{
		{Box: nn.MakeBox(10, 10, 0, 0)},
		box(0, 0),
	})
	require.Equal(t, []int64{1}, ids(out))
	require.Equal(t, 1, tr.NumTracks())
}

func TestNoOverlapStartsNewTrack(t *testing.T) {
	tr := New(Settings{MinHits: 1})
	require.Equal(t, []int64{1}, ids(tr.Update([]nn.ScoredBox{box(0, 0)})))
	// Jumped too far to overlap
	require.Equal(t, []int64{2}, ids(tr.Update([]nn.ScoredBox{box(500, 0)})))
}
