package counting

import (
	"errors"
	"math"
	"testing"

	"github.com/cyclopcam/linecount/pkg/nn"
	"github.com/stretchr/testify/require"
)

func TestSideOf(t *testing.T) {
	// Vertical line, pointing down (in image coordinates)
	l, err := NewLine(100, 50, 100, 500)
	require.NoError(t, err)
	require.Equal(t, SideLeft, l.SideOf(nn.Point{X: 50, Y: 100}))
	require.Equal(t, SideRight, l.SideOf(nn.Point{X: 150, Y: 100}))
	require.Equal(t, SideOnLine, l.SideOf(nn.Point{X: 100, Y: 100}))
	// Beyond the endpoints, the line extends infinitely
	require.Equal(t, SideOnLine, l.SideOf(nn.Point{X: 100, Y: 1000}))

	// Reversing the direction swaps the sides
	r, err := NewLine(100, 500, 100, 50)
	require.NoError(t, err)
	require.Equal(t, SideRight, r.SideOf(nn.Point{X: 50, Y: 100}))
	require.Equal(t, SideLeft, r.SideOf(nn.Point{X: 150, Y: 100}))

	// The default line, which is almost horizontal
	d, err := NewLine(337, 391, 917, 387)
	require.NoError(t, err)
	require.Equal(t, SideLeft, d.SideOf(nn.Point{X: 600, Y: 450}))
	require.Equal(t, SideRight, d.SideOf(nn.Point{X: 600, Y: 300}))

	// Sub-pixel noise around the line is on the line
	require.Equal(t, SideOnLine, l.SideOf(nn.Point{X: 100.0000001, Y: 300}))
	require.Equal(t, SideRight, l.SideOf(nn.Point{X: 100.5, Y: 300}))
}

func TestNewLineInvalid(t *testing.T) {
	_, err := NewLine(10, 10, 10, 10)
	require.True(t, errors.Is(err, ErrInvalidLine))

	nan := float32(math.NaN())
	inf := float32(math.Inf(1))
	_, err = NewLine(nan, 0, 10, 10)
	require.ErrorIs(t, err, ErrInvalidLine)
	_, err = NewLine(0, 0, 10, inf)
	require.ErrorIs(t, err, ErrInvalidLine)

	require.ErrorIs(t, Line{}.Validate(), ErrInvalidLine)
}

func TestParseLine(t *testing.T) {
	l, err := ParseLine("337,391, 917,387")
	require.NoError(t, err)
	require.Equal(t, nn.Point{X: 337, Y: 391}, l.Start)
	require.Equal(t, nn.Point{X: 917, Y: 387}, l.End)

	for _, bad := range []string{"", "1,2,3", "1,2,3,4,5", "a,b,c,d", "1,1,1,1", "NaN,0,1,1"} {
		_, err := ParseLine(bad)
		require.ErrorIs(t, err, ErrInvalidLine, bad)
	}
}

func TestSideString(t *testing.T) {
	require.Equal(t, "left", SideLeft.String())
	require.Equal(t, "right", SideRight.String())
	require.Equal(t, "online", SideOnLine.String())
}
