package counting

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cyclopcam/linecount/pkg/nn"
)

// Cross products with a magnitude below this are considered to be on the line.
// Integer coordinates produce integer cross products, so this only affects sub-pixel input.
const sideEpsilon = 1e-6

var ErrInvalidLine = errors.New("Invalid counting line")

// Side of a counting line that a point is on
type Side int

const (
	SideRight  Side = -1
	SideOnLine Side = 0
	SideLeft   Side = 1
)

func (s Side) String() string {
	switch s {
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	case SideOnLine:
		return "online"
	}
	return fmt.Sprintf("Side(%d)", int(s))
}

// Line is the directed counting boundary, from Start to End
type Line struct {
	Start nn.Point `json:"start"`
	End   nn.Point `json:"end"`
}

// NewLine validates the endpoints of a counting line.
// Non-finite coordinates and zero-length lines are rejected with ErrInvalidLine.
func NewLine(x1, y1, x2, y2 float32) (Line, error) {
	l := Line{
		Start: nn.Point{X: x1, Y: y1},
		End:   nn.Point{X: x2, Y: y2},
	}
	if err := l.Validate(); err != nil {
		return Line{}, err
	}
	return l, nil
}

// ParseLine parses "x1,y1,x2,y2"
func ParseLine(s string) (Line, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Line{}, fmt.Errorf("%w: expected x1,y1,x2,y2 but got '%v'", ErrInvalidLine, s)
	}
	var v [4]float32
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return Line{}, fmt.Errorf("%w: %v", ErrInvalidLine, err)
		}
		v[i] = float32(f)
	}
	return NewLine(v[0], v[1], v[2], v[3])
}

func (l Line) Validate() error {
	if !l.Start.IsFinite() || !l.End.IsFinite() {
		return fmt.Errorf("%w: coordinates must be finite", ErrInvalidLine)
	}
	if l.Start == l.End {
		return fmt.Errorf("%w: start and end are the same point", ErrInvalidLine)
	}
	return nil
}

// SideOf returns the side of the line that p is on.
// Positive cross product of (End - Start) x (p - Start) is left.
func (l Line) SideOf(p nn.Point) Side {
	dx := float64(l.End.X) - float64(l.Start.X)
	dy := float64(l.End.Y) - float64(l.Start.Y)
	px := float64(p.X) - float64(l.Start.X)
	py := float64(p.Y) - float64(l.Start.Y)
	cross := dx*py - dy*px
	if math.Abs(cross) <= sideEpsilon {
		return SideOnLine
	}
	if cross > 0 {
		return SideLeft
	}
	return SideRight
}
