package nn

import (
	"github.com/chewxy/math32"
)

// Added to the IoU denominator, so that two degenerate boxes don't divide by zero
const IOUEpsilon = 1e-9

type Point struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

func (p Point) Distance(b Point) float32 {
	return math32.Sqrt((p.X-b.X)*(p.X-b.X) + (p.Y-b.Y)*(p.Y-b.Y))
}

// IsFinite returns false if either coordinate is NaN or infinite
func (p Point) IsFinite() bool {
	return isFinite(p.X) && isFinite(p.Y)
}

// Box is an axis-aligned bounding box, with X1 <= X2 and Y1 <= Y2
type Box struct {
	X1 float32 `json:"x1"`
	Y1 float32 `json:"y1"`
	X2 float32 `json:"x2"`
	Y2 float32 `json:"y2"`
}

func MakeBox(x1, y1, x2, y2 float32) Box {
	return Box{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

func (b Box) Width() float32 {
	return b.X2 - b.X1
}

func (b Box) Height() float32 {
	return b.Y2 - b.Y1
}

func (b Box) Area() float32 {
	return max(0, b.Width()) * max(0, b.Height())
}

func (b Box) Center() Point {
	return Point{
		X: (b.X1 + b.X2) / 2,
		Y: (b.Y1 + b.Y2) / 2,
	}
}

// IsValid returns true if all coordinates are finite, and the corners are ordered.
// Degenerate (zero area) boxes are valid.
func (b Box) IsValid() bool {
	return isFinite(b.X1) && isFinite(b.Y1) && isFinite(b.X2) && isFinite(b.Y2) && b.X1 <= b.X2 && b.Y1 <= b.Y2
}

func (b Box) Intersection(c Box) Box {
	x1 := max(b.X1, c.X1)
	y1 := max(b.Y1, c.Y1)
	x2 := min(b.X2, c.X2)
	y2 := min(b.Y2, c.Y2)
	return Box{
		X1: x1,
		Y1: y1,
		X2: max(x1, x2),
		Y2: max(y1, y2),
	}
}

func (b Box) Union(c Box) Box {
	return Box{
		X1: min(b.X1, c.X1),
		Y1: min(b.Y1, c.Y1),
		X2: max(b.X2, c.X2),
		Y2: max(b.Y2, c.Y2),
	}
}

// Intersection over Union
func (b Box) IOU(c Box) float32 {
	inter := b.Intersection(c).Area()
	return inter / (b.Area() + c.Area() - inter + IOUEpsilon)
}

func (b Box) Offset(dx, dy float32) Box {
	return Box{
		X1: b.X1 + dx,
		Y1: b.Y1 + dy,
		X2: b.X2 + dx,
		Y2: b.Y2 + dy,
	}
}

func isFinite(v float32) bool {
	return !math32.IsNaN(v) && !math32.IsInf(v, 0)
}
