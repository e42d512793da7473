package document

// Region is the positional bounding box of a recognized line, in pixel
// coordinates with the origin at the upper-left corner of the source image.
type Region struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// IsEmpty reports whether the region has non-positive dimensions.
func (r Region) IsEmpty() bool { return r.Width <= 0 || r.Height <= 0 }

// BoundingRegion returns the axis-aligned box enclosing the given quad
// points, as returned by OCR engines that report rotated text boxes.
func BoundingRegion(points [][2]float64) Region {
	if len(points) == 0 {
		return Region{}
	}
	minX, minY := points[0][0], points[0][1]
	maxX, maxY := minX, minY
	for _, p := range points[1:] {
		if p[0] < minX {
			minX = p[0]
		}
		if p[0] > maxX {
			maxX = p[0]
		}
		if p[1] < minY {
			minY = p[1]
		}
		if p[1] > maxY {
			maxY = p[1]
		}
	}
	return Region{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}
