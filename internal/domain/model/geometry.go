// Package model contains domain models passed between layers.
package model

// BoundingBox is a region of an image with every coordinate normalized to 0-1
// relative to the image width and height.
type BoundingBox struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Valid reports whether the box lies within the unit square and has a positive area.
func (b BoundingBox) Valid() bool {
	if b.Width <= 0 || b.Height <= 0 {
		return false
	}
	if b.Left < 0 || b.Top < 0 {
		return false
	}
	return b.Left+b.Width <= 1.0001 && b.Top+b.Height <= 1.0001
}
