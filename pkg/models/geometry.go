package models

import "math"

// RegionScale is the extent of the normalized page coordinate space.
const RegionScale = 1000.0

// BoundingRegion is a rectangle in page-relative coordinates scaled to 0-1000,
// with the origin at the top-left corner of the page.
type BoundingRegion struct {
	XMin float64 `json:"xmin"`
	YMin float64 `json:"ymin"`
	XMax float64 `json:"xmax"`
	YMax float64 `json:"ymax"`
}

// FullPage covers the whole page. Used for recognized text without word boxes.
var FullPage = BoundingRegion{XMin: 0, YMin: 0, XMax: RegionScale, YMax: RegionScale}

// NormalizeRegion converts a PDF-space box (origin bottom-left, in points) into
// a BoundingRegion. x, y is the lower-left corner of the box.
func NormalizeRegion(x, y, width, height, pageWidth, pageHeight float64) BoundingRegion {
	if pageWidth <= 0 || pageHeight <= 0 {
		return FullPage
	}
	r := BoundingRegion{
		XMin: x / pageWidth * RegionScale,
		XMax: (x + width) / pageWidth * RegionScale,
		YMin: (pageHeight - (y + height)) / pageHeight * RegionScale,
		YMax: (pageHeight - y) / pageHeight * RegionScale,
	}
	return r.Clamp()
}

// Clamp orders the corners and limits them to the normalized space.
func (r BoundingRegion) Clamp() BoundingRegion {
	if r.XMin > r.XMax {
		r.XMin, r.XMax = r.XMax, r.XMin
	}
	if r.YMin > r.YMax {
		r.YMin, r.YMax = r.YMax, r.YMin
	}
	r.XMin = clamp(r.XMin)
	r.XMax = clamp(r.XMax)
	r.YMin = clamp(r.YMin)
	r.YMax = clamp(r.YMax)
	return r
}

// Valid reports whether the corners are ordered and inside the normalized space.
func (r BoundingRegion) Valid() bool {
	return r.XMin <= r.XMax && r.YMin <= r.YMax &&
		r.XMin >= 0 && r.YMin >= 0 && r.XMax <= RegionScale && r.YMax <= RegionScale
}

// Union returns the smallest region containing both r and o.
func (r BoundingRegion) Union(o BoundingRegion) BoundingRegion {
	return BoundingRegion{
		XMin: math.Min(r.XMin, o.XMin),
		YMin: math.Min(r.YMin, o.YMin),
		XMax: math.Max(r.XMax, o.XMax),
		YMax: math.Max(r.YMax, o.YMax),
	}
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(RegionScale, v))
}
