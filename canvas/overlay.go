// Package canvas implements the mask drawing surface that sits over the
// displayed image. The surface and the on-screen geometry of the image box
// are owned by one Overlay value, so the two can never fall out of sync:
// callers only ever hand in viewport coordinates and get back a serialized
// mask (or nothing).
package canvas

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"

	"retouch-server/core"
)

const (
	// DefaultBrushSize is the stroke width in overlay pixels used until the
	// client picks its own.
	DefaultBrushSize = 24

	// MinBrushSize and MaxBrushSize bound SetBrushSize input.
	MinBrushSize = 1
	MaxBrushSize = 256
)

// DefaultColor is the initial brush color. Any opaque color marks a pixel as
// selected; the remote editor only looks at the alpha channel.
var DefaultColor = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

type (
	// Geometry describes the rendered box of the image element in viewport
	// coordinates. The overlay's backing resolution always equals the
	// rendered box size, never the image's natural size.
	Geometry struct {
		Left   float64 `json:"left"`
		Top    float64 `json:"top"`
		Width  int     `json:"width"`
		Height int     `json:"height"`
	}

	// Point is a position in overlay pixel space.
	Point struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}

	// Overlay is the mask drawing surface plus its viewport geometry and
	// brush state. The stroke state machine is idle -> drawing on pointer
	// down (brush mode only) -> idle on pointer up. Every operation is total:
	// an unmounted overlay degrades to no-ops rather than failing, so losing
	// the drawing surface never breaks the edit flow.
	//
	// Overlay is not safe for concurrent use; the owning session serializes
	// access to it.
	Overlay struct {
		geom    Geometry
		surface *image.RGBA

		brushMode bool
		erasing   bool
		brushSize float64
		color     color.RGBA

		drawing bool
		last    Point
	}
)

// NewOverlay returns an unmounted overlay with default brush settings.
// It becomes usable once SetViewport establishes a non-empty geometry.
func NewOverlay() *Overlay {
	return &Overlay{
		brushSize: DefaultBrushSize,
		color:     DefaultColor,
	}
}

// Mounted reports whether a drawing surface exists.
func (o *Overlay) Mounted() bool {
	return o.surface != nil
}

// Geometry returns the current viewport geometry.
func (o *Overlay) Geometry() Geometry {
	return o.geom
}

// SetViewport re-synchronizes the overlay with the rendered box of the image
// element. A size change reallocates the surface, which clears any drawn
// content; in-progress masks are lost on resize, a documented limitation.
// A pure position change (scroll, reflow without resize) keeps the pixels.
// A non-positive size unmounts the overlay.
func (o *Overlay) SetViewport(geom Geometry) {
	sizeChanged := geom.Width != o.geom.Width || geom.Height != o.geom.Height
	o.geom = geom

	if geom.Width <= 0 || geom.Height <= 0 {
		o.surface = nil
		o.drawing = false
		return
	}
	if o.surface == nil || sizeChanged {
		o.surface = image.NewRGBA(image.Rect(0, 0, geom.Width, geom.Height))
		o.drawing = false
	}
}

// MapPoint translates a viewport position to overlay pixel space. An
// unmounted overlay maps everything to (0,0) so event handlers stay total.
func (o *Overlay) MapPoint(clientX, clientY float64) Point {
	if o.surface == nil {
		return Point{}
	}
	return Point{X: clientX - o.geom.Left, Y: clientY - o.geom.Top}
}

// EnterBrushMode makes pointer events drive drawing. Entering brush mode
// always switches erase mode off.
func (o *Overlay) EnterBrushMode() {
	o.brushMode = true
	o.erasing = false
}

// ExitBrushMode stops pointer events from drawing and closes any open stroke.
func (o *Overlay) ExitBrushMode() {
	o.brushMode = false
	o.drawing = false
}

// BrushMode reports whether pointer events currently drive drawing.
func (o *Overlay) BrushMode() bool {
	return o.brushMode
}

// SetBrushSize sets the stroke width in overlay pixels, clamped to
// [MinBrushSize, MaxBrushSize].
func (o *Overlay) SetBrushSize(px float64) {
	o.brushSize = math.Min(math.Max(px, MinBrushSize), MaxBrushSize)
}

// SelectColor sets the brush color and switches erase mode off.
func (o *Overlay) SelectColor(c color.RGBA) {
	o.color = c
	o.erasing = false
}

// EnableErase makes subsequent strokes remove from the mask instead of
// adding to it.
func (o *Overlay) EnableErase() {
	o.erasing = true
}

// Erasing reports whether erase mode is active.
func (o *Overlay) Erasing() bool {
	return o.erasing
}

// BeginStroke opens a stroke at the given viewport position. No-op unless
// brush mode is on and a surface exists.
func (o *Overlay) BeginStroke(clientX, clientY float64) {
	if !o.brushMode || o.surface == nil {
		return
	}
	p := o.MapPoint(clientX, clientY)
	o.stamp(p)
	o.last = p
	o.drawing = true
}

// ContinueStroke extends the open stroke to the given viewport position,
// painting the connecting segment. No-op if no stroke is open.
func (o *Overlay) ContinueStroke(clientX, clientY float64) {
	if !o.drawing || o.surface == nil {
		return
	}
	p := o.MapPoint(clientX, clientY)
	o.segment(o.last, p)
	o.last = p
}

// EndStroke closes the open stroke and serializes the surface. It returns
// nil when the surface holds no marks; callers must treat that as "no mask"
// and never send an all-transparent mask to the remote editor.
func (o *Overlay) EndStroke() *core.Raster {
	o.drawing = false
	return o.Serialize()
}

// Clear wipes all drawn pixels. The mask becomes absent.
func (o *Overlay) Clear() {
	o.drawing = false
	if o.surface == nil {
		return
	}
	for i := range o.surface.Pix {
		o.surface.Pix[i] = 0
	}
}

// Serialize encodes the surface as a PNG raster, or returns nil when the
// surface is unmounted or fully transparent.
func (o *Overlay) Serialize() *core.Raster {
	if o.surface == nil || !o.marked() {
		return nil
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, o.surface); err != nil {
		// Encoding an in-memory RGBA cannot realistically fail; degrade to
		// "no mask" rather than surfacing an error from a drawing op.
		return nil
	}
	return &core.Raster{
		Data:   buf.Bytes(),
		MIME:   core.CanonicalMIME,
		Width:  o.geom.Width,
		Height: o.geom.Height,
	}
}

// marked reports whether any pixel has non-zero alpha.
func (o *Overlay) marked() bool {
	for i := 3; i < len(o.surface.Pix); i += 4 {
		if o.surface.Pix[i] != 0 {
			return true
		}
	}
	return false
}

// segment paints the stroke from a to b by stamping the brush disc at
// one-pixel intervals. Discs give round caps and joins for free.
func (o *Overlay) segment(a, b Point) {
	dist := math.Hypot(b.X-a.X, b.Y-a.Y)
	steps := int(math.Ceil(dist))
	if steps < 1 {
		steps = 1
	}
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		o.stamp(Point{X: a.X + (b.X-a.X)*t, Y: a.Y + (b.Y-a.Y)*t})
	}
}

// stamp paints one brush disc centered at p. Painting replaces pixels with
// the brush color outright; erasing clears them back to transparent.
func (o *Overlay) stamp(p Point) {
	r := o.brushSize / 2
	minX := int(math.Floor(p.X - r))
	maxX := int(math.Ceil(p.X + r))
	minY := int(math.Floor(p.Y - r))
	maxY := int(math.Ceil(p.Y + r))

	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			dx := float64(x) + 0.5 - p.X
			dy := float64(y) + 0.5 - p.Y
			if dx*dx+dy*dy > r*r {
				continue
			}
			// SetRGBA discards out-of-bounds writes, clipping the disc to
			// the surface.
			if o.erasing {
				o.surface.SetRGBA(x, y, color.RGBA{})
			} else {
				o.surface.SetRGBA(x, y, o.color)
			}
		}
	}
}
