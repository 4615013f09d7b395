package canvas

import (
	"bytes"
	"image/color"
	"image/png"
	"testing"
)

func mountedOverlay(t *testing.T) *Overlay {
	t.Helper()
	o := NewOverlay()
	o.SetViewport(Geometry{Left: 100, Top: 50, Width: 200, Height: 120})
	return o
}

// decodeAlphaAt decodes a serialized mask and returns the alpha at (x, y).
func decodeAlphaAt(t *testing.T, data []byte, x, y int) uint8 {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("failed to decode mask PNG: %v", err)
	}
	_, _, _, a := img.At(x, y).RGBA()
	return uint8(a >> 8)
}

func TestUnmountedOverlayMapsToOrigin(t *testing.T) {
	o := NewOverlay()

	p := o.MapPoint(123, 456)
	if p.X != 0 || p.Y != 0 {
		t.Errorf("MapPoint() = (%v, %v), want (0, 0) while unmounted", p.X, p.Y)
	}
}

func TestUnmountedOverlayDrawsNothing(t *testing.T) {
	o := NewOverlay()
	o.EnterBrushMode()

	// None of these may panic or produce a mask.
	o.BeginStroke(10, 10)
	o.ContinueStroke(20, 20)
	if mask := o.EndStroke(); mask != nil {
		t.Error("EndStroke() on unmounted overlay should return nil")
	}
	o.Clear()
}

func TestMapPointSubtractsViewportOrigin(t *testing.T) {
	o := mountedOverlay(t)

	p := o.MapPoint(150, 80)
	if p.X != 50 || p.Y != 30 {
		t.Errorf("MapPoint(150, 80) = (%v, %v), want (50, 30)", p.X, p.Y)
	}
}

func TestStrokeProducesMask(t *testing.T) {
	o := mountedOverlay(t)
	o.EnterBrushMode()
	o.SetBrushSize(10)

	// Viewport (150, 80) maps to overlay (50, 30).
	o.BeginStroke(150, 80)
	o.ContinueStroke(170, 80)
	mask := o.EndStroke()

	if mask == nil {
		t.Fatal("EndStroke() returned nil after drawing")
	}
	if mask.MIME != "image/png" {
		t.Errorf("mask MIME = %q, want image/png", mask.MIME)
	}
	if mask.Width != 200 || mask.Height != 120 {
		t.Errorf("mask dimensions = %dx%d, want 200x120", mask.Width, mask.Height)
	}

	if a := decodeAlphaAt(t, mask.Data, 50, 30); a == 0 {
		t.Error("stroke start should be painted")
	}
	if a := decodeAlphaAt(t, mask.Data, 60, 30); a == 0 {
		t.Error("segment midpoint should be painted")
	}
	if a := decodeAlphaAt(t, mask.Data, 50, 100); a != 0 {
		t.Error("pixel far from the stroke should be transparent")
	}
}

func TestStrokeRequiresBrushMode(t *testing.T) {
	o := mountedOverlay(t)

	o.BeginStroke(150, 80)
	o.ContinueStroke(170, 80)
	if mask := o.EndStroke(); mask != nil {
		t.Error("drawing outside brush mode should leave the mask absent")
	}
}

func TestContinueWithoutBeginIsNoOp(t *testing.T) {
	o := mountedOverlay(t)
	o.EnterBrushMode()

	o.ContinueStroke(150, 80)
	if mask := o.EndStroke(); mask != nil {
		t.Error("ContinueStroke without an open stroke should paint nothing")
	}
}

func TestEraseRemovesFromMask(t *testing.T) {
	o := mountedOverlay(t)
	o.EnterBrushMode()
	o.SetBrushSize(20)

	o.BeginStroke(150, 80)
	o.EndStroke()

	o.EnableErase()
	o.SetBrushSize(40)
	o.BeginStroke(150, 80)
	mask := o.EndStroke()

	if mask != nil {
		t.Error("erasing the only stroke should leave the mask absent")
	}
}

func TestEnterBrushModeResetsErase(t *testing.T) {
	o := mountedOverlay(t)
	o.EnterBrushMode()
	o.EnableErase()

	o.EnterBrushMode()
	if o.Erasing() {
		t.Error("EnterBrushMode() should switch erase mode off")
	}
}

func TestSelectColorResetsErase(t *testing.T) {
	o := mountedOverlay(t)
	o.EnterBrushMode()
	o.EnableErase()

	o.SelectColor(color.RGBA{R: 0xff, A: 0xff})
	if o.Erasing() {
		t.Error("SelectColor() should switch erase mode off")
	}
}

func TestClearThenEndStrokeYieldsAbsent(t *testing.T) {
	o := mountedOverlay(t)
	o.EnterBrushMode()

	o.BeginStroke(150, 80)
	o.EndStroke()

	o.Clear()
	if mask := o.EndStroke(); mask != nil {
		t.Error("EndStroke() after Clear() should return nil, not an empty mask")
	}
}

func TestResizeClearsDrawnContent(t *testing.T) {
	o := mountedOverlay(t)
	o.EnterBrushMode()
	o.BeginStroke(150, 80)
	o.EndStroke()

	o.SetViewport(Geometry{Left: 100, Top: 50, Width: 300, Height: 180})

	if mask := o.Serialize(); mask != nil {
		t.Error("resize should clear drawn content")
	}
}

func TestMoveWithoutResizePreservesContent(t *testing.T) {
	o := mountedOverlay(t)
	o.EnterBrushMode()
	o.BeginStroke(150, 80)
	o.EndStroke()

	o.SetViewport(Geometry{Left: 20, Top: 10, Width: 200, Height: 120})

	if mask := o.Serialize(); mask == nil {
		t.Error("pure position change should keep drawn content")
	}
}

func TestBrushSizeIsClamped(t *testing.T) {
	o := mountedOverlay(t)

	o.SetBrushSize(0)
	if o.brushSize != MinBrushSize {
		t.Errorf("brushSize = %v, want clamped to %d", o.brushSize, MinBrushSize)
	}
	o.SetBrushSize(10000)
	if o.brushSize != MaxBrushSize {
		t.Errorf("brushSize = %v, want clamped to %d", o.brushSize, MaxBrushSize)
	}
}

func TestExitBrushModeClosesStroke(t *testing.T) {
	o := mountedOverlay(t)
	o.EnterBrushMode()
	o.BeginStroke(150, 80)

	o.ExitBrushMode()
	o.ContinueStroke(250, 80)

	mask := o.Serialize()
	if mask == nil {
		t.Fatal("the stamped starting point should survive")
	}
	// The continuation after ExitBrushMode must not have painted.
	if a := decodeAlphaAt(t, mask.Data, 140, 30); a != 0 {
		t.Error("ContinueStroke after ExitBrushMode should be a no-op")
	}
}
