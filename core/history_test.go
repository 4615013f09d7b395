package core

import "testing"

func raster(tag byte) Raster {
	return Raster{Data: []byte{tag}, MIME: CanonicalMIME, Width: 1, Height: 1}
}

func TestNewHistoryIsEmpty(t *testing.T) {
	h := NewHistory()

	if h.Len() != 0 {
		t.Errorf("Len() = %d, want 0", h.Len())
	}
	if h.Cursor() != -1 {
		t.Errorf("Cursor() = %d, want -1", h.Cursor())
	}
	if h.Current() != nil {
		t.Error("Current() should be nil for empty history")
	}
	if h.CanStepBack() {
		t.Error("CanStepBack() should be false for empty history")
	}
	if h.CanStepForward() {
		t.Error("CanStepForward() should be false for empty history")
	}
}

func TestResetStartsFreshSequence(t *testing.T) {
	h := NewHistory()
	h.Reset(raster('a'))
	h.Commit(raster('b'))
	h.Reset(raster('c'))

	if h.Len() != 1 {
		t.Errorf("Len() = %d, want 1", h.Len())
	}
	if h.Cursor() != 0 {
		t.Errorf("Cursor() = %d, want 0", h.Cursor())
	}
	if got := h.Current(); got == nil || got.Data[0] != 'c' {
		t.Errorf("Current() = %v, want raster 'c'", got)
	}
}

func TestCommitAdvancesCursor(t *testing.T) {
	h := NewHistory()
	h.Reset(raster('a'))
	h.Commit(raster('b'))
	h.Commit(raster('c'))

	if h.Len() != 3 {
		t.Errorf("Len() = %d, want 3", h.Len())
	}
	if h.Cursor() != 2 {
		t.Errorf("Cursor() = %d, want 2", h.Cursor())
	}
	if !h.CanStepBack() {
		t.Error("CanStepBack() should be true")
	}
	if h.CanStepForward() {
		t.Error("CanStepForward() should be false at the tail")
	}
}

func TestCommitAfterStepBackDiscardsRedoTail(t *testing.T) {
	// [A,B,C] at cursor 2, stepBack to B, commit D -> [A,B,D] at cursor 2.
	h := NewHistory()
	h.Reset(raster('A'))
	h.Commit(raster('B'))
	h.Commit(raster('C'))

	img, ok := h.StepBack()
	if !ok {
		t.Fatal("StepBack() failed")
	}
	if img.Data[0] != 'B' {
		t.Errorf("StepBack() shows %q, want 'B'", img.Data[0])
	}

	h.Commit(raster('D'))

	if h.Len() != 3 {
		t.Errorf("Len() = %d, want 3", h.Len())
	}
	if h.Cursor() != 2 {
		t.Errorf("Cursor() = %d, want 2", h.Cursor())
	}
	if got := h.Current(); got.Data[0] != 'D' {
		t.Errorf("Current() = %q, want 'D'", got.Data[0])
	}
	if h.CanStepForward() {
		t.Error("CanStepForward() should be false, redo tail was discarded")
	}

	// The surviving prefix must be untouched.
	if img, _ := h.StepBack(); img.Data[0] != 'B' {
		t.Errorf("entry before D = %q, want 'B'", img.Data[0])
	}
	if img, _ := h.StepBack(); img.Data[0] != 'A' {
		t.Errorf("first entry = %q, want 'A'", img.Data[0])
	}
}

func TestStepBoundsAreNoOps(t *testing.T) {
	h := NewHistory()
	h.Reset(raster('a'))

	if _, ok := h.StepBack(); ok {
		t.Error("StepBack() at the first entry should report false")
	}
	if _, ok := h.StepForward(); ok {
		t.Error("StepForward() at the last entry should report false")
	}
	if h.Cursor() != 0 {
		t.Errorf("Cursor() = %d, want 0 after failed steps", h.Cursor())
	}
}

func TestStepForwardAfterStepBack(t *testing.T) {
	h := NewHistory()
	h.Reset(raster('a'))
	h.Commit(raster('b'))

	h.StepBack()
	img, ok := h.StepForward()
	if !ok {
		t.Fatal("StepForward() failed")
	}
	if img.Data[0] != 'b' {
		t.Errorf("StepForward() shows %q, want 'b'", img.Data[0])
	}
}

func TestCursorStaysInBounds(t *testing.T) {
	// Interleave commits and steps; the cursor must always stay within
	// [0, Len()-1] and Len() must never exceed the number of commits+1.
	h := NewHistory()
	h.Reset(raster('a'))
	commits := 1

	ops := []func(){
		func() { h.Commit(raster('x')); commits++ },
		func() { h.StepBack() },
		func() { h.Commit(raster('y')); commits++ },
		func() { h.StepBack() },
		func() { h.StepBack() },
		func() { h.StepForward() },
		func() { h.Commit(raster('z')); commits++ },
		func() { h.StepForward() },
	}
	for i, op := range ops {
		op()
		if h.Cursor() < 0 || h.Cursor() >= h.Len() {
			t.Fatalf("op %d: cursor %d out of bounds for length %d", i, h.Cursor(), h.Len())
		}
		if h.Len() > commits {
			t.Fatalf("op %d: length %d exceeds %d commits", i, h.Len(), commits)
		}
	}
}

func TestEpochAdvancesOnResetAndClearOnly(t *testing.T) {
	h := NewHistory()
	start := h.Epoch()

	h.Reset(raster('a'))
	if h.Epoch() != start+1 {
		t.Errorf("Epoch() = %d after Reset, want %d", h.Epoch(), start+1)
	}

	h.Commit(raster('b'))
	h.StepBack()
	h.StepForward()
	if h.Epoch() != start+1 {
		t.Errorf("Epoch() = %d after commit/steps, want unchanged %d", h.Epoch(), start+1)
	}

	h.Clear()
	if h.Epoch() != start+2 {
		t.Errorf("Epoch() = %d after Clear, want %d", h.Epoch(), start+2)
	}
	if h.Len() != 0 || h.Cursor() != -1 {
		t.Errorf("Clear() left Len=%d Cursor=%d, want 0/-1", h.Len(), h.Cursor())
	}
}

func TestCurrentReturnsCopy(t *testing.T) {
	h := NewHistory()
	h.Reset(raster('a'))

	img := h.Current()
	img.MIME = "image/jpeg"

	if got := h.Current(); got.MIME != CanonicalMIME {
		t.Errorf("stored entry mutated through Current(): MIME = %q", got.MIME)
	}
}
