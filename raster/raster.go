// Package raster handles image intake and export naming. Arbitrary uploads
// are decoded and re-encoded to one canonical format (PNG) before they enter
// a session, so everything stored internally shares a single encoding.
package raster

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"time"

	// Registered intake formats beyond PNG.
	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	xdraw "golang.org/x/image/draw"

	"retouch-server/core"
)

// MaxDimension is the maximum accepted width or height of an upload.
const MaxDimension = 4096

var (
	// ErrUndecodable indicates the uploaded bytes are not a readable image.
	ErrUndecodable = errors.New("failed to load image")
	// ErrTooLarge indicates the image exceeds MaxDimension on either axis.
	ErrTooLarge = errors.New("image dimensions exceed maximum allowed")
)

// Normalize decodes an uploaded raster of any registered format and
// re-encodes it as canonical PNG. The decoded pixel dimensions are preserved
// exactly.
func Normalize(data []byte) (core.Raster, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return core.Raster{}, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > MaxDimension || bounds.Dy() > MaxDimension {
		return core.Raster{}, fmt.Errorf("%w (%dx%d)", ErrTooLarge, bounds.Dx(), bounds.Dy())
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return core.Raster{}, fmt.Errorf("failed to encode image: %w", err)
	}

	return core.Raster{
		Data:   buf.Bytes(),
		MIME:   core.CanonicalMIME,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

// Thumbnail scales a raster down so its longer side is at most maxDim and
// returns it as a data URL suitable for list views. Images already within
// the bound are passed through unscaled.
func Thumbnail(r core.Raster, maxDim int) (string, error) {
	if maxDim <= 0 {
		return "", errors.New("maxDim must be positive")
	}

	src, _, err := image.Decode(bytes.NewReader(r.Data))
	if err != nil {
		return "", fmt.Errorf("failed to decode raster: %w", err)
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w > maxDim || h > maxDim {
		if w >= h {
			h = h * maxDim / w
			w = maxDim
		} else {
			w = w * maxDim / h
			h = maxDim
		}
		if w < 1 {
			w = 1
		}
		if h < 1 {
			h = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
		src = dst
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		return "", fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Resize rescales a raster to exactly w x h pixels using nearest-neighbor
// sampling, which keeps mask edges hard instead of introducing half-selected
// pixels.
func Resize(r core.Raster, w, h int) (core.Raster, error) {
	if w <= 0 || h <= 0 {
		return core.Raster{}, errors.New("target dimensions must be positive")
	}

	src, _, err := image.Decode(bytes.NewReader(r.Data))
	if err != nil {
		return core.Raster{}, fmt.Errorf("failed to decode raster: %w", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return core.Raster{}, fmt.Errorf("failed to encode raster: %w", err)
	}
	return core.Raster{
		Data:   buf.Bytes(),
		MIME:   core.CanonicalMIME,
		Width:  w,
		Height: h,
	}, nil
}

// ExportFilename derives the download name for an export created at t.
func ExportFilename(t time.Time) string {
	return "retouch-" + t.Format("20060102-150405") + ".png"
}
