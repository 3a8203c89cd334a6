// Package raster composites output frames for the image-pipeline fallback.
// A single surface is reused across frames, so rendering is strictly
// sequential: frame n is composited and saved before frame n+1 begins.
package raster

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"

	"github.com/rs/zerolog"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Surface is a reusable RGBA canvas for frame compositing
type Surface struct {
	logger zerolog.Logger
	canvas *image.RGBA
	width  int
	height int

	fontData *opentype.Font
	faces    map[int]font.Face
}

// NewSurface allocates a canvas. fontFile may be empty; text then falls back
// to a builtin bitmap face.
func NewSurface(logger zerolog.Logger, width, height int, fontFile string) (*Surface, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid surface size %dx%d", width, height)
	}

	s := &Surface{
		logger: logger.With().Str("component", "raster").Logger(),
		canvas: image.NewRGBA(image.Rect(0, 0, width, height)),
		width:  width,
		height: height,
		faces:  make(map[int]font.Face),
	}

	if fontFile != "" {
		data, err := os.ReadFile(fontFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read font file: %w", err)
		}
		f, err := opentype.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse font: %w", err)
		}
		s.fontData = f
	}

	return s, nil
}

// Bounds returns the canvas dimensions
func (s *Surface) Bounds() image.Rectangle {
	return s.canvas.Bounds()
}

// Reset fills the canvas with opaque black
func (s *Surface) Reset() {
	draw.Draw(s.canvas, s.canvas.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
}

// DrawImage scales img into dst and composites it with the given opacity
// (zero means opaque)
func (s *Surface) DrawImage(img image.Image, dst image.Rectangle, opacity float64) {
	if img == nil || dst.Empty() {
		return
	}

	if opacity <= 0 || opacity >= 1 {
		xdraw.ApproxBiLinear.Scale(s.canvas, dst, img, img.Bounds(), draw.Over, nil)
		return
	}

	scaled := image.NewRGBA(image.Rect(0, 0, dst.Dx(), dst.Dy()))
	xdraw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, img.Bounds(), draw.Src, nil)

	mask := image.NewUniform(color.Alpha{A: uint8(opacity * 255)})
	draw.DrawMask(s.canvas, dst, scaled, image.Point{}, mask, image.Point{}, draw.Over)
}

// DrawText renders text with its baseline-left anchor at (x, y)
func (s *Surface) DrawText(text string, x, y int, size int, col color.Color) {
	face := s.face(size)
	drawer := &font.Drawer{
		Dst:  s.canvas,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	drawer.DrawString(text)
}

// MeasureText returns the advance width of text at the given size, in pixels
func (s *Surface) MeasureText(text string, size int) int {
	face := s.face(size)
	return font.MeasureString(face, text).Ceil()
}

// SavePNG writes the current canvas to disk
func (s *Surface) SavePNG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create frame file: %w", err)
	}
	defer f.Close()

	if err := png.Encode(f, s.canvas); err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	return nil
}

// face returns a cached font face for the size, or the builtin bitmap face
// when no font file was loaded
func (s *Surface) face(size int) font.Face {
	if s.fontData == nil {
		return basicfont.Face7x13
	}
	if size <= 0 {
		size = 24
	}
	if f, ok := s.faces[size]; ok {
		return f
	}
	f, err := opentype.NewFace(s.fontData, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		s.logger.Warn().Err(err).Int("size", size).Msg("failed to create font face")
		return basicfont.Face7x13
	}
	s.faces[size] = f
	return f
}
