package avctl

import (
	"image"
	"testing"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/stretchr/testify/assert"
)

// fakeSurface records draw calls without touching the GPU.
type fakeSurface struct {
	bounds image.Rectangle
	draws  int
}

func (s *fakeSurface) Bounds() image.Rectangle { return s.bounds }

func (s *fakeSurface) DrawImage(*ebiten.Image, *ebiten.DrawImageOptions) { s.draws++ }

func TestCalcProjection(t *testing.T) {
	tests := []struct {
		name        string
		view        image.Rectangle
		frame       image.Rectangle
		filter      ebiten.Filter
		topLeft     [2]float64
		bottomRight [2]float64
	}{
		{
			name:        "exact fit",
			view:        image.Rect(0, 0, 640, 360),
			frame:       image.Rect(0, 0, 640, 360),
			filter:      ebiten.FilterNearest,
			topLeft:     [2]float64{0, 0},
			bottomRight: [2]float64{640, 360},
		},
		{
			name:        "same width, taller viewport is centered vertically",
			view:        image.Rect(0, 0, 640, 480),
			frame:       image.Rect(0, 0, 640, 360),
			filter:      ebiten.FilterNearest,
			topLeft:     [2]float64{0, 60},
			bottomRight: [2]float64{640, 420},
		},
		{
			name:        "upscale with pillarbox",
			view:        image.Rect(0, 0, 1920, 1080),
			frame:       image.Rect(0, 0, 640, 480),
			filter:      ebiten.FilterLinear,
			topLeft:     [2]float64{240, 0},
			bottomRight: [2]float64{1680, 1080},
		},
		{
			name:        "downscale with offset viewport",
			view:        image.Rect(100, 50, 420, 230),
			frame:       image.Rect(0, 0, 1280, 720),
			filter:      ebiten.FilterLinear,
			topLeft:     [2]float64{100, 50},
			bottomRight: [2]float64{420, 230},
		},
		{
			name:        "empty frame only translates",
			view:        image.Rect(10, 20, 100, 100),
			frame:       image.Rectangle{},
			filter:      ebiten.FilterNearest,
			topLeft:     [2]float64{10, 20},
			bottomRight: [2]float64{10, 20},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			geom, filter := CalcProjection(tt.view, tt.frame)
			assert.Equal(t, tt.filter, filter)

			x, y := geom.Apply(0, 0)
			assert.InDelta(t, tt.topLeft[0], x, 1e-9)
			assert.InDelta(t, tt.topLeft[1], y, 1e-9)

			x, y = geom.Apply(float64(tt.frame.Dx()), float64(tt.frame.Dy()))
			assert.InDelta(t, tt.bottomRight[0], x, 1e-9)
			assert.InDelta(t, tt.bottomRight[1], y, 1e-9)
		})
	}
}

func TestDraw_NilFrame(t *testing.T) {
	surface := &fakeSurface{bounds: image.Rect(0, 0, 10, 10)}
	Draw(surface, nil)
	assert.Zero(t, surface.draws)
}
