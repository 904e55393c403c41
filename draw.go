package avctl

import (
	"image"

	"github.com/hajimehoshi/ebiten/v2"
)

// Surface is a render target a [GPUDevice] can present frames on.
// *ebiten.Image satisfies it.
type Surface interface {
	Bounds() image.Rectangle
	DrawImage(img *ebiten.Image, options *ebiten.DrawImageOptions)
}

var _ Surface = (*ebiten.Image)(nil)

// Draw draws a frame into the given viewport, scaling as required with
// [ebiten.FilterLinear] to take as much space as possible while preserving
// the aspect ratio.
//
// If there's extra space in the viewport, the frame will be drawn centered,
// but black bars won't be explicitly drawn, so whatever was on the background
// of the viewport will remain visible.
//
// Common usage, from an ebiten Game's Draw():
//
//	if frame := device.CurrentFrame(); frame != nil {
//		avctl.Draw(screen, frame)
//	}
func Draw(viewport Surface, frame *ebiten.Image) {
	if frame == nil {
		return
	}
	geom, filter := CalcProjection(viewport.Bounds(), frame.Bounds())
	var opts ebiten.DrawImageOptions
	opts.GeoM = geom
	opts.Filter = filter
	viewport.DrawImage(frame, &opts)
}

// CalcProjection returns the GeoM and recommended ebiten.Filter to project
// a frame with the given bounds into the given viewport bounds. If you don't
// need the specific parameters, see [Draw]() instead.
func CalcProjection(viewBounds, frameBounds image.Rectangle) (ebiten.GeoM, ebiten.Filter) {
	vwWidth, vwHeight := viewBounds.Dx(), viewBounds.Dy()
	frWidth, frHeight := frameBounds.Dx(), frameBounds.Dy()

	// translation to viewport origin
	tx, ty := float64(viewBounds.Min.X), float64(viewBounds.Min.Y)

	var geom ebiten.GeoM
	if frWidth == 0 || frHeight == 0 {
		geom.Translate(tx, ty)
		return geom, ebiten.FilterNearest
	}

	wf, hf := float64(vwWidth)/float64(frWidth), float64(vwHeight)/float64(frHeight)
	sf := min(wf, hf)
	if sf == 1.0 {
		// exact fit on one axis, pixel perfect
		offx := (float64(vwWidth) - float64(frWidth)) / 2
		offy := (float64(vwHeight) - float64(frHeight)) / 2
		geom.Translate(tx+offx, ty+offy)
		return geom, ebiten.FilterNearest
	}

	sfrWidth := float64(frWidth) * sf
	sfrHeight := float64(frHeight) * sf
	geom.Scale(sf, sf)
	geom.Translate(tx+(float64(vwWidth)-sfrWidth)/2, ty+(float64(vwHeight)-sfrHeight)/2)
	return geom, ebiten.FilterLinear // TODO: use better filters for new ebitengine versions
}
