package avctl

import (
	"fmt"
	"image/color"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
)

// VideoDevice is the output device an engine pushes decoded frames to.
// A [Session] owns exactly one device for its whole lifetime and hands it
// to every engine it creates.
type VideoDevice interface {
	// RenderFrame uploads one RGBA frame (4 bytes per pixel, row major).
	// A nil frame clears the output.
	RenderFrame(width, height int, rgba []byte) error

	// SetSurface (re)binds the presentation target. The previous target is
	// not touched.
	SetSurface(target Surface)

	// Terminate releases the device. Frames rendered afterwards are ignored.
	Terminate()
}

var _ VideoDevice = (*GPUDevice)(nil)

// GPUDevice is a [VideoDevice] backed by an ebitengine image, which lives in
// GPU memory. Frames are written to the device image, and projected onto
// the bound surface (if any) preserving the aspect ratio.
//
// The image is allocated lazily when the first frame arrives and
// reallocated whenever the frame size changes, so creating a device is
// cheap and doesn't require a running game loop.
type GPUDevice struct {
	mutex        sync.Mutex
	frame        *ebiten.Image
	surface      Surface
	onBlackFrame bool
	terminated   bool
	frames       uint64
}

// NewGPUDevice creates a device with no frame and no bound surface.
func NewGPUDevice() *GPUDevice {
	return &GPUDevice{onBlackFrame: true}
}

// RenderFrame writes the given frame to the device image and presents it on
// the bound surface.
func (d *GPUDevice) RenderFrame(width, height int, rgba []byte) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.terminated {
		return nil
	}

	if rgba == nil {
		d.noLockClear()
		return nil
	}
	if width <= 0 || height <= 0 || len(rgba) != width*height*4 {
		return fmt.Errorf("%w: frame %dx%d with %d bytes", ErrInvalidArgument, width, height, len(rgba))
	}

	if d.frame == nil || d.frame.Bounds().Dx() != width || d.frame.Bounds().Dy() != height {
		if d.frame != nil {
			d.frame.Deallocate()
		}
		d.frame = ebiten.NewImage(width, height)
	}
	d.frame.WritePixels(rgba)
	d.onBlackFrame = false
	d.frames++

	if d.surface != nil {
		Draw(d.surface, d.frame)
	}
	return nil
}

// SetSurface binds a new presentation target. nil unbinds.
func (d *GPUDevice) SetSurface(target Surface) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.surface = target
	if target != nil && d.frame != nil && !d.terminated {
		Draw(target, d.frame)
	}
}

// CurrentFrame returns the device image, or nil if no frame has been
// rendered yet. The image is reused: its contents change as new frames are
// rendered, so don't store it expecting it to remain the same.
func (d *GPUDevice) CurrentFrame() *ebiten.Image {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.frame
}

// FramesRendered returns how many frames have been uploaded so far.
func (d *GPUDevice) FramesRendered() uint64 {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.frames
}

// Terminate frees the device image and unbinds the surface.
func (d *GPUDevice) Terminate() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.terminated {
		return
	}
	d.terminated = true
	d.surface = nil
	if d.frame != nil {
		d.frame.Deallocate()
		d.frame = nil
	}
}

func (d *GPUDevice) noLockClear() {
	if d.frame != nil && !d.onBlackFrame {
		d.frame.Fill(color.Black)
		d.onBlackFrame = true
		if d.surface != nil {
			Draw(d.surface, d.frame)
		}
	}
}
