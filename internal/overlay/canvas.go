package overlay

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"sync"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"facetrack/internal/pipeline"
)

const (
	DefaultWidth  = 640
	DefaultHeight = 480
	markerRadius  = 2
)

// MarkerColor is the landmark marker color (#FF0000)
var MarkerColor = color.RGBA{R: 255, A: 255}

// Canvas is a transparent RGBA drawing surface layered over the video
// Commit composites the surface over a frame and hands the JPEG to the stream provider.
type Canvas struct {
	cameraID string
	surface  *image.RGBA
	markers  int
	provider pipeline.StreamOverlayProvider
	quality  int
	mu       sync.Mutex
}

// NewCanvas creates a surface of width x height; provider may be nil
func NewCanvas(cameraID string, width, height int, provider pipeline.StreamOverlayProvider) *Canvas {
	c := &Canvas{
		cameraID: cameraID,
		provider: provider,
		quality:  85,
	}
	if width > 0 && height > 0 {
		c.surface = image.NewRGBA(image.Rect(0, 0, width, height))
	}
	return c
}

// Ready reports whether the surface has a size
func (c *Canvas) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.surface != nil
}

// Clear wipes the surface to transparent
func (c *Canvas) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.surface == nil {
		return
	}
	draw.Draw(c.surface, c.surface.Bounds(), image.Transparent, image.Point{}, draw.Src)
	c.markers = 0
}

// FillMarker paints a small filled disc centred on (x, y), clipped to the surface
func (c *Canvas) FillMarker(x, y float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.surface == nil {
		return
	}

	cx, cy := int(x+0.5), int(y+0.5)
	bounds := c.surface.Bounds()
	for dy := -markerRadius; dy <= markerRadius; dy++ {
		for dx := -markerRadius; dx <= markerRadius; dx++ {
			if dx*dx+dy*dy > markerRadius*markerRadius {
				continue
			}
			p := image.Pt(cx+dx, cy+dy)
			if p.In(bounds) {
				c.surface.SetRGBA(p.X, p.Y, MarkerColor)
			}
		}
	}
	c.markers++
}

// Markers returns the number of markers painted since the last Clear
func (c *Canvas) Markers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.markers
}

// Surface returns a copy of the current surface
func (c *Canvas) Surface() *image.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.surface == nil {
		return nil
	}
	out := image.NewRGBA(c.surface.Bounds())
	copy(out.Pix, c.surface.Pix)
	return out
}

// Commit composites the surface over the JPEG frame and publishes the result
func (c *Canvas) Commit(frame *pipeline.FrameData) error {
	if frame == nil || len(frame.Data) == 0 {
		return fmt.Errorf("empty frame")
	}

	img, err := jpeg.Decode(bytes.NewReader(frame.Data))
	if err != nil {
		return fmt.Errorf("failed to decode frame %d: %w", frame.Seq, err)
	}

	bounds := img.Bounds()
	composite := image.NewRGBA(bounds)
	draw.Draw(composite, bounds, img, bounds.Min, draw.Src)

	c.mu.Lock()
	if c.surface == nil {
		c.mu.Unlock()
		return fmt.Errorf("canvas has no size")
	}
	if c.surface.Bounds().Size() == bounds.Size() {
		draw.Draw(composite, bounds, c.surface, image.Point{}, draw.Over)
	} else {
		xdraw.ApproxBiLinear.Scale(composite, bounds, c.surface, c.surface.Bounds(), xdraw.Over, nil)
	}
	markers := c.markers
	c.mu.Unlock()

	drawLabel(composite, 4, 4, fmt.Sprintf("%s  frame %d  points %d", c.cameraID, frame.Seq, markers), color.RGBA{255, 255, 255, 255})

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, composite, &jpeg.Options{Quality: c.quality}); err != nil {
		return fmt.Errorf("failed to encode composite: %w", err)
	}

	if c.provider != nil {
		c.provider.SetAnnotatedFrame(c.cameraID, frame.Seq, buf.Bytes())
	}
	return nil
}

// drawLabel draws text with a translucent background box
func drawLabel(img *image.RGBA, x, y int, label string, c color.RGBA) {
	bounds := img.Bounds()
	bg := color.RGBA{0, 0, 0, 180}
	textWidth := len(label) * 7
	for dy := -2; dy < 12; dy++ {
		for dx := -2; dx < textWidth+2; dx++ {
			p := image.Pt(x+dx, y+dy)
			if p.In(bounds) {
				img.Set(p.X, p.Y, bg)
			}
		}
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y + 10)},
	}
	d.DrawString(label)
}

var _ pipeline.Canvas = (*Canvas)(nil)
