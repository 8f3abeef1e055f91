// Package compositor draws video frames: a cover-fit image, a bottom
// gradient and the caption active at a given time.
package compositor

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/dgnsrekt/storyreel/internal/subtitle"
)

// Layout constants, relative to the frame size.
const (
	FontSizeRatio   = 0.065
	LineHeightRatio = 1.3
	MaxTextWidth    = 0.85
	TextCenterY     = 0.80
	GradientHeight  = 0.40
	GradientAlpha   = 0.80

	outlineRadius  = 0.08 // of font size
	outlineSteps   = 16
	shadowOffset   = 0.05 // of font size
	captionPadding = 0.5  // of line height
)

var (
	outlineColor = color.NRGBA{R: 0, G: 0, B: 0, A: 230}
	shadowColor  = color.NRGBA{R: 0, G: 0, B: 0, A: 128}
	fillColor    = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
)

var parseDefaultFont = sync.OnceValues(func() (*opentype.Font, error) {
	return opentype.Parse(gobold.TTF)
})

// Option configures a Compositor.
type Option func(*Compositor)

// WithFace sets the caption font face. The font size is taken from the
// face metrics.
func WithFace(face font.Face) Option {
	return func(c *Compositor) {
		c.face = face
	}
}

// WithFontSize overrides the caption size in pixels.
func WithFontSize(px float64) Option {
	return func(c *Compositor) {
		c.fontSize = px
	}
}

// Compositor renders frames of a fixed size. It is not safe for concurrent
// use: font faces keep per-call state.
type Compositor struct {
	width, height int
	base          *image.RGBA
	chunks        []subtitle.Chunk

	face     font.Face
	fontSize float64

	// Rendered caption for the chunk at layerIndex.
	layer      *image.RGBA
	layerIndex int
}

// New builds a compositor for width x height frames. The background is
// rendered once. A nil or empty chunks slice disables captions.
func New(width, height int, img image.Image, chunks []subtitle.Chunk, opts ...Option) (*Compositor, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	if img == nil || img.Bounds().Empty() {
		return nil, errors.New("image has no pixels")
	}

	c := &Compositor{
		width:      width,
		height:     height,
		chunks:     chunks,
		layerIndex: -1,
	}
	for _, opt := range opts {
		opt(c)
	}

	switch {
	case c.face != nil:
		m := c.face.Metrics()
		c.fontSize = fixedToFloat(m.Ascent + m.Descent)
	default:
		if c.fontSize <= 0 {
			c.fontSize = FontSizeRatio * float64(width)
		}
		f, err := parseDefaultFont()
		if err != nil {
			return nil, fmt.Errorf("failed to parse font: %w", err)
		}
		face, err := opentype.NewFace(f, &opentype.FaceOptions{
			Size:    c.fontSize,
			DPI:     72,
			Hinting: font.HintingFull,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create font face: %w", err)
		}
		c.face = face
	}

	c.base = renderBackground(width, height, img)
	return c, nil
}

// Bounds returns the frame rectangle.
func (c *Compositor) Bounds() image.Rectangle {
	return image.Rect(0, 0, c.width, c.height)
}

// DrawFrame draws the frame for time t (seconds) into dst.
func (c *Compositor) DrawFrame(dst draw.Image, t float64) {
	r := dst.Bounds()
	draw.Draw(dst, r, c.base, image.Point{}, draw.Src)

	if len(c.chunks) == 0 {
		return
	}
	i, ok := c.activeIndex(t)
	if !ok {
		return
	}

	layer := c.captionLayer(i)
	lr := layer.Bounds().Add(r.Min)
	draw.Draw(dst, lr, layer, layer.Bounds().Min, draw.Over)
}

// Close releases the font face.
func (c *Compositor) Close() error {
	if c.face == nil {
		return nil
	}
	return c.face.Close()
}

func (c *Compositor) activeIndex(t float64) (int, bool) {
	chunk, ok := subtitle.ActiveAt(c.chunks, t)
	if !ok {
		return 0, false
	}
	if c.layerIndex >= 0 && c.chunks[c.layerIndex] == chunk {
		return c.layerIndex, true
	}
	for i := range c.chunks {
		if c.chunks[i] == chunk {
			return i, true
		}
	}
	return 0, false
}

// Lines returns text wrapped to the caption width.
func (c *Compositor) Lines(text string) []string {
	return WrapText(text, MaxTextWidth*float64(c.width), c.measure)
}

func (c *Compositor) measure(s string) float64 {
	return fixedToFloat(font.MeasureString(c.face, s))
}

// captionLayer renders chunk i once and reuses it while it stays active.
func (c *Compositor) captionLayer(i int) *image.RGBA {
	if c.layer != nil && c.layerIndex == i {
		return c.layer
	}

	lines := c.Lines(c.chunks[i].Text)
	lineHeight := LineHeightRatio * c.fontSize
	blockHeight := lineHeight * float64(len(lines))
	top := TextCenterY*float64(c.height) - blockHeight/2
	pad := captionPadding * lineHeight

	rect := image.Rect(0, int(math.Floor(top-pad)), c.width, int(math.Ceil(top+blockHeight+pad))).
		Intersect(c.Bounds())
	layer := image.NewRGBA(rect)

	m := c.face.Metrics()
	ascent, descent := fixedToFloat(m.Ascent), fixedToFloat(m.Descent)
	outline := outlineRadius * c.fontSize
	shadow := shadowOffset * c.fontSize

	for n, line := range lines {
		x := (float64(c.width) - c.measure(line)) / 2
		centre := top + lineHeight*(float64(n)+0.5)
		baseline := centre + (ascent-descent)/2

		for step := 0; step < outlineSteps; step++ {
			angle := 2 * math.Pi * float64(step) / outlineSteps
			c.drawString(layer, line, x+outline*math.Cos(angle), baseline+outline*math.Sin(angle), outlineColor)
		}
		c.drawString(layer, line, x+shadow, baseline+shadow, shadowColor)
		c.drawString(layer, line, x, baseline, fillColor)
	}

	c.layer, c.layerIndex = layer, i
	return layer
}

func (c *Compositor) drawString(dst draw.Image, s string, x, y float64, col color.Color) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: c.face,
		Dot:  fixed.Point26_6{X: floatToFixed(x), Y: floatToFixed(y)},
	}
	d.DrawString(s)
}

// renderBackground draws the black fill, the cover-fit image and the
// bottom gradient.
func renderBackground(width, height int, img image.Image) *image.RGBA {
	base := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(base, base.Bounds(), image.Black, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(base, base.Bounds(), img, CoverRect(width, height, img.Bounds()), draw.Over, nil)
	drawGradient(base)
	return base
}

// CoverRect returns the region of src that fills a width x height frame
// when scaled by max(width/srcWidth, height/srcHeight) and centred.
func CoverRect(width, height int, src image.Rectangle) image.Rectangle {
	iw, ih := float64(src.Dx()), float64(src.Dy())
	scale := math.Max(float64(width)/iw, float64(height)/ih)

	sw, sh := float64(width)/scale, float64(height)/scale
	sx := float64(src.Min.X) + (iw-sw)/2
	sy := float64(src.Min.Y) + (ih-sh)/2

	return image.Rect(
		int(math.Round(sx)), int(math.Round(sy)),
		int(math.Round(sx+sw)), int(math.Round(sy+sh)),
	).Intersect(src)
}

func drawGradient(dst *image.RGBA) {
	b := dst.Bounds()
	h := b.Dy()
	y0 := b.Max.Y - int(math.Round(GradientHeight*float64(h)))
	span := b.Max.Y - 1 - y0
	if span <= 0 {
		return
	}

	for y := y0; y < b.Max.Y; y++ {
		a := GradientAlpha * float64(y-y0) / float64(span)
		mask := image.NewUniform(color.Alpha{A: uint8(math.Round(a * 255))})
		row := image.Rect(b.Min.X, y, b.Max.X, y+1)
		draw.DrawMask(dst, row, image.Black, image.Point{}, mask, image.Point{}, draw.Over)
	}
}

func fixedToFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64
}

func floatToFixed(v float64) fixed.Int26_6 {
	return fixed.Int26_6(math.Round(v * 64))
}
