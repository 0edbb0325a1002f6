package gui

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"slices"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	overlayTexture TextureID = 1
	// logical pixels
	overlayMargin  = 8
	overlayPadding = 4
	overlayColumns = 26
)

var (
	overlayBackground = color.RGBA{R: 20, G: 22, B: 28, A: 255}
	overlayForeground = color.RGBA{R: 230, G: 230, B: 230, A: 255}
)

// Stats is the information shown by the overlay.
type Stats struct {
	EngineFrame uint64
	RenderFrame uint64
	RenderFPS   float64
	Generation  uint64
	Objects     int
	ScaleFactor float64
}

func (s Stats) lines() []string {
	return []string{
		fmt.Sprintf("engine frame %d", s.EngineFrame),
		fmt.Sprintf("render frame %d", s.RenderFrame),
		fmt.Sprintf("render fps   %.1f", s.RenderFPS),
		fmt.Sprintf("swapchain    gen %d", s.Generation),
		fmt.Sprintf("objects      %d", s.Objects),
		fmt.Sprintf("scale        %.2f", s.ScaleFactor),
	}
}

// Overlay is a stats panel pinned to the top-left corner of the window.
type Overlay struct {
	face        font.Face
	scaleFactor float64
	visible     bool
	uploaded    bool
	lines       []string
	rect        image.Rectangle
	delta       TexturesDelta
}

func NewOverlay(scaleFactor float64) *Overlay {
	if scaleFactor <= 0 {
		scaleFactor = 1
	}
	return &Overlay{
		face:        basicfont.Face7x13,
		scaleFactor: scaleFactor,
		visible:     true,
	}
}

func (o *Overlay) ScaleFactor() float64 { return o.scaleFactor }

// SetScaleFactor forces the panel to be rasterized again at the new size.
func (o *Overlay) SetScaleFactor(scaleFactor float64) {
	if scaleFactor <= 0 || scaleFactor == o.scaleFactor {
		return
	}
	o.scaleFactor = scaleFactor
	o.uploaded = false
}

func (o *Overlay) Visible() bool { return o.visible }

// ToggleVisible hides or shows the panel. Hiding frees its texture.
func (o *Overlay) ToggleVisible() {
	o.visible = !o.visible
	if !o.visible && o.uploaded {
		o.delta.Free = append(o.delta.Free, overlayTexture)
		o.uploaded = false
		o.rect = image.Rectangle{}
	}
}

// Update rasterizes the panel when its text or scale changed.
func (o *Overlay) Update(stats Stats) {
	if !o.visible {
		return
	}
	lines := stats.lines()
	if o.uploaded && slices.Equal(lines, o.lines) {
		return
	}
	o.lines = lines

	img := o.rasterize(lines)
	margin := o.px(overlayMargin)
	o.rect = img.Bounds().Add(image.Pt(margin, margin))

	// drop a pending upload of the same texture, only the newest matters
	set := o.delta.Set[:0]
	for _, u := range o.delta.Set {
		if u.ID != overlayTexture {
			set = append(set, u)
		}
	}
	o.delta.Set = append(set, TextureUpdate{ID: overlayTexture, Image: img})
	// frees run after sets, a pending free would drop the new upload
	o.delta.Free = slices.DeleteFunc(o.delta.Free, func(id TextureID) bool { return id == overlayTexture })
	o.uploaded = true
}

// TakeTexturesDelta returns and clears the pending texture changes.
func (o *Overlay) TakeTexturesDelta() TexturesDelta {
	d := o.delta
	o.delta = TexturesDelta{}
	return d
}

func (o *Overlay) Primitives() Primitives {
	if !o.visible || o.rect.Empty() {
		return nil
	}
	return Primitives{{Texture: overlayTexture, Rect: o.rect}}
}

// Contains reports whether a cursor position in physical pixels is over the
// panel, in which case clicks belong to the GUI.
func (o *Overlay) Contains(x, y float64) bool {
	if !o.visible {
		return false
	}
	return image.Pt(int(math.Floor(x)), int(math.Floor(y))).In(o.rect)
}

func (o *Overlay) px(logical int) int {
	return int(math.Round(float64(logical) * o.scaleFactor))
}

func (o *Overlay) rasterize(lines []string) *image.RGBA {
	metrics := o.face.Metrics()
	lineHeight := metrics.Height.Ceil()
	advance := font.MeasureString(o.face, "0").Ceil()

	w := overlayColumns*advance + 2*overlayPadding
	h := len(lines)*lineHeight + 2*overlayPadding
	src := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(src, src.Bounds(), image.NewUniform(overlayBackground), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  src,
		Src:  image.NewUniform(overlayForeground),
		Face: o.face,
	}
	for i, line := range lines {
		if len(line) > overlayColumns {
			line = line[:overlayColumns]
		}
		d.Dot = fixed.P(overlayPadding, overlayPadding+i*lineHeight+metrics.Ascent.Ceil())
		d.DrawString(line)
	}

	if o.scaleFactor == 1 {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, o.px(w), o.px(h)))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}
