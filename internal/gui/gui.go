// Package gui produces the on-screen stats overlay: RGBA textures plus the
// screen rectangles they are drawn into.
package gui

import "image"

type TextureID uint64

// TextureUpdate replaces the whole texture ID with Image.
type TextureUpdate struct {
	ID    TextureID
	Image *image.RGBA
}

// TexturesDelta lists texture uploads and releases, applied in that order.
type TexturesDelta struct {
	Set  []TextureUpdate
	Free []TextureID
}

func (d TexturesDelta) IsEmpty() bool {
	return len(d.Set) == 0 && len(d.Free) == 0
}

// Primitive draws a texture 1:1 into Rect, given in physical pixels.
type Primitive struct {
	Texture TextureID
	Rect    image.Rectangle
}

type Primitives []Primitive
