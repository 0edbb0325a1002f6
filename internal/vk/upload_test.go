package vk

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vulkan-go/vulkan"

	"github.com/dave-is-dave/Goshenite/internal/gpu"
	"github.com/dave-is-dave/Goshenite/internal/gui"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestPlanUploadsClipsToImage(t *testing.T) {
	textures := map[gui.TextureID]*image.RGBA{1: solid(20, 10, color.RGBA{R: 255, A: 255})}
	prims := gui.Primitives{
		{Texture: 1, Rect: image.Rect(90, 95, 110, 105)},
	}

	uploads, size := planUploads(prims, textures, gpu.Extent2D{Width: 100, Height: 100})
	require.Len(t, uploads, 1)
	u := uploads[0]
	assert.Equal(t, image.Rect(90, 95, 100, 100), u.dst)
	assert.Equal(t, image.Point{}, u.srcMin)
	assert.Equal(t, uint64(10*5*4), size)
}

func TestPlanUploadsClipsToTexture(t *testing.T) {
	textures := map[gui.TextureID]*image.RGBA{1: solid(4, 4, color.RGBA{A: 255})}
	prims := gui.Primitives{
		{Texture: 1, Rect: image.Rect(-2, 0, 10, 10)},
	}

	uploads, size := planUploads(prims, textures, gpu.Extent2D{Width: 100, Height: 100})
	require.Len(t, uploads, 1)
	assert.Equal(t, image.Rect(0, 0, 2, 4), uploads[0].dst)
	assert.Equal(t, image.Point{X: 2}, uploads[0].srcMin)
	assert.Equal(t, uint64(2*4*4), size)
}

func TestPlanUploadsSkipsUnknownAndOffscreen(t *testing.T) {
	textures := map[gui.TextureID]*image.RGBA{
		1: solid(4, 4, color.RGBA{A: 255}),
		2: solid(2, 2, color.RGBA{A: 255}),
	}
	prims := gui.Primitives{
		{Texture: 7, Rect: image.Rect(0, 0, 4, 4)},
		{Texture: 1, Rect: image.Rect(200, 200, 204, 204)},
		{Texture: 1, Rect: image.Rect(0, 0, 4, 4)},
		{Texture: 2, Rect: image.Rect(1, 1, 3, 3)},
	}

	uploads, size := planUploads(prims, textures, gpu.Extent2D{Width: 100, Height: 100})
	require.Len(t, uploads, 2)
	assert.Equal(t, uint64(0), uploads[0].offset)
	assert.Equal(t, uint64(4*4*4), uploads[1].offset)
	assert.Equal(t, uint64(4*4*4+2*2*4), size)
}

func TestPackTexelsSwizzlesForBGRA(t *testing.T) {
	tex := image.NewRGBA(image.Rect(0, 0, 3, 2))
	tex.SetRGBA(1, 0, color.RGBA{R: 1, G: 2, B: 3, A: 4})
	tex.SetRGBA(2, 1, color.RGBA{R: 5, G: 6, B: 7, A: 8})
	u := upload{dst: image.Rect(0, 0, 2, 2), src: tex, srcMin: image.Point{X: 1}}

	rgba := make([]byte, u.size())
	packTexels(rgba, u, false)
	assert.Equal(t, []byte{1, 2, 3, 4, 0, 0, 0, 0, 0, 0, 0, 0, 5, 6, 7, 8}, rgba)

	bgra := make([]byte, u.size())
	packTexels(bgra, u, true)
	assert.Equal(t, []byte{3, 2, 1, 4, 0, 0, 0, 0, 0, 0, 0, 0, 7, 6, 5, 8}, bgra)
}

func TestSwapchainStatus(t *testing.T) {
	tests := []struct {
		res  vulkan.Result
		want gpu.Status
		err  error
	}{
		{res: vulkan.Success, want: gpu.StatusSuccess},
		{res: vulkan.Suboptimal, want: gpu.StatusSuboptimal},
		{res: vulkan.ErrorOutOfDate, want: gpu.StatusOutOfDate},
		{res: vulkan.ErrorSurfaceLost, err: gpu.ErrSurfaceLost},
		{res: vulkan.ErrorDeviceLost, err: gpu.ErrDeviceLost},
	}
	for _, tt := range tests {
		got, err := swapchainStatus("present", tt.res)
		if tt.err != nil {
			assert.ErrorIs(t, err, tt.err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := swapchainStatus("present", vulkan.ErrorOutOfHostMemory)
	assert.Error(t, err)
}
