package qr

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vpn-assistant/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const link = "https://sub.example.com/sub/42_android_0f3a9c1b"

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	return NewRenderer(256, t.TempDir(), logger.NewNop())
}

func leftovers(t *testing.T, dir string) []string {
	t.Helper()

	matches, err := filepath.Glob(filepath.Join(dir, "qr-*"))
	require.NoError(t, err)
	return matches
}

func decodePNG(t *testing.T, data []byte) image.Image {
	t.Helper()

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func TestRenderProducesTransparentPNG(t *testing.T) {
	renderer := newTestRenderer(t)

	data, err := renderer.Render(link)
	require.NoError(t, err)

	img := decodePNG(t, data)

	// The quiet zone is background, which must be fully transparent.
	_, _, _, alpha := img.At(0, 0).RGBA()
	assert.Zero(t, alpha)

	opaque := 0
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a == 0xffff {
				opaque++
			}
		}
	}
	assert.Positive(t, opaque)
}

func TestRenderHasFixedWidth(t *testing.T) {
	long := "https://sub.example.com/sub/" + strings.Repeat("0f3a9c1b", 15)

	for _, width := range []int{DefaultWidth, 256, 300} {
		renderer := NewRenderer(width, t.TempDir(), logger.NewNop())

		for _, content := range []string{"https://a.b/c", long} {
			data, err := renderer.Render(content)
			require.NoError(t, err)

			bounds := decodePNG(t, data).Bounds()
			assert.Equal(t, width, bounds.Dx(), "width %d, content length %d", width, len(content))
			assert.Equal(t, width, bounds.Dy(), "width %d, content length %d", width, len(content))
		}
	}
}

func TestLayout(t *testing.T) {
	block, borders, err := layout(25, 512)
	require.NoError(t, err)
	assert.Equal(t, 15, block)
	assert.Equal(t, 512, 25*block+borders[1]+borders[3])
	assert.Equal(t, 512, 25*block+borders[0]+borders[2])
	assert.GreaterOrEqual(t, borders[3], quietModules*block)

	block, borders, err = layout(21, 10000)
	require.NoError(t, err)
	assert.Equal(t, maxBlockWidth, block)
	assert.Equal(t, 10000, 21*block+borders[1]+borders[3])

	_, _, err = layout(177, MinWidth)
	assert.ErrorIs(t, err, ErrTooDense)
}

func TestRenderRejectsEmptyContent(t *testing.T) {
	_, err := newTestRenderer(t).Render("")
	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestSmallWidthFallsBackToDefault(t *testing.T) {
	renderer := NewRenderer(10, t.TempDir(), logger.NewNop())
	assert.Equal(t, DefaultWidth, renderer.width)
}

func TestIsDark(t *testing.T) {
	assert.True(t, isDark(color.Black))
	assert.True(t, isDark(color.RGBA{A: 0xff}))
	assert.False(t, isDark(color.White))
	assert.False(t, isDark(color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}))
}

func TestWithTempFileCleansUpOnAllPaths(t *testing.T) {
	errSend := errors.New("telegram unavailable")

	tests := []struct {
		name      string
		content   string
		sendErr   error
		wantErr   error
		wantCalls int
	}{
		{name: "render and send succeed", content: link, wantCalls: 1},
		{name: "send fails", content: link, sendErr: errSend, wantErr: errSend, wantCalls: 1},
		{name: "render fails", content: "", wantErr: ErrEmptyContent, wantCalls: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			renderer := newTestRenderer(t)
			calls := 0

			err := renderer.WithTempFile("42_android_0f3a", tc.content, func(path string) error {
				calls++

				info, statErr := os.Stat(path)
				require.NoError(t, statErr)
				assert.Positive(t, info.Size())

				return tc.sendErr
			})

			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.wantCalls, calls)
			assert.Empty(t, leftovers(t, renderer.Dir()))
		})
	}
}

func TestWithTempFileUsesDistinctPaths(t *testing.T) {
	renderer := newTestRenderer(t)

	var outer, inner string
	err := renderer.WithTempFile("same", link, func(path string) error {
		outer = path
		return renderer.WithTempFile("same", link, func(path string) error {
			inner = path
			return nil
		})
	})
	require.NoError(t, err)

	assert.NotEqual(t, outer, inner)
	assert.Empty(t, leftovers(t, renderer.Dir()))
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "42_ios_ab12", sanitizeName("42_ios_ab12"))
	assert.Equal(t, "evil", sanitizeName("../../evil"))
	assert.Equal(t, "code", sanitizeName(""))
	assert.Equal(t, "a_b", sanitizeName("a b"))
}
