package qr

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"regexp"

	"vpn-assistant/internal/domain"

	"github.com/yeqown/go-qrcode"
)

const (
	DefaultWidth = 512
	MinWidth     = 64

	// quietModules is the blank margin around the symbol, in modules.
	quietModules = 4

	// cornerRatio is the module corner radius as a fraction of the module size.
	cornerRatio = 0.35

	maxBlockWidth = 255
)

var (
	ErrEmptyContent = errors.New("qr content cannot be empty")
	ErrTooDense     = errors.New("qr content does not fit the configured width")

	unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)
)

// Renderer turns subscription links into square PNG QR codes of a fixed
// width, with rounded modules on a transparent background.
type Renderer struct {
	width  int
	dir    string
	logger domain.Logger
}

// NewRenderer creates a renderer writing temporary files into dir. An empty
// dir means the system temp directory.
func NewRenderer(width int, dir string, logger domain.Logger) *Renderer {
	if width < MinWidth {
		width = DefaultWidth
	}
	if dir == "" {
		dir = os.TempDir()
	}

	return &Renderer{
		width:  width,
		dir:    dir,
		logger: logger,
	}
}

// Render encodes content as a PNG image exactly width pixels wide.
func (r *Renderer) Render(content string) ([]byte, error) {
	if content == "" {
		return nil, ErrEmptyContent
	}

	config := &qrcode.Config{EncMode: qrcode.EncModeByte, EcLevel: qrcode.ErrorCorrectionMedium}

	// The first pass only measures the symbol, one pixel per module.
	measure, err := qrcode.NewWithConfig(content, config, qrcode.WithQRWidth(1), qrcode.WithBorderWidth(0))
	if err != nil {
		return nil, fmt.Errorf("failed to encode qr code: %w", err)
	}
	attr, err := measure.Attribute()
	if err != nil {
		return nil, fmt.Errorf("failed to measure qr code: %w", err)
	}

	block, borders, err := layout(attr.W, r.width)
	if err != nil {
		return nil, err
	}

	code, err := qrcode.NewWithConfig(content, config,
		qrcode.WithQRWidth(uint8(block)),
		qrcode.WithBorderWidth(borders[0], borders[1], borders[2], borders[3]),
		qrcode.WithBgColor(color.Transparent),
		qrcode.WithCustomShape(roundedSquare{}),
		qrcode.WithBuiltinImageEncoder(qrcode.PNG_FORMAT),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to encode qr code: %w", err)
	}

	var buf bytes.Buffer
	if err := code.SaveTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}

	return buf.Bytes(), nil
}

// layout picks the module size for a symbol of the given dimension and
// spreads the leftover pixels over the borders (top, right, bottom, left)
// so the image is exactly width pixels on each side.
func layout(dimension, width int) (int, [4]int, error) {
	block := width / (dimension + 2*quietModules)
	if block < 1 {
		return 0, [4]int{}, ErrTooDense
	}
	if block > maxBlockWidth {
		block = maxBlockWidth
	}

	margin := width - dimension*block
	before := margin / 2
	after := margin - before

	return block, [4]int{before, after, after, before}, nil
}

// roundedSquare draws dark modules as rounded squares and leaves light
// modules to the background.
type roundedSquare struct{}

func (roundedSquare) Draw(ctx *qrcode.DrawContext) {
	if !isDark(ctx.Color()) {
		return
	}

	w, h := ctx.Edge()
	corner := ctx.UpperLeft()
	ctx.DrawRoundedRectangle(float64(corner.X), float64(corner.Y), float64(w), float64(h), float64(w)*cornerRatio)
	ctx.SetColor(ctx.Color())
	ctx.Fill()
}

func (s roundedSquare) DrawFinder(ctx *qrcode.DrawContext) {
	s.Draw(ctx)
}

func isDark(c color.Color) bool {
	return color.GrayModel.Convert(c).(color.Gray).Y < 0x80
}

// WithTempFile renders content into a uniquely named file, hands its path
// to fn and removes the file afterwards, whatever fn or the renderer did.
// Removal failures are logged, not returned.
func (r *Renderer) WithTempFile(name, content string, fn func(path string) error) error {
	if err := os.MkdirAll(r.dir, 0o700); err != nil {
		return fmt.Errorf("failed to prepare qr directory: %w", err)
	}

	file, err := os.CreateTemp(r.dir, "qr-"+sanitizeName(name)+"-*.png")
	if err != nil {
		return fmt.Errorf("failed to create qr file: %w", err)
	}
	path := file.Name()

	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.logger.WithError(err).WithField("path", path).Warn("Failed to remove qr file")
		}
	}()

	data, err := r.Render(content)
	if err != nil {
		_ = file.Close()
		return err
	}

	if _, err := file.Write(data); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to write qr file: %w", err)
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close qr file: %w", err)
	}

	return fn(path)
}

// Dir returns the directory temporary files are written to
func (r *Renderer) Dir() string {
	return r.dir
}

// sanitizeName keeps temp file names filesystem safe
func sanitizeName(name string) string {
	name = unsafeNameChars.ReplaceAllString(filepath.Base(name), "_")
	if name == "" || name == "." || name == "_" {
		return "code"
	}
	return name
}
