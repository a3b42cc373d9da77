// Package texture decodes model textures referenced by material bindings.
package texture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"path"
	"strings"

	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/bmp"
	"go.uber.org/zap"

	"github.com/Faultbox/bdae-viewer/internal/logger"
	"github.com/Faultbox/bdae-viewer/pkg/archive"
)

// ErrUnsupported is returned for texture extensions without a decoder.
var ErrUnsupported = errors.New("unsupported texture format")

// Extensions lists the decodable extensions in lookup order.
var Extensions = []string{".tga", ".png", ".bmp", ".jpg"}

const tgaFooterSize = 26

// Decode decodes data by the extension of name.
func Decode(name string, data []byte) (image.Image, error) {
	r := bytes.NewReader(data)
	var (
		img image.Image
		err error
	)
	switch strings.ToLower(path.Ext(name)) {
	case ".tga":
		// The decoder looks for a footer in the last tgaFooterSize bytes.
		if len(data) < tgaFooterSize {
			r = bytes.NewReader(append(bytes.Clone(data), make([]byte, tgaFooterSize-len(data))...))
		}
		img, err = tga.Decode(r)
	case ".bmp":
		img, err = bmp.Decode(r)
	case ".png":
		img, err = png.Decode(r)
	case ".jpg", ".jpeg":
		img, err = jpeg.Decode(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, name)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return img, nil
}

// ImageToRGBA converts any image.Image to *image.RGBA with the origin at 0,0.
func ImageToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}

// Load reads and decodes a texture. When name is missing, the same base
// name is tried with each of Extensions.
func Load(files archive.Opener, name string) (*image.RGBA, string, error) {
	candidates := []string{name}
	base := strings.TrimSuffix(name, path.Ext(name))
	for _, ext := range Extensions {
		if alt := base + ext; !strings.EqualFold(alt, name) {
			candidates = append(candidates, alt)
		}
	}

	var lastErr error
	for _, c := range candidates {
		f, err := files.Open(c)
		if err != nil {
			lastErr = err
			continue
		}
		data, err := archive.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, c, err
		}
		img, err := Decode(c, data)
		if err != nil {
			return nil, c, err
		}
		if c != name {
			logger.Debug("texture found under alternate name",
				zap.String("texture", name),
				zap.String("found", c))
		}
		return ImageToRGBA(img), c, nil
	}
	return nil, name, lastErr
}

// Placeholder returns a size x size checkerboard used for missing textures.
func Placeholder(size int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	light := color.RGBA{R: 200, G: 200, B: 200, A: 255}
	dark := color.RGBA{R: 120, G: 120, B: 120, A: 255}
	cell := max(size/8, 1)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := light
			if (x/cell+y/cell)%2 == 1 {
				c = dark
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}
