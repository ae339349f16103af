// Package thumbnail turns screenshots into fixed-size JPEG thumbnails.
package thumbnail

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	"golang.org/x/image/draw"
)

const (
	Width   = 416
	Height  = 234
	Quality = jpeg.DefaultQuality
)

// Encode resizes src to exactly Width x Height, ignoring its aspect ratio, and
// returns it as an RGB JPEG.
func Encode(src image.Image) ([]byte, error) {
	return encode(Resize(src))
}

// EncodeWithLabel is Encode with label drawn along the bottom edge.
func EncodeWithLabel(src image.Image, label string) ([]byte, error) {
	labelled, err := drawLabel(Resize(src), label)
	if err != nil {
		return nil, err
	}
	return encode(labelled)
}

// Resize drops any alpha channel and scales src to Width x Height.
func Resize(src image.Image) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, Width, Height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), opaque(src), src.Bounds(), draw.Src, nil)
	return dst
}

// opaque copies src keeping the colour channels and forcing full alpha.
func opaque(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(b)

	if nrgba, ok := src.(*image.NRGBA); ok {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			si := nrgba.PixOffset(b.Min.X, y)
			di := dst.PixOffset(b.Min.X, y)
			for x := 0; x < b.Dx(); x++ {
				copy(dst.Pix[di:di+3], nrgba.Pix[si:si+3])
				dst.Pix[di+3] = 0xff
				si += 4
				di += 4
			}
		}
		return dst
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
			dst.SetRGBA(x, y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
		}
	}
	return dst
}

func encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: Quality}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
