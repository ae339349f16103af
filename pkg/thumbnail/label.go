package thumbnail

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	labelBand     = 22
	labelFontSize = 12
)

var (
	fontOnce sync.Once
	fontData *truetype.Font
	fontErr  error
)

// drawLabel draws text centered on a light band at the bottom of img. The
// image keeps its size.
func drawLabel(img image.Image, text string) (image.Image, error) {
	face, err := loadFont()
	if err != nil {
		return nil, err
	}

	dc := gg.NewContextForImage(img)
	w := float64(dc.Width())
	h := float64(dc.Height())

	dc.SetRGBA(1, 1, 1, 0.85)
	dc.DrawRectangle(0, h-labelBand, w, labelBand)
	dc.Fill()

	dc.SetColor(color.Black)
	dc.DrawLine(0, h-labelBand, w, h-labelBand)
	dc.SetLineWidth(1)
	dc.Stroke()

	dc.SetFontFace(face)
	dc.DrawStringAnchored(text, w/2, h-labelBand/2, 0.5, 0.35)

	return dc.Image(), nil
}

func loadFont() (font.Face, error) {
	fontOnce.Do(func() {
		fontData, fontErr = truetype.Parse(goregular.TTF)
	})
	if fontErr != nil {
		return nil, fmt.Errorf("failed to parse embedded font: %w", fontErr)
	}

	return truetype.NewFace(fontData, &truetype.Options{
		Size: labelFontSize,
	}), nil
}
