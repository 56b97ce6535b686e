package blur

import (
	"fmt"
	"image"

	"github.com/fogleman/gg"

	"github.com/nvr-ai/go-faceblur/models/postprocess"
)

// Annotate outlines each result on img and writes its label and score above it.
//
// Arguments:
//   - img: The image to draw on. It is modified in place.
//   - results: The detections to draw.
func Annotate(img *image.RGBA, results []postprocess.Result) {
	if len(results) == 0 {
		return
	}

	dc := gg.NewContextForRGBA(img)
	dc.SetLineWidth(2)

	for _, r := range results {
		rect := r.Box.Rectangle()
		if rect.Empty() {
			continue
		}

		dc.SetRGB(0, 1, 0)
		dc.DrawRectangle(float64(rect.Min.X), float64(rect.Min.Y), float64(rect.Dx()), float64(rect.Dy()))
		dc.Stroke()

		label := r.Label
		if label == "" {
			label = "face"
		}
		y := float64(rect.Min.Y) - 4
		if y < 12 {
			y = float64(rect.Max.Y) + 12
		}
		dc.DrawString(fmt.Sprintf("%s %.2f", label, r.Score), float64(rect.Min.X), y)
	}
}
