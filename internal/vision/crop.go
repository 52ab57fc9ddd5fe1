package vision

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"modq-go/internal/modq"
)

// trimPadding is added around the union of text boxes when cropping a card
// down to its textual content.
const trimPadding = 20

// TrimToText crops a card image to the union of its recognized text boxes,
// skipping spans for which exclude returns true, plus a small margin. With no
// usable spans the original image is returned unchanged.
func TrimToText(img image.Image, spans []modq.TextSpan, exclude func(modq.TextSpan) bool) image.Image {
	var union image.Rectangle
	found := false
	for _, sp := range spans {
		if len(sp.Text) < 2 {
			continue
		}
		if exclude != nil && exclude(sp) {
			continue
		}
		if !found {
			union = sp.Box
			found = true
		} else {
			union = union.Union(sp.Box)
		}
	}
	if !found {
		return img
	}

	b := img.Bounds()
	rect := image.Rect(
		max(b.Min.X, union.Min.X-trimPadding),
		max(b.Min.Y, union.Min.Y-trimPadding),
		min(b.Max.X, union.Max.X+trimPadding),
		min(b.Max.Y, union.Max.Y+trimPadding),
	)
	if rect.Empty() {
		return img
	}
	return imaging.Crop(img, rect)
}

// Modal detection thresholds. A profile preview renders as a large white
// rectangle roughly centered over the dimmed page.
const (
	modalMinLight = 200.0
	modalMinRows  = 50
	modalMinCols  = 100
	modalPadding  = 5
)

// ExtractModal locates the bright modal dialog in a viewport screenshot and
// returns its crop. ok is false when no plausible modal region is found, in
// which case the caller should treat the preview as unavailable.
func ExtractModal(viewport image.Image) (image.Image, bool) {
	if viewport == nil {
		return nil, false
	}
	gray := imaging.Grayscale(viewport)
	w := gray.Bounds().Dx()
	h := gray.Bounds().Dy()
	if w == 0 || h == 0 {
		return nil, false
	}

	// Find the vertical extent first, sampling only the middle third of each
	// row so the dimmed page edges do not drag the mean down.
	x0, x1 := w/3, 2*w/3
	top, bottom := -1, -1
	for y := 0; y < h; y++ {
		var sum float64
		for x := x0; x < x1; x++ {
			sum += float64(gray.Pix[y*gray.Stride+x*4])
		}
		if sum/float64(x1-x0) > modalMinLight {
			if top < 0 {
				top = y
			}
			bottom = y
		}
	}
	if top < 0 || bottom-top < modalMinRows {
		return nil, false
	}

	left, right := -1, -1
	for x := 0; x < w; x++ {
		var sum float64
		for y := top; y <= bottom; y++ {
			sum += float64(gray.Pix[y*gray.Stride+x*4])
		}
		if sum/float64(bottom-top+1) > modalMinLight {
			if left < 0 {
				left = x
			}
			right = x
		}
	}
	if left < 0 || right-left < modalMinCols {
		return nil, false
	}

	rect := image.Rect(
		max(0, left-modalPadding),
		max(0, top-modalPadding),
		min(w, right+modalPadding),
		min(h, bottom+modalPadding),
	)
	return imaging.Crop(viewport, rect), true
}

// MarkClick returns a copy of the image with a red cross and circle drawn at
// the given viewport point, for debug inspection of click placement.
func MarkClick(img image.Image, p modq.ViewportPoint) image.Image {
	out := imaging.Clone(img)
	red := color.NRGBA{R: 220, A: 255}
	const arm = 30

	set := func(x, y int) {
		if image.Pt(x, y).In(out.Bounds()) {
			out.SetNRGBA(x, y, red)
		}
	}
	for d := -arm; d <= arm; d++ {
		set(p.X+d, p.Y)
		set(p.X, p.Y+d)
	}
	// Parametric circle, dense enough at r=30 to appear solid.
	for i := 0; i < 360; i += 2 {
		rad := float64(i) * math.Pi / 180
		set(p.X+int(30*math.Cos(rad)), p.Y+int(30*math.Sin(rad)))
	}
	return out
}
