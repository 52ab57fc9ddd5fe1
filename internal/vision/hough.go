package vision

import (
	"image"
	"math"
	"sort"
)

// detectCircles finds circular shapes with radii in [minR, maxR] using a
// gradient Hough transform, returning centers sorted top to bottom. Centers
// closer than minDist to an already accepted, stronger center are suppressed.
// The input is an imaging grayscale NRGBA image.
func detectCircles(gray *image.NRGBA, minR, maxR, minDist int) []image.Point {
	w := gray.Bounds().Dx()
	h := gray.Bounds().Dy()
	if w < 2*minR || h < 2*minR {
		return nil
	}

	at := func(x, y int) float64 {
		return float64(gray.Pix[y*gray.Stride+x*4])
	}

	// Accumulate votes along the gradient direction for each edge pixel.
	// Radii collapse into a single 2D accumulator; avatar circles are strong
	// enough that separating by radius is unnecessary.
	acc := make([]int, w*h)
	const edgeThreshold = 60.0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1) -
				at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1)
			gy := at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1) -
				at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1)
			mag := math.Hypot(gx, gy)
			if mag < edgeThreshold {
				continue
			}
			cos, sin := gx/mag, gy/mag
			for r := minR; r <= maxR; r += 3 {
				for _, dir := range [2]float64{1, -1} {
					cx := x + int(dir*cos*float64(r))
					cy := y + int(dir*sin*float64(r))
					if cx >= 0 && cx < w && cy >= 0 && cy < h {
						acc[cy*w+cx]++
					}
				}
			}
		}
	}

	// An avatar circle of radius r contributes on the order of 2*pi*r edge
	// pixels; require a healthy fraction of the smallest radius.
	minVotes := int(2 * math.Pi * float64(minR) * 0.4)

	type candidate struct {
		p     image.Point
		votes int
	}
	var candidates []candidate
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if v := acc[y*w+x]; v >= minVotes {
				candidates = append(candidates, candidate{image.Pt(x, y), v})
			}
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].votes > candidates[j].votes })

	var centers []image.Point
	for _, c := range candidates {
		tooClose := false
		for _, kept := range centers {
			dx, dy := c.p.X-kept.X, c.p.Y-kept.Y
			if dx*dx+dy*dy < minDist*minDist {
				tooClose = true
				break
			}
		}
		if !tooClose {
			centers = append(centers, c.p)
		}
	}

	sort.Slice(centers, func(i, j int) bool { return centers[i].Y < centers[j].Y })
	return centers
}
