package vision

import (
	"image"
	"math"

	"github.com/disintegration/imaging"

	"modq-go/internal/modq"
)

// Config tunes card segmentation. The separator thresholds describe the
// moderated page's light theme, where cards sit on a near-uniform light-gray
// background strip (~#E4E6EB).
type Config struct {
	Layout modq.PageLayout

	// MinCardHeight filters out slivers, typically partial cards at the very
	// top or bottom of the render.
	MinCardHeight int

	// MaxCardHeight bounds the spans derived by the avatar fallback. The
	// separator path accepts taller cards.
	MaxCardHeight int

	// A row is a separator when its grayscale standard deviation is below
	// SeparatorMaxStdDev and its mean is inside the light-gray band.
	SeparatorMaxStdDev float64
	SeparatorMinMean   float64
	SeparatorMaxMean   float64

	// Consecutive separator rows closer than MergeGap merge into one region;
	// regions thinner than MinThickness are discarded as noise.
	SeparatorMergeGap     int
	SeparatorMinThickness int

	// FallbackBands is the number of equal-height bands cut as a last resort.
	FallbackBands int
}

// DefaultConfig returns the segmentation parameters for the desktop light
// theme.
func DefaultConfig() Config {
	return Config{
		Layout:                modq.DefaultLayout,
		MinCardHeight:         100,
		MaxCardHeight:         500,
		SeparatorMaxStdDev:    15,
		SeparatorMinMean:      200,
		SeparatorMaxMean:      245,
		SeparatorMergeGap:     10,
		SeparatorMinThickness: 5,
		FallbackBands:         5,
	}
}

// uniformCoverage is the separator-row fraction above which the content
// region is treated as empty: an all-background region means no cards, not a
// degenerate segmentation.
const uniformCoverage = 0.95

type span struct{ start, end int }

// Segmenter splits a full-page render into card crops using pixel-level
// heuristics.
type Segmenter struct {
	cfg Config
}

func NewSegmenter(cfg Config) *Segmenter { return &Segmenter{cfg: cfg} }

// Segment crops away the fixed page chrome, locates the near-uniform
// horizontal strips separating cards, and returns the spans between them as
// cards ordered top to bottom. When the separator heuristic degrades it falls
// back to avatar-circle detection and finally to equal-height bands; each
// fallback is strictly lower confidence and exists so the pipeline degrades
// rather than halts. An empty or uniform content region yields zero cards.
func (s *Segmenter) Segment(page image.Image) ([]modq.Card, error) {
	if page == nil {
		return nil, errNilImage
	}
	b := page.Bounds()
	contentTop := s.cfg.Layout.ContentTop()
	contentLeft := s.cfg.Layout.SidebarWidth
	if b.Dx() <= contentLeft || b.Dy() <= contentTop {
		return nil, nil
	}

	content := imaging.Crop(page, image.Rect(b.Min.X+contentLeft, b.Min.Y+contentTop, b.Max.X, b.Max.Y))
	gray := imaging.Grayscale(content)

	boundaries, ok := s.detectBoundaries(gray)
	if !ok {
		return nil, nil
	}

	var cards []modq.Card
	for _, bd := range boundaries {
		if bd.end-bd.start < s.cfg.MinCardHeight {
			continue
		}
		crop := imaging.Crop(content, image.Rect(0, bd.start, content.Bounds().Dx(), bd.end))
		cards = append(cards, modq.Card{
			Index:  len(cards),
			StartY: bd.start + contentTop,
			EndY:   bd.end + contentTop,
			Image:  crop,
		})
	}
	return cards, nil
}

// detectBoundaries returns the candidate card spans within the content
// region, in ascending order. ok is false when the region is empty or
// uniform.
func (s *Segmenter) detectBoundaries(gray *image.NRGBA) ([]span, bool) {
	h := gray.Bounds().Dy()
	w := gray.Bounds().Dx()
	if h == 0 || w == 0 {
		return nil, false
	}

	var sepRows []int
	for y := 0; y < h; y++ {
		mean, std := rowStats(gray, y, w)
		if std < s.cfg.SeparatorMaxStdDev && mean > s.cfg.SeparatorMinMean && mean < s.cfg.SeparatorMaxMean {
			sepRows = append(sepRows, y)
		}
	}

	if float64(len(sepRows)) >= uniformCoverage*float64(h) {
		return nil, false
	}

	regions := mergeRows(sepRows, s.cfg.SeparatorMergeGap)
	var accepted []span
	for _, r := range regions {
		if r.end-r.start >= s.cfg.SeparatorMinThickness {
			accepted = append(accepted, r)
		}
	}

	if len(accepted) < 2 {
		if spans := s.detectByAvatars(gray); len(spans) > 0 {
			return spans, true
		}
		return s.divideEvenly(h), true
	}

	var boundaries []span
	if accepted[0].start > s.cfg.MinCardHeight {
		boundaries = append(boundaries, span{0, accepted[0].start})
	}
	for i := 0; i < len(accepted)-1; i++ {
		start := accepted[i].end + 1
		end := accepted[i+1].start
		if end-start >= s.cfg.MinCardHeight {
			boundaries = append(boundaries, span{start, end})
		}
	}
	if last := accepted[len(accepted)-1].end; h-last > s.cfg.MinCardHeight {
		boundaries = append(boundaries, span{last + 1, h})
	}
	return boundaries, true
}

// detectByAvatars derives card spans from the vertical positions of circular
// avatar shapes, for pages where the separator strips are absent or too thin
// to detect.
func (s *Segmenter) detectByAvatars(gray *image.NRGBA) []span {
	centers := detectCircles(gray, 20, 50, 100)
	if len(centers) == 0 {
		return nil
	}

	h := gray.Bounds().Dy()
	var spans []span
	for i, c := range centers {
		start := c.Y - 50
		if start < 0 {
			start = 0
		}
		var end int
		if i < len(centers)-1 {
			end = centers[i+1].Y - 20
			if end < start+s.cfg.MinCardHeight {
				end = start + s.cfg.MinCardHeight
			}
		} else {
			end = start + s.cfg.MaxCardHeight
		}
		if end > h {
			end = h
		}
		if end > start {
			spans = append(spans, span{start, end})
		}
	}
	return spans
}

func (s *Segmenter) divideEvenly(h int) []span {
	n := s.cfg.FallbackBands
	if n <= 0 || h < n {
		return nil
	}
	band := h / n
	spans := make([]span, 0, n)
	for i := 0; i < n; i++ {
		spans = append(spans, span{i * band, (i + 1) * band})
	}
	return spans
}

// rowStats computes mean and standard deviation of grayscale intensity for
// one row of an imaging grayscale image (all channels equal, read R).
func rowStats(gray *image.NRGBA, y, w int) (mean, std float64) {
	base := y * gray.Stride
	var sum, sumSq float64
	for x := 0; x < w; x++ {
		v := float64(gray.Pix[base+x*4])
		sum += v
		sumSq += v * v
	}
	n := float64(w)
	mean = sum / n
	variance := sumSq/n - mean*mean
	if variance > 0 {
		std = math.Sqrt(variance)
	}
	return mean, std
}

// mergeRows groups consecutive separator rows into regions, splitting where
// the gap between rows exceeds maxGap.
func mergeRows(rows []int, maxGap int) []span {
	if len(rows) == 0 {
		return nil
	}
	var regions []span
	start, prev := rows[0], rows[0]
	for _, r := range rows[1:] {
		if r-prev > maxGap {
			regions = append(regions, span{start, prev})
			start = r
		}
		prev = r
	}
	regions = append(regions, span{start, prev})
	return regions
}
