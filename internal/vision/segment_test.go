package vision

import (
	"image"
	"image/color"
	"testing"

	"modq-go/internal/modq"
)

const (
	testPageWidth   = 1160
	separatorShade  = 230
	cardNoiseModulo = 180
)

// fillNoise paints a busy dark texture that no row of which passes the
// separator test.
func fillNoise(img *image.NRGBA, rect image.Rectangle) {
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			v := uint8((x*37 + y*91) % cardNoiseModulo)
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
}

func fillUniform(img *image.NRGBA, rect image.Rectangle, shade uint8) {
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: shade, G: shade, B: shade, A: 255})
		}
	}
}

// buildPage renders a synthetic full-page screenshot with the given card
// heights in the content region, separated by 16px light-gray strips.
func buildPage(layout modq.PageLayout, cardHeights []int) *image.NRGBA {
	const sepHeight = 16
	contentTop := layout.ContentTop()
	contentHeight := 0
	for i, h := range cardHeights {
		contentHeight += h
		if i < len(cardHeights)-1 {
			contentHeight += sepHeight
		}
	}
	page := image.NewNRGBA(image.Rect(0, 0, testPageWidth, contentTop+contentHeight))
	fillUniform(page, page.Bounds(), separatorShade)

	y := contentTop
	for _, h := range cardHeights {
		fillNoise(page, image.Rect(layout.SidebarWidth, y, testPageWidth, y+h))
		y += h + sepHeight
	}
	return page
}

func TestSegmentSeparatedCards(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	seg := NewSegmenter(cfg)

	heights := []int{300, 300, 300}
	cards, err := seg.Segment(buildPage(cfg.Layout, heights))
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(cards) != 3 {
		t.Fatalf("got %d cards, want 3", len(cards))
	}

	prevEnd := 0
	for i, c := range cards {
		if c.Index != i {
			t.Errorf("card %d: index %d", i, c.Index)
		}
		if c.StartY < prevEnd {
			t.Errorf("card %d overlaps previous: start %d before %d", i, c.StartY, prevEnd)
		}
		if h := c.EndY - c.StartY; h < 280 || h > 320 {
			t.Errorf("card %d: height %d outside expected range", i, h)
		}
		if c.Image == nil {
			t.Errorf("card %d: nil image", i)
		}
		prevEnd = c.EndY
	}
	if cards[0].StartY < cfg.Layout.ContentTop() {
		t.Errorf("first card starts at %d, above content top %d", cards[0].StartY, cfg.Layout.ContentTop())
	}
}

func TestSegmentDropsShortSpans(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	seg := NewSegmenter(cfg)

	// 60px is below the minimum card height and must be discarded.
	cards, err := seg.Segment(buildPage(cfg.Layout, []int{300, 60, 300}))
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(cards) != 2 {
		t.Fatalf("got %d cards, want 2", len(cards))
	}
}

func TestSegmentUniformPage(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	seg := NewSegmenter(cfg)

	page := image.NewNRGBA(image.Rect(0, 0, testPageWidth, cfg.Layout.ContentTop()+1000))
	fillUniform(page, page.Bounds(), separatorShade)

	cards, err := seg.Segment(page)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(cards) != 0 {
		t.Fatalf("uniform page produced %d cards, want 0", len(cards))
	}
}

func TestSegmentTooSmallPage(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	seg := NewSegmenter(cfg)

	page := image.NewNRGBA(image.Rect(0, 0, 200, 100))
	cards, err := seg.Segment(page)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if cards != nil {
		t.Fatalf("got %d cards from a page smaller than the chrome", len(cards))
	}
}

func TestSegmentNilPage(t *testing.T) {
	t.Parallel()

	seg := NewSegmenter(DefaultConfig())
	if _, err := seg.Segment(nil); err == nil {
		t.Fatal("expected error for nil page")
	}
}

func TestSegmentEqualBandsFallback(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	seg := NewSegmenter(cfg)

	// A flat mid-gray content region has no separator rows and no circular
	// edges, forcing the equal-bands fallback.
	page := image.NewNRGBA(image.Rect(0, 0, testPageWidth, cfg.Layout.ContentTop()+1000))
	fillUniform(page, page.Bounds(), 100)

	cards, err := seg.Segment(page)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(cards) != cfg.FallbackBands {
		t.Fatalf("got %d cards, want %d equal bands", len(cards), cfg.FallbackBands)
	}
	for i, c := range cards {
		if h := c.EndY - c.StartY; h != 200 {
			t.Errorf("band %d: height %d, want 200", i, h)
		}
	}
}

// fillDisc paints a filled circle, the synthetic stand-in for a profile
// avatar.
func fillDisc(img *image.NRGBA, cx, cy, r int, shade uint8) {
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= r*r {
				img.SetNRGBA(x, y, color.NRGBA{R: shade, G: shade, B: shade, A: 255})
			}
		}
	}
}

func TestDetectCircles(t *testing.T) {
	t.Parallel()

	// Two dark discs on a mid-gray field, well separated vertically.
	gray := image.NewNRGBA(image.Rect(0, 0, 800, 700))
	fillUniform(gray, gray.Bounds(), 120)
	fillDisc(gray, 200, 150, 44, 10)
	fillDisc(gray, 200, 450, 44, 10)

	centers := detectCircles(gray, 20, 50, 100)
	if len(centers) != 2 {
		t.Fatalf("got %d centers (%v), want 2", len(centers), centers)
	}

	wantY := []int{150, 450}
	for i, c := range centers {
		if c.X < 195 || c.X > 205 {
			t.Errorf("center %d: X = %d, want ~200", i, c.X)
		}
		if c.Y < wantY[i]-5 || c.Y > wantY[i]+5 {
			t.Errorf("center %d: Y = %d, want ~%d", i, c.Y, wantY[i])
		}
	}
}

func TestSegmentAvatarFallback(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	seg := NewSegmenter(cfg)

	// Mid-gray content with two avatar discs: no row qualifies as a
	// separator (mean below the light-gray band), so segmentation must fall
	// back to circle detection rather than equal bands.
	contentTop := cfg.Layout.ContentTop()
	page := image.NewNRGBA(image.Rect(0, 0, testPageWidth, contentTop+700))
	fillUniform(page, page.Bounds(), 120)
	centerY := []int{contentTop + 150, contentTop + 450}
	for _, cy := range centerY {
		fillDisc(page, cfg.Layout.SidebarWidth+200, cy, 44, 10)
	}

	cards, err := seg.Segment(page)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	// The equal-bands fallback would cut 5 bands here; two cards proves the
	// avatar path produced the spans.
	if len(cards) != 2 {
		t.Fatalf("got %d cards, want 2 (one per avatar)", len(cards))
	}
	for i, c := range cards {
		if c.StartY > centerY[i] || c.EndY < centerY[i] {
			t.Errorf("card %d: span [%d,%d] does not bracket avatar center %d",
				i, c.StartY, c.EndY, centerY[i])
		}
		if c.Image == nil {
			t.Errorf("card %d: nil image", i)
		}
	}
	// The avatar span starts 50px above the detected center.
	if got, want := cards[0].StartY, centerY[0]-50; got < want-5 || got > want+5 {
		t.Errorf("card 0 starts at %d, want ~%d", got, want)
	}
}

func TestMergeRows(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		rows   []int
		maxGap int
		want   []span
	}{
		{
			name: "empty",
		},
		{
			name:   "single run",
			rows:   []int{10, 11, 12, 13},
			maxGap: 10,
			want:   []span{{10, 13}},
		},
		{
			name:   "split on gap",
			rows:   []int{10, 11, 40, 41},
			maxGap: 10,
			want:   []span{{10, 11}, {40, 41}},
		},
		{
			name:   "gap at limit merges",
			rows:   []int{10, 20},
			maxGap: 10,
			want:   []span{{10, 20}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := mergeRows(tt.rows, tt.maxGap)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("region %d: got %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}
