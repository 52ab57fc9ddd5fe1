package modq

// The pipeline works in three pixel coordinate spaces:
//
//   card-local  — relative to one segmented card crop (OCR output lives here)
//   page        — relative to the full rendered page
//   viewport    — relative to the currently visible window
//
// Each space gets its own type so crossing spaces requires an explicit
// translation. The original implementation mixed these ad hoc and clicked the
// wrong element more than once.

// CardPoint is a pixel position inside a single card crop.
type CardPoint struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// PagePoint is a pixel position in the full rendered page.
type PagePoint struct {
	X int
	Y int
}

// ViewportPoint is a pixel position in the visible window.
type ViewportPoint struct {
	X int
	Y int
}

// PageLayout holds the fixed chrome offsets of the moderated page. These are
// properties of the external page's layout, not tunables: the left navigation
// sidebar and the header plus filter bar above the request list.
type PageLayout struct {
	SidebarWidth int
	HeaderHeight int
	FilterHeight int
}

// DefaultLayout matches the moderated page's desktop light theme.
var DefaultLayout = PageLayout{
	SidebarWidth: 360,
	HeaderHeight: 56,
	FilterHeight: 220,
}

// ContentTop returns the page Y where the request list begins.
func (l PageLayout) ContentTop() int { return l.HeaderHeight + l.FilterHeight }

// ToPage converts a card-local point to a page point. The segmenter always
// crops at exactly SidebarWidth from the left and never crops inside a card
// horizontally, so the conversion is exact: add the sidebar width to X and the
// card's page-space top to Y.
func (l PageLayout) ToPage(card Card, p CardPoint) PagePoint {
	return PagePoint{
		X: p.X + l.SidebarWidth,
		Y: p.Y + card.StartY,
	}
}

// ToViewport converts a page point to a viewport point given the realized
// scroll offset. Callers must pass the scroll position re-read from the
// renderer after scrolling, not the requested one: the browser clamps scroll
// requests past the end of the page, and clicking with the requested offset
// lands on the wrong element.
func ToViewport(p PagePoint, scrollY int) ViewportPoint {
	return ViewportPoint{X: p.X, Y: p.Y - scrollY}
}
