// Package browser drives a Chrome instance through chromedp and simulates a
// human operator's input rhythm: curved mouse paths, jittered click points,
// irregular scrolling and typing cadence.
package browser

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"modq-go/internal/modq"
)

// Human generates randomized timings and pointer paths. A nil seed source
// means a time-based seed; tests pass a fixed seed for reproducibility.
type Human struct {
	mu  sync.Mutex
	rng *rand.Rand
}

var _ modq.Waiter = (*Human)(nil)

func NewHuman(seed int64) *Human {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Human{rng: rand.New(rand.NewSource(seed))}
}

// Wait sleeps a uniform random duration in [min, max], returning early if ctx
// is cancelled.
func (h *Human) Wait(ctx context.Context, min, max time.Duration) error {
	d := min
	if max > min {
		h.mu.Lock()
		d = min + time.Duration(h.rng.Int63n(int64(max-min)))
		h.mu.Unlock()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Gauss draws a normally distributed duration, clamped to [floor, cap].
func (h *Human) Gauss(mean, stddev, floor, cap time.Duration) time.Duration {
	h.mu.Lock()
	d := time.Duration(float64(mean) + h.rng.NormFloat64()*float64(stddev))
	h.mu.Unlock()
	if d < floor {
		return floor
	}
	if d > cap {
		return cap
	}
	return d
}

// TypingDelay returns the pause before the next keystroke.
func (h *Human) TypingDelay() time.Duration {
	return h.Gauss(90*time.Millisecond, 40*time.Millisecond, 30*time.Millisecond, 350*time.Millisecond)
}

// JitterPoint displaces p by up to radius pixels on each axis. Repeated
// clicks on the same button never land on the same pixel twice.
func (h *Human) JitterPoint(p modq.ViewportPoint, radius int) modq.ViewportPoint {
	if radius <= 0 {
		return p
	}
	h.mu.Lock()
	dx := h.rng.Intn(2*radius+1) - radius
	dy := h.rng.Intn(2*radius+1) - radius
	h.mu.Unlock()
	return modq.ViewportPoint{X: p.X + dx, Y: p.Y + dy}
}

// MousePath returns intermediate points for a pointer move from a to b: a
// quadratic Bezier curve whose control point is offset perpendicular to the
// straight line, sampled with ease-in-out spacing so the pointer accelerates
// and then settles.
func (h *Human) MousePath(a, b modq.ViewportPoint, steps int) []modq.ViewportPoint {
	if steps < 2 {
		return []modq.ViewportPoint{b}
	}

	dx := float64(b.X - a.X)
	dy := float64(b.Y - a.Y)
	dist := math.Hypot(dx, dy)
	if dist < 1 {
		return []modq.ViewportPoint{b}
	}

	// Perpendicular offset up to a quarter of the travel distance.
	h.mu.Lock()
	offset := (h.rng.Float64() - 0.5) * dist / 2
	h.mu.Unlock()
	cx := float64(a.X) + dx/2 - dy/dist*offset
	cy := float64(a.Y) + dy/2 + dx/dist*offset

	path := make([]modq.ViewportPoint, 0, steps)
	for i := 1; i <= steps; i++ {
		t := easeInOut(float64(i) / float64(steps))
		mt := 1 - t
		x := mt*mt*float64(a.X) + 2*mt*t*cx + t*t*float64(b.X)
		y := mt*mt*float64(a.Y) + 2*mt*t*cy + t*t*float64(b.Y)
		path = append(path, modq.ViewportPoint{X: int(math.Round(x)), Y: int(math.Round(y))})
	}
	path[len(path)-1] = b
	return path
}

// ScrollChunks splits a scroll distance into wheel-sized increments of
// varying magnitude. The chunks sum exactly to delta.
func (h *Human) ScrollChunks(delta int) []int {
	if delta == 0 {
		return nil
	}
	sign := 1
	if delta < 0 {
		sign = -1
		delta = -delta
	}

	var chunks []int
	for delta > 0 {
		h.mu.Lock()
		step := 90 + h.rng.Intn(80)
		h.mu.Unlock()
		if step > delta {
			step = delta
		}
		chunks = append(chunks, sign*step)
		delta -= step
	}
	return chunks
}

// ShouldPause reports a rare longer hesitation, roughly once per twenty
// actions, mimicking an operator glancing away.
func (h *Human) ShouldPause() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rng.Intn(20) == 0
}

func easeInOut(t float64) float64 {
	if t < 0.5 {
		return 2 * t * t
	}
	return 1 - math.Pow(-2*t+2, 2)/2
}
