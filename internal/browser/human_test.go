package browser

import (
	"context"
	"testing"
	"time"

	"modq-go/internal/modq"
)

func TestWaitRespectsContext(t *testing.T) {
	t.Parallel()

	h := NewHuman(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := h.Wait(ctx, time.Hour, 2*time.Hour)
	if err == nil {
		t.Fatal("expected context error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Wait blocked %v after cancellation", elapsed)
	}
}

func TestWaitBounds(t *testing.T) {
	t.Parallel()

	h := NewHuman(1)
	start := time.Now()
	if err := h.Wait(context.Background(), 10*time.Millisecond, 30*time.Millisecond); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Fatalf("Wait returned after %v, before minimum", elapsed)
	}
}

func TestGaussClamped(t *testing.T) {
	t.Parallel()

	h := NewHuman(1)
	floor := 30 * time.Millisecond
	cap := 200 * time.Millisecond
	for i := 0; i < 1000; i++ {
		d := h.Gauss(100*time.Millisecond, 80*time.Millisecond, floor, cap)
		if d < floor || d > cap {
			t.Fatalf("Gauss returned %v outside [%v, %v]", d, floor, cap)
		}
	}
}

func TestJitterPoint(t *testing.T) {
	t.Parallel()

	h := NewHuman(1)
	p := modq.ViewportPoint{X: 500, Y: 300}
	for i := 0; i < 1000; i++ {
		j := h.JitterPoint(p, 3)
		if j.X < 497 || j.X > 503 || j.Y < 297 || j.Y > 303 {
			t.Fatalf("jittered point %v outside radius", j)
		}
	}
	if j := h.JitterPoint(p, 0); j != p {
		t.Fatalf("zero radius moved point to %v", j)
	}
}

func TestMousePath(t *testing.T) {
	t.Parallel()

	h := NewHuman(1)
	a := modq.ViewportPoint{X: 10, Y: 10}
	b := modq.ViewportPoint{X: 600, Y: 400}

	path := h.MousePath(a, b, 25)
	if len(path) != 25 {
		t.Fatalf("got %d points, want 25", len(path))
	}
	if path[len(path)-1] != b {
		t.Fatalf("path ends at %v, want %v", path[len(path)-1], b)
	}

	// The curve must stay in the viewport's vicinity, not bow wildly.
	for _, p := range path {
		if p.X < -200 || p.X > 900 || p.Y < -200 || p.Y > 700 {
			t.Fatalf("path point %v far outside travel box", p)
		}
	}
}

func TestMousePathDegenerate(t *testing.T) {
	t.Parallel()

	h := NewHuman(1)
	p := modq.ViewportPoint{X: 50, Y: 50}
	path := h.MousePath(p, p, 25)
	if len(path) != 1 || path[0] != p {
		t.Fatalf("same-point path: %v", path)
	}
}

func TestScrollChunksSum(t *testing.T) {
	t.Parallel()

	h := NewHuman(1)
	tests := []int{800, 37, -800, 0, 1}
	for _, delta := range tests {
		chunks := h.ScrollChunks(delta)
		sum := 0
		for _, c := range chunks {
			sum += c
			if delta > 0 && c <= 0 || delta < 0 && c >= 0 {
				t.Fatalf("delta %d: chunk %d has wrong sign", delta, c)
			}
		}
		if sum != delta {
			t.Fatalf("delta %d: chunks sum to %d", delta, sum)
		}
		if delta == 0 && chunks != nil {
			t.Fatalf("zero delta produced chunks %v", chunks)
		}
	}
}
