// Package heatmap derives an illustrative confidence grid from a scalar
// manipulation score. The grid is decorative: providers do not report
// where in the frame they found evidence.
package heatmap

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

const (
	DefaultRows = 24
	DefaultCols = 32

	minRadius   = 5
	radiusRange = 10
)

// Grid is a rows x cols matrix of intensities in [0,1]
type Grid [][]float64

// Rows returns the number of rows
func (g Grid) Rows() int { return len(g) }

// Cols returns the number of columns
func (g Grid) Cols() int {
	if len(g) == 0 {
		return 0
	}
	return len(g[0])
}

// HotspotCount is the number of hotspots painted for a score
func HotspotCount(score float64) int {
	return max(1, int(math.Round(clamp(score)*10)))
}

// Synthesizer paints hotspot grids. It is safe for concurrent use.
type Synthesizer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSynthesizer returns a synthesizer whose output is fully determined by seed
func NewSynthesizer(seed uint64) *Synthesizer {
	return &Synthesizer{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewRandomSynthesizer returns a synthesizer seeded from the clock
func NewRandomSynthesizer() *Synthesizer {
	return NewSynthesizer(uint64(time.Now().UnixNano()))
}

// Synthesize paints max(1, round(score*10)) hotspots on a rows x cols grid.
// Each hotspot has a random center and a radius in [5,15); its intensity
// falls off linearly from 0.3+0.7*score at the center, and overlapping
// hotspots keep the larger value per cell.
func (s *Synthesizer) Synthesize(score float64, rows, cols int) Grid {
	if rows <= 0 || cols <= 0 {
		return Grid{}
	}
	score = clamp(score)

	grid := make(Grid, rows)
	for y := range grid {
		grid[y] = make([]float64, cols)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	intensity := 0.3 + score*0.7
	for i := 0; i < HotspotCount(score); i++ {
		cx := s.rng.IntN(cols)
		cy := s.rng.IntN(rows)
		radius := float64(minRadius + s.rng.IntN(radiusRange))

		r := int(radius)
		for y := max(0, cy-r); y < min(rows, cy+r); y++ {
			for x := max(0, cx-r); x < min(cols, cx+r); x++ {
				distance := math.Hypot(float64(x-cx), float64(y-cy))
				if distance >= radius {
					continue
				}
				value := intensity * (1 - distance/radius)
				if value > grid[y][x] {
					grid[y][x] = value
				}
			}
		}
	}

	return grid
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
