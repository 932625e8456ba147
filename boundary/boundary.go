// Package boundary builds a gridded left/right track boundary from two
// demarcation laps and computes signed lateral position for a query point
// against that boundary.
package boundary

import (
	"math"
	"sort"

	"github.com/trackside/telemetry-core/models"
)

// minCoverageFraction is the fraction of [0,1) a demarcation lap must span
// (first frame to last frame, wrap-normalized) to be usable.
const minCoverageFraction = 0.95

// offTrackWidthMultiple flags a query point as an off-track candidate once
// its projected offset exceeds this many half-track-widths from center
// (|lateral| > offTrackWidthMultiple), or its perpendicular distance from
// the left->right segment exceeds this many full track widths.
const offTrackWidthMultiple = 5.0

// BuildBoundary resamples two demarcation laps (left-hugging, right-hugging)
// onto a common grid of gridSize points uniformly spaced over normalized
// lap distance. Each source lap must cover at least gridSize/2 frames and
// at least 95% of the lap; otherwise it returns ErrInvalidBoundaryInput.
func BuildBoundary(trackID int32, trackConfig string, left, right []models.TelemetryFrame, gridSize int) (models.TrackBoundary, error) {
	if gridSize <= 0 {
		return models.TrackBoundary{}, models.ErrInvalidBoundaryInput
	}
	leftPts, err := resample(left, gridSize)
	if err != nil {
		return models.TrackBoundary{}, err
	}
	rightPts, err := resample(right, gridSize)
	if err != nil {
		return models.TrackBoundary{}, err
	}

	grid := make([]float64, gridSize)
	for g := 0; g < gridSize; g++ {
		grid[g] = float64(g) / float64(gridSize)
	}

	return models.TrackBoundary{
		TrackID:           trackID,
		TrackConfig:       trackConfig,
		GridDistancePct:   grid,
		Left:              leftPts,
		Right:             rightPts,
		LeftSourceFrames:  len(left),
		RightSourceFrames: len(right),
	}, nil
}

func resample(frames []models.TelemetryFrame, gridSize int) ([]models.LatLon, error) {
	if err := validateCoverage(frames, gridSize); err != nil {
		return nil, err
	}

	n := len(frames)
	// cum[i] is the unwrapped cumulative distance of frames[i], starting
	// from frames[0]'s own (possibly non-zero) distance so comparisons
	// against absolute grid targets stay meaningful. A synthetic closing
	// point is appended at cum[n] = cum[0]+1.0, positioned back at
	// frames[0], so the final gap (the 5% or less of the lap the source
	// doesn't cover) resolves by wrapping into the start.
	cum := make([]float64, n+1)
	pos := make([]models.LatLon, n+1)
	cum[0] = frames[0].LapDistancePct
	pos[0] = models.LatLon{Lat: frames[0].Latitude, Lon: frames[0].Longitude}
	for i := 1; i < n; i++ {
		cum[i] = cum[i-1] + models.WrapDelta(frames[i-1].LapDistancePct, frames[i].LapDistancePct, 1.0)
		pos[i] = models.LatLon{Lat: frames[i].Latitude, Lon: frames[i].Longitude}
	}
	cum[n] = cum[0] + 1.0
	pos[n] = pos[0]

	out := make([]models.LatLon, gridSize)
	for g := 0; g < gridSize; g++ {
		target := float64(g) / float64(gridSize)
		if target < cum[0] {
			target += 1.0
		}
		idx := sort.Search(len(cum), func(i int) bool { return cum[i] > target }) - 1
		if idx < 0 {
			idx = 0
		}
		if idx > n-1 {
			idx = n - 1
		}
		span := cum[idx+1] - cum[idx]
		t := 0.0
		if span > 0 {
			t = (target - cum[idx]) / span
		}
		out[g] = models.LatLon{
			Lat: lerp(pos[idx].Lat, pos[idx+1].Lat, t),
			Lon: lerp(pos[idx].Lon, pos[idx+1].Lon, t),
		}
	}
	return out, nil
}

func validateCoverage(frames []models.TelemetryFrame, gridSize int) error {
	if len(frames) < gridSize/2 {
		return models.ErrInvalidBoundaryInput
	}
	span := models.WrapDelta(frames[0].LapDistancePct, frames[len(frames)-1].LapDistancePct, 1.0)
	if span < minCoverageFraction {
		return models.ErrInvalidBoundaryInput
	}
	return nil
}

func lerp(a, b, t float64) float64 { return a + t*(b-a) }

// LateralPosition computes the signed lateral offset of a query point
// (lat, lon) relative to the boundary at normalized lap distance g: -1 at
// the left edge, +1 at the right edge. The second return value reports
// whether the point is far enough outside the boundary to be flagged an
// off-track candidate (see offTrackWidthMultiple).
func LateralPosition(b *models.TrackBoundary, g, lat, lon float64) (float64, bool) {
	n := b.GridSize()
	if n == 0 {
		return 0, false
	}
	g = math.Mod(g, 1.0)
	if g < 0 {
		g += 1.0
	}

	i := sort.Search(n, func(i int) bool { return b.GridDistancePct[i] > g }) - 1
	if i < 0 {
		i = n - 1
	}
	j := (i + 1) % n

	segStart := b.GridDistancePct[i]
	segEnd := b.GridDistancePct[j]
	span := models.WrapDelta(segStart, segEnd, 1.0)
	t := 0.0
	if span > 0 {
		t = models.WrapDelta(segStart, g, 1.0) / span
	}

	left := models.LatLon{Lat: lerp(b.Left[i].Lat, b.Left[j].Lat, t), Lon: lerp(b.Left[i].Lon, b.Left[j].Lon, t)}
	right := models.LatLon{Lat: lerp(b.Right[i].Lat, b.Right[j].Lat, t), Lon: lerp(b.Right[i].Lon, b.Right[j].Lon, t)}

	return projectLateral(left, right, models.LatLon{Lat: lat, Lon: lon})
}

// projectLateral projects query onto the segment left->right using a
// local Cartesian approximation (lon*cos(lat), lat) referenced to the
// segment's midpoint latitude.
func projectLateral(left, right, query models.LatLon) (float64, bool) {
	refLat := (left.Lat + right.Lat) / 2
	scale := math.Cos(refLat * math.Pi / 180)
	toXY := func(p models.LatLon) (float64, float64) { return p.Lon * scale, p.Lat }

	lx, ly := toXY(left)
	rx, ry := toXY(right)
	qx, qy := toXY(query)

	dx, dy := rx-lx, ry-ly
	denom := dx*dx + dy*dy
	if denom == 0 {
		return 0, false
	}
	t := ((qx-lx)*dx + (qy-ly)*dy) / denom
	lateral := 2*t - 1

	trackWidth := math.Sqrt(denom)
	perpDist := math.Abs((qx-lx)*dy-(qy-ly)*dx) / trackWidth
	offTrack := perpDist > offTrackWidthMultiple*trackWidth || math.Abs(lateral) > offTrackWidthMultiple
	return lateral, offTrack
}

// AugmentFrame returns f with its lateral position computed against b.
func AugmentFrame(b *models.TrackBoundary, f models.TelemetryFrame) models.AugmentedTelemetryFrame {
	lateral, offTrack := LateralPosition(b, f.LapDistancePct, f.Latitude, f.Longitude)
	return models.AugmentedTelemetryFrame{
		TelemetryFrame:    f,
		LateralPosition:   lateral,
		OffTrackCandidate: offTrack,
	}
}

// AugmentLap computes lateral positions for every frame in frames against
// b in one pass; the vectorized and per-frame (AugmentFrame) forms must
// agree within 1e-6 since they share the same projection code.
func AugmentLap(b *models.TrackBoundary, frames []models.TelemetryFrame) []models.AugmentedTelemetryFrame {
	out := make([]models.AugmentedTelemetryFrame, len(frames))
	for i, f := range frames {
		out[i] = AugmentFrame(b, f)
	}
	return out
}
