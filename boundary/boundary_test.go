package boundary_test

import (
	"math"
	"testing"

	"github.com/trackside/telemetry-core/boundary"
	"github.com/trackside/telemetry-core/models"
)

// rectTrack builds left/right demarcation frames for a synthetic rectangular
// track with one corner at the equator/prime-meridian, wide enough that the small
// local-Cartesian approximation error stays well under 1e-3.
func rectTrack(n int, halfWidthDeg float64) (left, right []models.TelemetryFrame) {
	left = make([]models.TelemetryFrame, n)
	right = make([]models.TelemetryFrame, n)
	for i := 0; i < n; i++ {
		pct := float64(i) / float64(n)
		// Walk the perimeter of a unit square in lon/lat degrees.
		var lat, lon float64
		switch frac := pct * 4; {
		case frac < 1:
			lat, lon = 0, frac
		case frac < 2:
			lat, lon = frac-1, 1
		case frac < 3:
			lat, lon = 1, 1-(frac-2)
		default:
			lat, lon = 1-(frac-3), 0
		}
		left[i] = models.TelemetryFrame{SessionID: "demL", LapDistancePct: pct, Latitude: lat, Longitude: lon - halfWidthDeg}
		right[i] = models.TelemetryFrame{SessionID: "demR", LapDistancePct: pct, Latitude: lat, Longitude: lon + halfWidthDeg}
	}
	return left, right
}

func TestBuildBoundaryGridRoundTrip(t *testing.T) {
	const gridSize = 200
	left, right := rectTrack(1000, 0.001)
	b, err := boundary.BuildBoundary(1, "test", left, right, gridSize)
	if err != nil {
		t.Fatalf("build boundary: %v", err)
	}
	if b.GridSize() != gridSize {
		t.Fatalf("grid size = %d, want %d", b.GridSize(), gridSize)
	}

	for _, g := range []int{0, 50, 100, 150} {
		gp := b.GridDistancePct[g]
		lp := b.Left[g]
		lateral, _ := boundary.LateralPosition(&b, gp, lp.Lat, lp.Lon)
		if math.Abs(lateral-(-1)) > 1e-6 {
			t.Errorf("grid point %d: left boundary lateral = %v, want -1", g, lateral)
		}
		rp := b.Right[g]
		lateral, _ = boundary.LateralPosition(&b, gp, rp.Lat, rp.Lon)
		if math.Abs(lateral-1) > 1e-6 {
			t.Errorf("grid point %d: right boundary lateral = %v, want 1", g, lateral)
		}
	}
}

// S6: 1000 points walking the rectangle's centerline must all resolve to a
// lateral position of ~0, within 1e-3.
func TestCenterlineIsNearZero(t *testing.T) {
	const gridSize = 500
	left, right := rectTrack(1000, 0.002)
	b, err := boundary.BuildBoundary(1, "test", left, right, gridSize)
	if err != nil {
		t.Fatalf("build boundary: %v", err)
	}

	centerline, _ := rectTrack(1000, 0)
	for i, f := range centerline {
		lateral, _ := boundary.LateralPosition(&b, f.LapDistancePct, f.Latitude, f.Longitude)
		if math.Abs(lateral) > 1e-3 {
			t.Fatalf("centerline point %d: lateral = %v, want ~0", i, lateral)
		}
	}
}

func TestBuildBoundaryRejectsSparseCoverage(t *testing.T) {
	left, right := rectTrack(1000, 0.001)
	sparseLeft := left[:10]
	_, err := boundary.BuildBoundary(1, "test", sparseLeft, right, 200)
	if err != models.ErrInvalidBoundaryInput {
		t.Fatalf("expected ErrInvalidBoundaryInput, got %v", err)
	}
}

func TestLateralPositionColinearReturnsZero(t *testing.T) {
	b := models.TrackBoundary{
		GridDistancePct: []float64{0, 0.5},
		Left:            []models.LatLon{{Lat: 0, Lon: 0}, {Lat: 1, Lon: 1}},
		Right:           []models.LatLon{{Lat: 0, Lon: 0}, {Lat: 1, Lon: 1}},
	}
	lateral, offTrack := boundary.LateralPosition(&b, 0, 0, 0)
	if lateral != 0 || offTrack {
		t.Fatalf("colinear left/right should return (0,false), got (%v,%v)", lateral, offTrack)
	}
}

func TestLateralPositionFlagsOffTrackCandidate(t *testing.T) {
	left, right := rectTrack(1000, 0.001)
	b, err := boundary.BuildBoundary(1, "test", left, right, 200)
	if err != nil {
		t.Fatalf("build boundary: %v", err)
	}
	_, offTrack := boundary.LateralPosition(&b, 0, 0, 0.5)
	if !offTrack {
		t.Fatal("expected a point far outside the boundary to be flagged off-track")
	}
}
