package panning

import (
	"math"
	"testing"

	"github.com/san-kum/dynrenderer/internal/objectmodel"
)

func degToRad(d float64) float64 { return d * math.Pi / 180 }

func TestVBAPExactOnSpeakerGivesUnityGain(t *testing.T) {
	array := RegularPolygonArray([]float64{degToRad(-30), degToRad(30), degToRad(90), degToRad(180), degToRad(-90)})
	calc, err := NewVBAPCalculator(array)
	if err != nil {
		t.Fatalf("NewVBAPCalculator: %v", err)
	}
	for i, pos := range array.Positions {
		gains := calc.CalculateGains(pos)
		if got := gains[i]; math.Abs(got-1) > 1e-9 {
			t.Fatalf("speaker %d exact-position gain = %v, want 1", i, got)
		}
		for j, g := range gains {
			if j != i && g > 1e-9 {
				t.Fatalf("speaker %d exact-position leaked gain %v onto speaker %d", i, g, j)
			}
		}
	}
}

func TestVBAPCentroidBetweenTwoSpeakersIsEqual(t *testing.T) {
	array := RegularPolygonArray([]float64{degToRad(-30), degToRad(30)})
	calc, err := NewVBAPCalculator(array)
	if err != nil {
		t.Fatalf("NewVBAPCalculator: %v", err)
	}
	mid := objectmodel.FromSpherical(0, 0)
	gains := calc.CalculateGains(mid)
	if math.Abs(gains[0]-gains[1]) > 1e-6 {
		t.Fatalf("centroid gains not equal: %v vs %v", gains[0], gains[1])
	}
	if gains[0] <= 0 {
		t.Fatalf("centroid gains should be positive, got %v", gains[0])
	}
}

func TestVBAPOutsideArrayIsSilent(t *testing.T) {
	array := RegularPolygonArray([]float64{degToRad(-30), degToRad(30)})
	calc, err := NewVBAPCalculator(array)
	if err != nil {
		t.Fatalf("NewVBAPCalculator: %v", err)
	}
	behind := objectmodel.FromSpherical(degToRad(180), 0)
	gains := calc.CalculateGains(behind)
	for i, g := range gains {
		if g != 0 {
			t.Fatalf("gain[%d] = %v, want 0 outside the array's single segment", i, g)
		}
	}
}

func TestNewVBAPCalculatorRejectsSingularTriplet(t *testing.T) {
	array := &LoudspeakerArray{
		Positions: []objectmodel.Position{{X: 1, Y: 0, Z: 0}, {X: 2, Y: 0, Z: 0}, {X: 3, Y: 0, Z: 0}},
		Triplets:  []Triplet{{0, 1, 2}},
	}
	if _, err := NewVBAPCalculator(array); err == nil {
		t.Fatal("expected error for collinear (singular) triplet")
	}
}

func TestVBAPListenerMotionKeepsOnSpeakerSourcesExact(t *testing.T) {
	array := RegularPolygonArray([]float64{degToRad(-30), degToRad(30), degToRad(90), degToRad(180), degToRad(-90)})
	calc, err := NewVBAPCalculator(array)
	if err != nil {
		t.Fatalf("NewVBAPCalculator: %v", err)
	}
	calc.SetListenerPosition(objectmodel.Position{X: 0.2, Y: -0.1})
	// A source sitting exactly on a loudspeaker stays on it regardless of
	// where the listener moved: both are offset by the same vector.
	for i, pos := range array.Positions {
		gains := calc.CalculateGains(pos)
		if got := gains[i]; math.Abs(got-1) > 1e-9 {
			t.Fatalf("speaker %d gain = %v after listener motion, want 1", i, got)
		}
	}
}

func TestVBAPInfiniteArrayIgnoresListenerMotion(t *testing.T) {
	array := RegularPolygonArray([]float64{degToRad(-30), degToRad(30)})
	array.IsInfinite = true
	calc, err := NewVBAPCalculator(array)
	if err != nil {
		t.Fatalf("NewVBAPCalculator: %v", err)
	}
	src := objectmodel.FromSpherical(degToRad(10), 0)
	before := calc.CalculateGains(src)
	calc.SetListenerPosition(objectmodel.Position{X: 0.5, Y: 0.3})
	after := calc.CalculateGains(src)
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("gain[%d] changed with listener motion on an infinite array: %v vs %v", i, before[i], after[i])
		}
	}
}
