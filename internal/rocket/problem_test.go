package rocket

import (
	"math"
	"testing"
)

func twoStageProblem(t *testing.T) *Problem {
	t.Helper()

	p, err := New([]Stage{
		{ISP: 300, Epsilon: 0.06, MinFraction: 0.15, MaxFraction: 0.80},
		{ISP: 348, Epsilon: 0.04, MinFraction: 0.01, MaxFraction: 0.90},
	}, 9000)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p
}

func TestValidate(t *testing.T) {
	valid := func() *Problem {
		return &Problem{
			Stages: []Stage{
				{ISP: 300, Epsilon: 0.06, MinFraction: 0.15, MaxFraction: 0.80},
				{ISP: 348, Epsilon: 0.04, MinFraction: 0.01, MaxFraction: 0.90},
			},
			TotalDeltaV: 9000,
			Tolerance:   1e-6,
			MaxDVFactor: 1.0,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Problem)
		wantErr bool
	}{
		{"valid", func(p *Problem) {}, false},
		{"no stages", func(p *Problem) { p.Stages = nil }, true},
		{"total below min_dv", func(p *Problem) { p.TotalDeltaV = 0 }, true},
		{"zero tolerance", func(p *Problem) { p.Tolerance = 0 }, true},
		{"zero max_dv_factor", func(p *Problem) { p.MaxDVFactor = 0 }, true},
		{"non-positive isp", func(p *Problem) { p.Stages[0].ISP = 0 }, true},
		{"epsilon at one", func(p *Problem) { p.Stages[1].Epsilon = 1.0 }, true},
		{"inverted fraction bounds", func(p *Problem) {
			p.Stages[0].MinFraction = 0.9
			p.Stages[0].MaxFraction = 0.2
		}, true},
		{"empty fraction range", func(p *Problem) { p.Stages[1].MaxFraction = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(p)
			err := p.Validate()
			if tt.wantErr && err == nil {
				t.Error("Expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Unexpected validation error: %v", err)
			}
		})
	}
}

func TestBounds(t *testing.T) {
	p := twoStageProblem(t)
	lower, upper := p.Bounds()

	if lower[0] != 0.15*9000 || upper[0] != 0.80*9000 {
		t.Errorf("First stage bounds [%f, %f], expected [1350, 7200]", lower[0], upper[0])
	}
	if lower[1] != 0.01*9000 || upper[1] != 0.90*9000 {
		t.Errorf("Second stage bounds [%f, %f], expected [90, 8100]", lower[1], upper[1])
	}
}

func TestBoundsRespectGlobalCeiling(t *testing.T) {
	p := twoStageProblem(t)
	p.MaxDVFactor = 0.5

	_, upper := p.Bounds()
	ceiling := 0.5 * 9000
	for i, u := range upper {
		if u > ceiling {
			t.Errorf("Stage %d upper bound %f exceeds ceiling %f", i, u, ceiling)
		}
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	a := twoStageProblem(t)
	b := twoStageProblem(t)

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("Structurally equal problems should share a fingerprint")
	}

	b.TotalDeltaV = 9001
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("Distinct problems should not share a fingerprint")
	}
}

func TestEqualSplit(t *testing.T) {
	p := twoStageProblem(t)
	dv := p.EqualSplit()

	if len(dv) != 2 {
		t.Fatalf("Expected 2 components, got %d", len(dv))
	}
	sum := dv[0] + dv[1]
	if math.Abs(sum-9000) > 1e-9 {
		t.Errorf("Equal split sums to %f, expected 9000", sum)
	}
}
