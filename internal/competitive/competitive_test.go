package competitive

import (
	"errors"
	"sort"
	"testing"

	"PriceSentinel/internal/model"
)

func TestAnalyze_RankMatchesSortedPosition(t *testing.T) {
	sets := [][]float64{
		{85, 95, 105},
		{100, 100, 100},
		{120, 80, 99.99, 100.01},
		{50},
	}
	for _, comp := range sets {
		user := 100.0
		pos, err := Analyze(user, comp, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		all := append([]float64{user}, comp...)
		sort.SliceStable(all, func(i, j int) bool { return all[i] < all[j] })
		want := 0
		for i, v := range all {
			if v == user {
				want = i + 1
				break
			}
		}
		if pos.Rank != want {
			t.Errorf("%v: rank %d, want %d", comp, pos.Rank, want)
		}
		if pos.Percentile != float64(want)/float64(len(all)) {
			t.Errorf("%v: percentile %.3f", comp, pos.Percentile)
		}
	}
}

func TestAnalyze_Distribution(t *testing.T) {
	pos, err := Analyze(120, []float64{90, 100, 110, 120}, 0.20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos.Min != 90 || pos.Max != 120 {
		t.Errorf("unexpected range %.2f-%.2f", pos.Min, pos.Max)
	}
	if pos.Median != 105 || pos.Q1 != 95 || pos.Q3 != 115 {
		t.Errorf("unexpected quartiles q1=%.2f median=%.2f q3=%.2f", pos.Q1, pos.Median, pos.Q3)
	}
	if pos.GapFlagged {
		t.Errorf("gap %.3f should not be flagged at 20%%", pos.GapPct)
	}

	pos, _ = Analyze(120, []float64{90, 100, 110, 120}, 0.10)
	if !pos.GapFlagged {
		t.Error("expected gap flagged at 10%")
	}
}

func TestAnalyze_NoCompetitors(t *testing.T) {
	if _, err := Analyze(100, nil, 0); !errors.Is(err, ErrNoCompetitors) {
		t.Errorf("expected ErrNoCompetitors, got %v", err)
	}
}

func TestWeightedAverage(t *testing.T) {
	points := []model.PricePoint{
		{CompetitorID: "a", Price: 100, Available: true},
		{CompetitorID: "b", Price: 80, Available: true},
		{CompetitorID: "c", Price: 10, Available: false},
	}
	weights := map[string]float64{"a": 3, "b": 1}
	got, ok := WeightedAverage(points, func(id string) float64 { return weights[id] })
	if !ok || got != 95 {
		t.Errorf("expected 95, got %.2f (ok=%v)", got, ok)
	}
}
