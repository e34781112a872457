package retrieval

import (
	"context"
	"math"
	"testing"

	"github.com/insightpipe/isat/internal/model"
)

func TestSequentialRetrievalWindow(t *testing.T) {
	images := make([]model.ImageInfo, 5)
	pairs, err := SequentialStrategy{Window: 2}.Run(context.Background(), images)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	kept := Combine([][]model.ImagePair{pairs}, 0.01, 0)

	want := map[[2]int]bool{{0, 1}: true, {1, 2}: true, {2, 3}: true, {3, 4}: true}
	if len(kept) != len(want) {
		t.Fatalf("got %d pairs after score-floor filter, want %d: %+v", len(kept), len(want), kept)
	}
	for _, p := range kept {
		i, j := p.Canonical()
		if !want[[2]int{i, j}] {
			t.Fatalf("unexpected pair (%d,%d)", i, j)
		}
		if math.Abs(p.Score-0.5) > 1e-9 {
			t.Fatalf("pair (%d,%d) score = %v, want 0.5", i, j, p.Score)
		}
	}
}

func TestGPSRetrievalRadiusQuery(t *testing.T) {
	images := []model.ImageInfo{
		{GNSS: &model.GNSS{X: 0, Y: 0, Z: 0}},
		{GNSS: &model.GNSS{X: 10, Y: 0, Z: 0}},
		{GNSS: &model.GNSS{X: 100, Y: 0, Z: 0}},
		{GNSS: &model.GNSS{X: 5, Y: 0, Z: 0}},
	}
	strat := GPSStrategy{Radius: 50, MaxNeighbors: 10}
	pairs, err := strat.Run(context.Background(), images)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	seen := map[[2]int]float64{}
	for _, p := range pairs {
		i, j := p.Canonical()
		seen[[2]int{i, j}] = p.Score
	}

	want := map[[2]int]bool{{0, 1}: true, {0, 3}: true, {1, 3}: true}
	excluded := [][2]int{{0, 2}, {1, 2}, {2, 3}}

	if len(seen) != len(want) {
		t.Fatalf("got %d pairs, want %d: %+v", len(seen), len(want), seen)
	}
	for k := range want {
		if _, ok := seen[k]; !ok {
			t.Fatalf("missing expected pair %v", k)
		}
	}
	for _, k := range excluded {
		if _, ok := seen[k]; ok {
			t.Fatalf("pair %v should have been excluded (distance > radius)", k)
		}
	}

	if s := seen[[2]int{0, 1}]; math.Abs(s-math.Exp(-10.0/50)) > 1e-6 {
		t.Fatalf("score(0,1) = %v, want exp(-10/50)", s)
	}
	if s := seen[[2]int{0, 3}]; math.Abs(s-math.Exp(-5.0/50)) > 1e-6 {
		t.Fatalf("score(0,3) = %v, want exp(-5/50)", s)
	}
}

func TestCombinerDeduplication(t *testing.T) {
	a := []model.ImagePair{{Image1Idx: 0, Image2Idx: 1, Score: 0.8, Method: "gps"}}
	b := []model.ImagePair{{Image1Idx: 1, Image2Idx: 0, Score: 0.3, Method: "vlad"}}

	out := Combine([][]model.ImagePair{a, b}, 0.01, 0)
	if len(out) != 1 {
		t.Fatalf("expected 1 merged pair, got %d: %+v", len(out), out)
	}
	p := out[0]
	i, j := p.Canonical()
	if i != 0 || j != 1 {
		t.Fatalf("expected canonical (0,1), got (%d,%d)", i, j)
	}
	if math.Abs(p.Score-1.1) > 1e-9 {
		t.Fatalf("score = %v, want 1.1", p.Score)
	}
	if p.Method != "gps+vlad" {
		t.Fatalf("method = %q, want gps+vlad", p.Method)
	}
}

func TestCombinerOrderIndependent(t *testing.T) {
	a := []model.ImagePair{{Image1Idx: 0, Image2Idx: 1, Score: 0.8, Method: "gps"}}
	b := []model.ImagePair{{Image1Idx: 1, Image2Idx: 0, Score: 0.3, Method: "vlad"}}

	out1 := Combine([][]model.ImagePair{a, b}, 0.01, 0)
	out2 := Combine([][]model.ImagePair{b, a}, 0.01, 0)

	if len(out1) != len(out2) || len(out1) != 1 {
		t.Fatalf("mismatched result lengths: %d vs %d", len(out1), len(out2))
	}
	if math.Abs(out1[0].Score-out2[0].Score) > 1e-9 {
		t.Fatalf("score differs by combine order: %v vs %v", out1[0].Score, out2[0].Score)
	}
	if out1[0].Score < 0.8 || out2[0].Score < 0.8 {
		t.Fatalf("merged score must be >= max(score_A, score_B)")
	}
}

func TestCombinerWeakContributionNotMerged(t *testing.T) {
	a := []model.ImagePair{{Image1Idx: 0, Image2Idx: 1, Score: 1.0, Method: "gps"}}
	b := []model.ImagePair{{Image1Idx: 0, Image2Idx: 1, Score: 0.1, Method: "vlad"}}

	out := Combine([][]model.ImagePair{a, b}, 0.01, 0)
	if len(out) != 1 {
		t.Fatalf("expected 1 pair, got %d", len(out))
	}
	if out[0].Method != "gps" {
		t.Fatalf("weak contribution (0.1 < 0.5*1.0) should not change the method label; got method %q", out[0].Method)
	}
	if math.Abs(out[0].Score-1.1) > 1e-9 {
		t.Fatalf("score should always sum regardless of the method-label gate, got %v, want 1.1", out[0].Score)
	}
}

func TestExhaustiveNoSelfPairsOrDuplicates(t *testing.T) {
	images := make([]model.ImageInfo, 6)
	pairs, err := ExhaustiveStrategy{}.Run(context.Background(), images)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	seen := map[[2]int]bool{}
	for _, p := range pairs {
		i, j := p.Canonical()
		if i >= j {
			t.Fatalf("non-canonical or self pair: (%d,%d)", i, j)
		}
		if seen[[2]int{i, j}] {
			t.Fatalf("duplicate pair (%d,%d)", i, j)
		}
		seen[[2]int{i, j}] = true
	}
	want := 6 * 5 / 2
	if len(pairs) != want {
		t.Fatalf("got %d pairs, want %d", len(pairs), want)
	}
}

func TestExhaustiveDeterministic(t *testing.T) {
	images := make([]model.ImageInfo, 5)
	p1, _ := ExhaustiveStrategy{}.Run(context.Background(), images)
	p2, _ := ExhaustiveStrategy{}.Run(context.Background(), images)
	if len(p1) != len(p2) {
		t.Fatalf("non-deterministic output length")
	}
	for i := range p1 {
		if p1[i] != p2[i] {
			t.Fatalf("non-deterministic output at %d: %+v vs %+v", i, p1[i], p2[i])
		}
	}
}
