package strategy

import (
	"testing"

	"polyarb-go/internal/signal"
)

func TestBuildSelectsStrategy(t *testing.T) {
	strat, err := Build("bucket_follow", Params{})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if strat.Mode() != signal.ModeBucketFollow {
		t.Fatalf("expected bucket_follow, got %s", strat.Mode())
	}

	strat, err = Build(" Model_Edge ", Params{Neighbors: 20, Horizon: 3, MinBars: 100})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	model, ok := strat.(*ModelEdge)
	if !ok {
		t.Fatalf("expected *ModelEdge, got %T", strat)
	}
	if model.neighbors != 20 || model.horizon != 3 || model.minBars != 100 {
		t.Fatalf("params not applied: %+v", model)
	}

	if _, err := Build("momentum", Params{}); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
