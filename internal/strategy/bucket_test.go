package strategy

import (
	"testing"
	"time"

	"polyarb-go/internal/signal"
)

func TestBucketFollowHit(t *testing.T) {
	strat := NewBucketFollow(Range{Min: 0.01, Max: 0.02}, Range{Min: 0.505, Max: 0.510})
	est := strat.classify(0.015, 0.507)
	if !est.BucketHit {
		t.Fatalf("expected bucket hit for conf=0.015 prob=0.507")
	}
	if est.Mode != signal.ModeBucketFollow {
		t.Fatalf("unexpected mode %s", est.Mode)
	}
}

func TestBucketFollowMiss(t *testing.T) {
	strat := NewBucketFollow(Range{}, Range{})
	if est := strat.classify(0.03, 0.507); est.BucketHit {
		t.Fatalf("expected miss for confidence outside range")
	}
	if est := strat.classify(0.015, 0.515); est.BucketHit {
		t.Fatalf("expected miss for probability outside range")
	}
	if est := strat.classify(0.02, 0.507); est.BucketHit {
		t.Fatalf("expected upper bound to be exclusive")
	}
	if est := strat.classify(0.01, 0.505); !est.BucketHit {
		t.Fatalf("expected lower bounds to be inclusive")
	}
}

func TestBucketFollowFromQuote(t *testing.T) {
	strat := NewBucketFollow(Range{}, Range{})
	quote := signal.NewQuote(0.5075, 0.4925, time.Now())
	est, err := strat.Estimate(quote, nil)
	if err != nil {
		t.Fatalf("Estimate returned error: %v", err)
	}
	if !est.BucketHit {
		t.Fatalf("expected hit, got %+v", est)
	}

	est, err = strat.Estimate(signal.NewQuote(0.99, 0.02, time.Now()), nil)
	if err != nil {
		t.Fatalf("Estimate returned error: %v", err)
	}
	if est.BucketHit {
		t.Fatalf("expected miss for lopsided quote")
	}
}
