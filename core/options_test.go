package orchestration

import "testing"

func TestWithRatingScaleRejectsInvertedScale(t *testing.T) {
	e := New(WithRatingScale(5, 1))

	if e.ratingMin != DefaultMinRating || e.ratingMax != DefaultMaxRating {
		t.Fatalf("expected default scale, got %d..%d", e.ratingMin, e.ratingMax)
	}
}

func TestWithToolsNilIsNoop(t *testing.T) {
	e := New(WithTools(nil))

	if e.tools == nil {
		t.Fatalf("expected nil tools to keep the default registry")
	}
}

func TestWithLogDelivererNilKeepsDiscard(t *testing.T) {
	e := New(WithLogDeliverer(nil))

	if _, ok := e.deliverer.(discardDeliverer); !ok {
		t.Fatalf("expected discard deliverer, got %T", e.deliverer)
	}
}
