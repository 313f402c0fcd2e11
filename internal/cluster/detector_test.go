package cluster

import (
	"reflect"
	"testing"
	"time"

	"optionflow/internal/models"
)

func points(pairs ...float64) []models.SeriesPoint {
	base := time.Date(2024, 6, 14, 9, 30, 0, 0, time.UTC)
	out := make([]models.SeriesPoint, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, models.SeriesPoint{
			Timestamp: base.Add(time.Duration(pairs[i]) * time.Minute),
			Value:     pairs[i+1],
		})
	}
	return out
}

func TestDetectSingleAccumulationRun(t *testing.T) {
	d := NewDetector(3, 2*time.Minute)

	// times [0,1,2,3] with strictly increasing values
	events := d.Detect("NVDA", "NVDA-C-120", points(0, 10, 1, 12, 2, 15, 3, 20))
	if len(events) != 1 {
		t.Fatalf("expected exactly one event, got %d", len(events))
	}

	evt := events[0]
	if evt.Direction != models.DirectionAccumulation {
		t.Fatalf("direction = %s", evt.Direction)
	}
	if len(evt.Points) != 4 {
		t.Fatalf("event should span all four records, got %d", len(evt.Points))
	}
	if evt.Start != evt.Points[0].Timestamp || evt.End != evt.Points[3].Timestamp {
		t.Fatalf("start/end do not bracket the run: %v %v", evt.Start, evt.End)
	}
	// 10 units over 180 seconds
	if want := 10.0 / 180.0; evt.Strength != want {
		t.Fatalf("strength = %f, want %f", evt.Strength, want)
	}
}

func TestDetectGapSplitsRuns(t *testing.T) {
	d := NewDetector(3, 2*time.Minute)

	// same values but a 5 minute gap between the second and third record:
	// two runs of two records each, neither reaching min-count
	events := d.Detect("NVDA", "NVDA-C-120", points(0, 10, 1, 12, 6, 15, 7, 20))
	if len(events) != 0 {
		t.Fatalf("expected zero events, got %d", len(events))
	}
}

func TestDetectDirectionFlip(t *testing.T) {
	d := NewDetector(3, 10*time.Minute)

	// rises then falls; the pivot belongs to both runs
	events := d.Detect("NVDA", "NVDA-C-120", points(0, 10, 1, 12, 2, 15, 3, 13, 4, 11))
	if len(events) != 2 {
		t.Fatalf("expected two events, got %d", len(events))
	}
	if events[0].Direction != models.DirectionAccumulation {
		t.Fatalf("first run should be accumulation, got %s", events[0].Direction)
	}
	if events[1].Direction != models.DirectionDistribution {
		t.Fatalf("second run should be distribution, got %s", events[1].Direction)
	}
	if len(events[0].Points) != 3 || len(events[1].Points) != 3 {
		t.Fatalf("unexpected run sizes: %d, %d", len(events[0].Points), len(events[1].Points))
	}
}

func TestDetectFlatStepBreaksRun(t *testing.T) {
	d := NewDetector(3, 10*time.Minute)

	events := d.Detect("NVDA", "NVDA-C-120", points(0, 10, 1, 12, 2, 12, 3, 13))
	if len(events) != 0 {
		t.Fatalf("flat step should break the run, got %d events", len(events))
	}
}

func TestDetectShortRunsDiscardedSilently(t *testing.T) {
	d := NewDetector(3, 10*time.Minute)

	events := d.Detect("NVDA", "NVDA-C-120", points(0, 10, 1, 12))
	if events != nil {
		t.Fatalf("runs below min-count must be discarded, got %v", events)
	}
}

func TestDetectIdempotent(t *testing.T) {
	d := NewDetector(3, 2*time.Minute)
	input := points(0, 10, 1, 12, 2, 15, 3, 20, 4, 18, 5, 16, 6, 14)

	first := d.Detect("NVDA", "NVDA-C-120", input)
	second := d.Detect("NVDA", "NVDA-C-120", input)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("identical input must yield identical events")
	}
}
