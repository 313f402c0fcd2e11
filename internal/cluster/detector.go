package cluster

import (
	"time"

	"optionflow/internal/models"
)

// Detector flags sustained directional runs in a single contract lineage.
// Detection is a pure function of the input sequence: the detector holds no
// cross-call state, so replaying identical history yields identical events.
type Detector struct {
	minCount int
	maxGap   time.Duration
}

func NewDetector(minCount int, maxGap time.Duration) *Detector {
	if minCount < 2 {
		minCount = 2
	}
	return &Detector{minCount: minCount, maxGap: maxGap}
}

// Detect walks the time-ordered points and returns every closed run whose
// contributing count reaches the minimum. A point extends the open run when
// its change keeps the run's direction and its gap from the previous point is
// within the maximum; otherwise the run closes and a new one begins. Runs too
// short to qualify are discarded silently.
func (d *Detector) Detect(ticker, contractSymbol string, points []models.SeriesPoint) []models.ClusterEvent {
	if len(points) < d.minCount {
		return nil
	}

	var events []models.ClusterEvent
	run := []models.SeriesPoint{points[0]}
	var direction models.ClusterDirection

	flush := func() {
		if evt, ok := d.closeRun(ticker, contractSymbol, run, direction); ok {
			events = append(events, evt)
		}
	}

	for i := 1; i < len(points); i++ {
		prev := points[i-1]
		curr := points[i]
		delta := curr.Value - prev.Value
		gap := curr.Timestamp.Sub(prev.Timestamp)

		if gap > d.maxGap {
			// the link to the previous point is stale; start over at curr
			flush()
			run = []models.SeriesPoint{curr}
			direction = ""
			continue
		}

		stepDir := stepDirection(delta)
		switch {
		case stepDir == "":
			// flat step breaks monotonicity
			flush()
			run = []models.SeriesPoint{curr}
			direction = ""
		case direction == "" || stepDir == direction:
			direction = stepDir
			run = append(run, curr)
		default:
			// direction flip: prev pivots into the new run
			flush()
			run = []models.SeriesPoint{prev, curr}
			direction = stepDir
		}
	}
	flush()

	return events
}

func (d *Detector) closeRun(ticker, contractSymbol string, run []models.SeriesPoint, direction models.ClusterDirection) (models.ClusterEvent, bool) {
	if direction == "" || len(run) < d.minCount {
		return models.ClusterEvent{}, false
	}

	first := run[0]
	last := run[len(run)-1]
	magnitude := last.Value - first.Value
	if magnitude < 0 {
		magnitude = -magnitude
	}

	elapsed := last.Timestamp.Sub(first.Timestamp).Seconds()
	strength := magnitude
	if elapsed > 0 {
		strength = magnitude / elapsed
	}

	return models.ClusterEvent{
		Ticker:         ticker,
		ContractSymbol: contractSymbol,
		Points:         append([]models.SeriesPoint(nil), run...),
		Start:          first.Timestamp,
		End:            last.Timestamp,
		Direction:      direction,
		Strength:       strength,
	}, true
}

func stepDirection(delta float64) models.ClusterDirection {
	switch {
	case delta > 0:
		return models.DirectionAccumulation
	case delta < 0:
		return models.DirectionDistribution
	default:
		return ""
	}
}
