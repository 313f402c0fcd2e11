package models

import "time"

// ClusterDirection labels the slope of a detected run.
type ClusterDirection string

const (
	DirectionAccumulation ClusterDirection = "accumulation"
	DirectionDistribution ClusterDirection = "distribution"
)

// SeriesPoint is one time-ordered observation of a contract lineage, already
// reduced to the scalar the detector tracks (open interest for OI records,
// volume premium for activity records).
type SeriesPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// ClusterEvent describes a sustained directional run of observations for one
// ticker and contract. Points preserve the order the run was built in.
// Strength is total magnitude of change divided by elapsed time and is used
// only for ranking, never for run boundaries.
type ClusterEvent struct {
	Ticker         string           `json:"ticker"`
	ContractSymbol string           `json:"contract_symbol"`
	Points         []SeriesPoint    `json:"points"`
	Start          time.Time        `json:"start"`
	End            time.Time        `json:"end"`
	Direction      ClusterDirection `json:"direction"`
	Strength       float64          `json:"strength"`
}
