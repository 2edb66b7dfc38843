package domain

import (
	"math"
	"time"
)

// MillimetersFactor converts summed pixel values into millimeters. Pixels
// hold rates in 0.1 mm/h and each window covers half an hour.
const MillimetersFactor = 20

// Station is a fixed point where precipitation is sampled.
type Station struct {
	ID  string
	Lat float64
	Lon float64
}

// StationValue is one sampled value for one station.
type StationValue struct {
	StationID string
	Value     float64
}

// StationTotals accumulates raw values per station, keeping the station
// load order for output.
type StationTotals struct {
	order  []string
	totals map[string]float64
}

// NewStationTotals seeds a zero total for every station so a day without
// any usable window still yields one row per station.
func NewStationTotals(stations []Station) *StationTotals {
	st := &StationTotals{
		order:  make([]string, 0, len(stations)),
		totals: make(map[string]float64, len(stations)),
	}
	for _, s := range stations {
		if _, dup := st.totals[s.ID]; dup {
			continue
		}
		st.order = append(st.order, s.ID)
		st.totals[s.ID] = 0
	}
	return st
}

// Add sums v into the station's running total. Unknown station ids are
// ignored and reported as false.
func (st *StationTotals) Add(stationID string, v float64) bool {
	if _, ok := st.totals[stationID]; !ok {
		return false
	}
	st.totals[stationID] += v
	return true
}

// Rows converts the totals into output rows for day, in station load order.
func (st *StationTotals) Rows(day time.Time) []OutputRow {
	rows := make([]OutputRow, 0, len(st.order))
	date := DateLabel(day)
	for _, id := range st.order {
		rows = append(rows, OutputRow{
			StationID:       id,
			Date:            date,
			PrecipitationMM: st.totals[id] / MillimetersFactor,
		})
	}
	return rows
}

// OutputRow is one line of the daily series.
type OutputRow struct {
	StationID       string  `json:"id"`
	Date            string  `json:"date"`
	PrecipitationMM float64 `json:"total_mm"`
}

// RoundValue rounds a decoded pixel value to two decimal places.
func RoundValue(v float64) float64 {
	return math.Round(v*100) / 100
}
