package models

import "time"

// PositionRecord is the canonical shape every accepted device report is
// normalized into. Values are immutable once constructed.
type PositionRecord struct {
	DeviceID  string  `json:"device_id"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Speed     float64 `json:"speed"`   // km/h
	Heading   int     `json:"heading"` // degrees
	Sats      int     `json:"sats"`    // satellite count
	Timestamp int64   `json:"ts"`      // epoch milliseconds
}

// Time returns the record timestamp as a time.Time.
func (p PositionRecord) Time() time.Time {
	return time.UnixMilli(p.Timestamp)
}

// Age reports how long ago the record was produced relative to now.
func (p PositionRecord) Age(now time.Time) time.Duration {
	return now.Sub(p.Time())
}
