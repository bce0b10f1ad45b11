// Package domain contains core business entities.
package domain

import "time"

// Quality represents the reliability of a reading or stored sample.
type Quality string

const (
	QualityGood      Quality = "good"
	QualityBad       Quality = "bad"
	QualityUncertain Quality = "uncertain"
)

// Reading is the result of one adapter read for one address. A nil Value
// means the device produced no usable value; the quality flag carries the
// reason. Adapters never report failures through errors, only through
// bad-quality readings.
type Reading struct {
	// Value is the normalized value; nil when absent
	Value *float64 `json:"value"`

	// Quality indicates the reliability of this reading
	Quality Quality `json:"quality"`
}

// GoodReading wraps a successfully read value.
func GoodReading(v float64) Reading {
	return Reading{Value: &v, Quality: QualityGood}
}

// BadReading is an absent value with bad quality, used for every failure
// mode: malformed address, connect failure, device-reported read error,
// uncoercible value.
func BadReading() Reading {
	return Reading{Quality: QualityBad}
}

// AbsentReading is an absent value carrying an explicit quality, used when
// a server answers successfully but returns no value.
func AbsentReading(q Quality) Reading {
	return Reading{Quality: q}
}

// Sample is one time-stamped measurement for a tag. Samples are
// append-only: created exclusively by the acquisition engine, never
// mutated or deleted by it.
type Sample struct {
	// ID is assigned by the store on append
	ID int64 `json:"id"`

	// TagID references the source tag
	TagID int64 `json:"tag_id"`

	// Value is the normalized float value. Failed reads store 0.0; the
	// quality flag, not a null, records that no real value exists.
	Value float64 `json:"value"`

	// Quality indicates the reliability of this sample
	Quality Quality `json:"quality"`

	// Timestamp is when the value was read from the device
	Timestamp time.Time `json:"timestamp"`
}

// NewSample folds a reading into a storable sample for the given tag.
// Absent values become 0.0 with the reading's quality preserved.
func NewSample(tagID int64, r Reading, ts time.Time) Sample {
	value := 0.0
	if r.Value != nil {
		value = *r.Value
	}
	return Sample{
		TagID:     tagID,
		Value:     value,
		Quality:   r.Quality,
		Timestamp: ts,
	}
}
