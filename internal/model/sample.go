package model

import (
	"math"
	"time"
)

// EAT is the fixed UTC+3 offset used for all bucketing timestamps,
// regardless of system locale.
var EAT = time.FixedZone("EAT", 3*60*60)

// Sample is one raw quota snapshot for a device. EATTime is the bucketing
// key (vendor UTC converted to fixed UTC+3); it is null when the vendor
// timestamp was missing or unparseable, and such rows are never aggregated.
type Sample struct {
	ID           int64  `gorm:"primaryKey"`
	DeviceID     int64  `gorm:"index;not null"`
	SerialNumber string `gorm:"size:100;not null"`
	UTCTime      string `gorm:"size:100"`
	EATTime      *time.Time
	UpdateTime   string `gorm:"size:100"`
	TimeZone     string `gorm:"size:100"`
	Country      *string
	Town         *string
	SwitchStatus *int
	Freq         *float64
	Volt         *float64
	Current      *float64
	Watts        *float64
	QuotaData    map[string]any `gorm:"serializer:json"`
	FetchedAt    time.Time      `gorm:"autoCreateTime"`
	IsAggregated bool           `gorm:"not null;default:false;index"`

	// Associations
	Device Device `gorm:"constraint:OnDelete:CASCADE"`
}

// CurrentCalculated derives amperage from power and voltage. It is not
// persisted; the vendor-reported current field is often stale.
func (s *Sample) CurrentCalculated() *float64 {
	if s.Watts == nil || s.Volt == nil || *s.Volt == 0 {
		return nil
	}
	v := math.Round(*s.Watts / *s.Volt * 100) / 100
	return &v
}
