package model

import "time"

// AggregateRow is one fixed-width energy bucket for a device. Identity is
// (device, metered_at, interval_seconds): re-aggregating the same bucket
// updates the row in place.
type AggregateRow struct {
	ID                  int64  `gorm:"primaryKey"`
	DeviceID            int64  `gorm:"not null;uniqueIndex:idx_device_bucket"`
	Manufacturer        string `gorm:"size:100;not null;default:Ecoflow"`
	SerialNumber        string `gorm:"size:100;not null"`
	Country             *string
	Town                *string
	SwitchStatus        *int
	MeteredAt           time.Time `gorm:"not null;uniqueIndex:idx_device_bucket"`
	IntervalSeconds     int       `gorm:"not null;default:600;uniqueIndex:idx_device_bucket"`
	Phase               string    `gorm:"size:10;not null;default:1"`
	VoltageV            *float64
	CurrentA            *float64
	FrequencyHz         *float64
	PowerW              *float64
	PowerFactor         *float64
	EnergyIntervalWh    *float64
	EnergyLifetimeWh    *float64
	BillingCycleStartAt *time.Time
	IsPushed            bool      `gorm:"not null;default:false;index"`
	CreatedAt           time.Time `gorm:"autoCreateTime"`

	// Associations
	Device Device `gorm:"constraint:OnDelete:CASCADE"`
}
