package model

import "time"

// Device represents one vendor-registered smart plug. Devices are upserted
// by serial number on every sync and never deleted.
type Device struct {
	ID          int64  `gorm:"primaryKey"`
	SN          string `gorm:"uniqueIndex;size:100;not null"`
	Name        string `gorm:"size:255;not null"`
	Model       string `gorm:"size:100"`
	Status      string `gorm:"size:50"`
	Online      *bool
	ProductName string         `gorm:"size:200"`
	FullInfo    map[string]any `gorm:"serializer:json"`
	LastUpdated time.Time      `gorm:"autoUpdateTime"`

	// Associations
	Samples    []Sample       `gorm:"foreignKey:DeviceID"`
	Aggregates []AggregateRow `gorm:"foreignKey:DeviceID"`
}
