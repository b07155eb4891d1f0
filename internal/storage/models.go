package storage

import (
	"time"

	"gorm.io/gorm"
)

// AppState stores application state for checkpointing
type AppState struct {
	StateKey   string `gorm:"primaryKey;size:64"`
	StateValue string `gorm:"type:text;not null"`
	UpdatedTS  int64  `gorm:"not null;index"`
}

func (AppState) TableName() string {
	return "app_state"
}

// DispatchedAlert records an alert that was sent, for dedup and cooldown
type DispatchedAlert struct {
	DedupKey        string  `gorm:"primaryKey;size:191"`
	Kind            string  `gorm:"size:32;not null;index"`
	Severity        string  `gorm:"size:16;not null"`
	Address         string  `gorm:"size:64;index:idx_address_created"`
	TokenSymbol     string  `gorm:"size:64"`
	AmountUSD       float64 `gorm:"type:decimal(24,2);not null;default:0"`
	TransactionHash string  `gorm:"size:128"`
	InsightType     string  `gorm:"size:32"`
	Title           string  `gorm:"size:512"`
	EventTS         int64   `gorm:"not null"`
	CreatedTS       int64   `gorm:"not null;index:idx_address_created"`
}

func (DispatchedAlert) TableName() string {
	return "dispatched_alerts"
}

// BeforeCreate hook for timestamps
func (a *AppState) BeforeCreate(tx *gorm.DB) error {
	if a.UpdatedTS == 0 {
		a.UpdatedTS = time.Now().Unix()
	}
	return nil
}

func (d *DispatchedAlert) BeforeCreate(tx *gorm.DB) error {
	if d.CreatedTS == 0 {
		d.CreatedTS = time.Now().Unix()
	}
	return nil
}
