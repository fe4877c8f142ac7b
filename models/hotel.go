package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Hotel holds the descriptive profile of a hotel within a tenant's portfolio.
// Sheet rows carrying descriptive fields patch this record best-effort.
type Hotel struct {
	ID          uint             `gorm:"primary_key" json:"id"`
	TenantId    string           `gorm:"uniqueIndex:idx_hotel,priority:1;size:64;not null" json:"tenant_id"`
	HotelId     string           `gorm:"uniqueIndex:idx_hotel,priority:2;size:64;not null" json:"hotel_id"`
	Name        string           `gorm:"size:255" json:"name"`
	City        string           `gorm:"size:128" json:"city"`
	Country     string           `gorm:"size:128" json:"country"`
	Description string           `gorm:"type:text" json:"description"`
	Stars       int              `json:"stars"`
	Phone       string           `gorm:"size:64" json:"phone"`
	Email       string           `gorm:"size:255" json:"email"`
	Address     string           `gorm:"size:512" json:"address"`
	ImageUrl    string           `gorm:"size:512" json:"image_url"`
	BasePrice   *decimal.Decimal `gorm:"type:decimal(20,6)" json:"base_price"`
	CreatedAt   time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// HotelInventory is the per-date, per-room-type snapshot of price, allotment
// and stop-sale derived from mapped sheet rows. Hotel-level-only rows (no
// date) are stored with empty date and room type.
//
// Allotment never goes below zero; adjustments clamp at the floor.
type HotelInventory struct {
	ID        uint             `gorm:"primary_key" json:"id"`
	TenantId  string           `gorm:"uniqueIndex:idx_hotel_inventory,priority:1;size:64;not null" json:"tenant_id"`
	HotelId   string           `gorm:"uniqueIndex:idx_hotel_inventory,priority:2;size:64;not null" json:"hotel_id"`
	Date      string           `gorm:"uniqueIndex:idx_hotel_inventory,priority:3;size:10;not null" json:"date"`
	RoomType  string           `gorm:"uniqueIndex:idx_hotel_inventory,priority:4;size:64;not null" json:"room_type"`
	Price     *decimal.Decimal `gorm:"type:decimal(20,6)" json:"price"`
	Allotment *int             `json:"allotment"`
	StopSale  *bool            `json:"stop_sale"`
	Source    string           `gorm:"size:64" json:"source"`
	CreatedAt time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}
