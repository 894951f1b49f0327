package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Plan is a priced access period. Checkout amounts always come from here.
type Plan struct {
	ID           string          `gorm:"primaryKey;size:64" json:"id" yaml:"id"`
	Name         string          `gorm:"size:200;not null" json:"name" yaml:"name"`
	Amount       decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount" yaml:"amount"`
	Currency     string          `gorm:"size:3;not null" json:"currency" yaml:"currency"`
	BillingCycle BillingCycle    `gorm:"column:billing_cycle;size:20;not null" json:"billing_cycle" yaml:"billing_cycle"`
	Recurring    bool            `gorm:"not null;default:false" json:"recurring" yaml:"recurring"`
	SortOrder    int             `gorm:"default:0" json:"sort_order" yaml:"sort_order"`
	IsActive     bool            `gorm:"not null" json:"is_active" yaml:"is_active"`
	CreatedAt    time.Time       `json:"created_at" yaml:"-"`
	UpdatedAt    time.Time       `json:"updated_at" yaml:"-"`
}

// TableName specifies the table name for GORM
func (Plan) TableName() string {
	return "plans"
}
