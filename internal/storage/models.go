package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceRow is one persisted price history observation.
type PriceRow struct {
	ID         int64
	Symbol     string
	Name       string
	Currency   string
	Price      decimal.Decimal
	Source     string
	Origin     string
	RecordedAt time.Time
}

// Condition is the trigger direction of an alert rule.
type Condition string

const (
	ConditionAbove Condition = "above"
	ConditionBelow Condition = "below"
)

// Valid reports whether c is a known condition.
func (c Condition) Valid() bool {
	return c == ConditionAbove || c == ConditionBelow
}

// AlertRule is a user defined one-shot threshold.
type AlertRule struct {
	ID              int64
	Symbol          string
	Threshold       decimal.Decimal
	Condition       Condition
	Active          bool
	Email           string
	CreatedAt       time.Time
	LastTriggeredAt *time.Time
}

// NotificationStatus is the delivery outcome of one dispatch attempt.
type NotificationStatus string

const (
	StatusSent   NotificationStatus = "sent"
	StatusFailed NotificationStatus = "failed"
)

// NotificationRecord is the append-only audit row of a dispatch attempt.
type NotificationRecord struct {
	ID        int64
	AlertID   *int64
	Symbol    string
	AssetName string
	Currency  string
	Threshold decimal.Decimal
	Price     decimal.Decimal
	Condition Condition
	Status    NotificationStatus
	Transport string
	Error     *string
	SentAt    time.Time
}

// AssetDetails is the stored reference card of one asset. Market figures are
// USD and invalid when the upstream did not report them.
type AssetDetails struct {
	Symbol            string
	Name              string
	MarketCap         decimal.NullDecimal
	Volume24h         decimal.NullDecimal
	CirculatingSupply decimal.NullDecimal
	TotalSupply       decimal.NullDecimal
	MaxSupply         decimal.NullDecimal
	LaunchDate        string
	Description       string
	Website           string
	Whitepaper        string
	GitHub            string
	Twitter           string
	Reddit            string
	Source            string
	UpdatedAt         time.Time
}

// Favorite marks an asset a user follows.
type Favorite struct {
	ID      int64
	UserID  int64
	Symbol  string
	Name    string
	AddedAt time.Time
}

// FavoriteCount is one row of the popularity ranking.
type FavoriteCount struct {
	Symbol string
	Name   string
	Count  int64
}
