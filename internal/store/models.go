// Package store holds the concrete persistence adapters for the Order
// Store (C1) and Kline Store (C4's durable half): gorm/postgres-backed,
// grounded on internal/db/repositories/orderRepository.go and
// internal/db/models/order.go.
package store

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vantra-labs/matchcore/internal/domain"
)

// orderRow is the gorm row for an order (spec §3), decimal-backed instead
// of the teacher's float64 fields — the teacher's internal/db/models.Order
// uses float64 Price/Quantity/ExecutedQuantity, which is exactly the binary
// floating point representation spec §4.3 forbids for monetary fields.
type orderRow struct {
	ID            string          `gorm:"primaryKey;type:varchar(36)"`
	UserID        string          `gorm:"index;type:varchar(64)"`
	Symbol        string          `gorm:"index;type:varchar(32)"`
	Side          string          `gorm:"type:varchar(4)"`
	Type          string          `gorm:"type:varchar(8)"`
	Price         decimal.Decimal `gorm:"type:numeric(36,18)"`
	Original      decimal.Decimal `gorm:"type:numeric(36,18)"`
	Executed      decimal.Decimal `gorm:"type:numeric(36,18)"`
	Status        string          `gorm:"index;type:varchar(20)"`
	IsWorking     bool            `gorm:"index"`
	IsLocked      bool            `gorm:"index"`
	LockedAt      *time.Time
	LockingJobID  string          `gorm:"type:varchar(32)"`
	CreatedAt     time.Time       `gorm:"index"`
	UpdatedAt     time.Time
}

func (orderRow) TableName() string { return "orders" }

func fromDomainOrder(o *domain.Order) *orderRow {
	return &orderRow{
		ID:           o.ID,
		UserID:       o.UserID,
		Symbol:       o.Symbol,
		Side:         string(o.Side),
		Type:         string(o.Type),
		Price:        o.Price,
		Original:     o.Original,
		Executed:     o.Executed,
		Status:       string(o.Status),
		IsWorking:    o.IsWorking,
		IsLocked:     o.IsLocked,
		LockedAt:     o.LockedAt,
		LockingJobID: o.LockingJobID,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
}

func (r *orderRow) toDomain() *domain.Order {
	return &domain.Order{
		ID:           r.ID,
		UserID:       r.UserID,
		Symbol:       r.Symbol,
		Side:         domain.Side(r.Side),
		Type:         domain.Type(r.Type),
		Price:        r.Price,
		Original:     r.Original,
		Executed:     r.Executed,
		Status:       domain.Status(r.Status),
		IsWorking:    r.IsWorking,
		IsLocked:     r.IsLocked,
		LockedAt:     r.LockedAt,
		LockingJobID: r.LockingJobID,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// tradeRow is the gorm row for a trade, written alongside order updates in
// the same transaction (spec §4.1 invariant: trades and order fills commit
// atomically).
type tradeRow struct {
	ID            string          `gorm:"primaryKey;type:varchar(36)"`
	Symbol        string          `gorm:"index;type:varchar(32)"`
	BuyerOrderID  string          `gorm:"index;type:varchar(36)"`
	SellerOrderID string          `gorm:"index;type:varchar(36)"`
	BuyerUserID   string          `gorm:"index;type:varchar(64)"`
	SellerUserID  string          `gorm:"index;type:varchar(64)"`
	Price         decimal.Decimal `gorm:"type:numeric(36,18)"`
	Quantity      decimal.Decimal `gorm:"type:numeric(36,18)"`
	IsBuyerMaker  bool
	CreatedAt     time.Time `gorm:"index"`
}

func (tradeRow) TableName() string { return "trades" }

func fromDomainTrade(t *domain.Trade) *tradeRow {
	return &tradeRow{
		ID:            t.ID,
		Symbol:        t.Symbol,
		BuyerOrderID:  t.BuyerOrderID,
		SellerOrderID: t.SellerOrderID,
		BuyerUserID:   t.BuyerUserID,
		SellerUserID:  t.SellerUserID,
		Price:         t.Price,
		Quantity:      t.Quantity,
		IsBuyerMaker:  t.IsBuyerMaker,
		CreatedAt:     t.CreatedAt,
	}
}

func (r *tradeRow) toDomain() *domain.Trade {
	return &domain.Trade{
		ID:            r.ID,
		Symbol:        r.Symbol,
		BuyerOrderID:  r.BuyerOrderID,
		SellerOrderID: r.SellerOrderID,
		BuyerUserID:   r.BuyerUserID,
		SellerUserID:  r.SellerUserID,
		Price:         r.Price,
		Quantity:      r.Quantity,
		IsBuyerMaker:  r.IsBuyerMaker,
		CreatedAt:     r.CreatedAt,
	}
}

// klineRow is the gorm row for a durable kline bucket (spec §4.4).
type klineRow struct {
	Symbol      string          `gorm:"primaryKey;type:varchar(32)"`
	Interval    string          `gorm:"primaryKey;type:varchar(4)"`
	OpenTimeMs  int64           `gorm:"primaryKey"`
	CloseTimeMs int64
	Open        decimal.Decimal `gorm:"type:numeric(36,18)"`
	High        decimal.Decimal `gorm:"type:numeric(36,18)"`
	Low         decimal.Decimal `gorm:"type:numeric(36,18)"`
	Close       decimal.Decimal `gorm:"type:numeric(36,18)"`
	BaseVolume  decimal.Decimal `gorm:"type:numeric(36,18)"`
	QuoteVolume decimal.Decimal `gorm:"type:numeric(36,18)"`
	TradeCount  int
}

func (klineRow) TableName() string { return "klines" }

func fromDomainKline(k *domain.Kline) *klineRow {
	return &klineRow{
		Symbol:      k.Symbol,
		Interval:    string(k.Interval),
		OpenTimeMs:  k.OpenTime.UnixMilli(),
		CloseTimeMs: k.CloseTime.UnixMilli(),
		Open:        k.Open,
		High:        k.High,
		Low:         k.Low,
		Close:       k.Close,
		BaseVolume:  k.BaseVolume,
		QuoteVolume: k.QuoteVolume,
		TradeCount:  k.TradeCount,
	}
}

func (r *klineRow) toDomain() *domain.Kline {
	return &domain.Kline{
		Symbol:      r.Symbol,
		Interval:    domain.Interval(r.Interval),
		OpenTime:    time.UnixMilli(r.OpenTimeMs).UTC(),
		CloseTime:   time.UnixMilli(r.CloseTimeMs).UTC(),
		Open:        r.Open,
		High:        r.High,
		Low:         r.Low,
		Close:       r.Close,
		BaseVolume:  r.BaseVolume,
		QuoteVolume: r.QuoteVolume,
		TradeCount:  r.TradeCount,
	}
}
