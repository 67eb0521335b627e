package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// OrderStatus mirrors the orders.status column.
type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "created"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PromotionScope mirrors the promotions.scope column.
type PromotionScope string

const (
	PromotionScopeProduct  PromotionScope = "product"
	PromotionScopeCategory PromotionScope = "category"
	PromotionScopeOrder    PromotionScope = "order"
)

type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
}

type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Product struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	SalePrice   int64  `json:"sale_price"`
	ImportPrice int64  `json:"import_price"`
	CategoryID  int64  `json:"category_id"`
}

type Promotion struct {
	ID              int64          `json:"id"`
	Name            string         `json:"name"`
	Description     pgtype.Text    `json:"description"`
	DiscountPercent int32          `json:"discount_percent"`
	StartDate       time.Time      `json:"start_date"`
	EndDate         time.Time      `json:"end_date"`
	Scope           PromotionScope `json:"scope"`
	CreatedAt       time.Time      `json:"created_at"`
}

// PromotionTargetRow is a promotion joined to one of its product or category targets.
type PromotionTargetRow struct {
	TargetID        int64
	PromotionID     int64
	DiscountPercent int32
	Scope           PromotionScope
	StartDate       time.Time
	EndDate         time.Time
}

type Order struct {
	ID         int64       `json:"id"`
	CustomerID pgtype.Int8 `json:"customer_id"`
	SaleID     int64       `json:"sale_id"`
	Status     OrderStatus `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
	TotalPrice int64       `json:"total_price"`
	Version    int32       `json:"version"`

	// PricedAt is when the item lines were last priced; DiscountedAt is when
	// the order promotion was last applied to the total.
	PricedAt     time.Time `json:"priced_at"`
	DiscountedAt time.Time `json:"discounted_at"`
}

type OrderItem struct {
	ID         int64 `json:"id"`
	OrderID    int64 `json:"order_id"`
	ProductID  int64 `json:"product_id"`
	Quantity   int32 `json:"quantity"`
	UnitPrice  int64 `json:"unit_price"`
	TotalPrice int64 `json:"total_price"`
}

// OrderSummaryRow is an order with its aggregated item figures.
type OrderSummaryRow struct {
	Order
	CustomerName pgtype.Text
	SaleName     string
	ItemsCount   int64
	Subtotal     int64
}

type KpiTier struct {
	ID                 int64       `json:"id"`
	Name               string      `json:"name"`
	Description        pgtype.Text `json:"description"`
	MinAchievedPercent int32       `json:"min_achieved_percent"`
	BonusPercent       int32       `json:"bonus_percent"`
	DisplayOrder       int32       `json:"display_order"`
}

type SaleKpiTarget struct {
	ID            int64              `json:"id"`
	SaleID        int64              `json:"sale_id"`
	Year          int32              `json:"year"`
	Month         int32              `json:"month"`
	TargetRevenue int64              `json:"target_revenue"`
	ActualRevenue int64              `json:"actual_revenue"`
	KpiTierID     pgtype.Int8        `json:"kpi_tier_id"`
	BonusAmount   int64              `json:"bonus_amount"`
	CalculatedAt  pgtype.Timestamptz `json:"calculated_at"`
	CreatedAt     time.Time          `json:"created_at"`
}

type KpiCommission struct {
	ID              int64       `json:"id"`
	SaleID          int64       `json:"sale_id"`
	Year            int32       `json:"year"`
	Month           int32       `json:"month"`
	KpiTierID       pgtype.Int8 `json:"kpi_tier_id"`
	TotalRevenue    int64       `json:"total_revenue"`
	TotalOrders     int32       `json:"total_orders"`
	BaseCommission  int64       `json:"base_commission"`
	BonusCommission int64       `json:"bonus_commission"`
	TotalCommission int64       `json:"total_commission"`
	CalculatedAt    time.Time   `json:"calculated_at"`
}

type DomainEvent struct {
	ID          uuid.UUID `json:"id"`
	Topic       string    `json:"topic"`
	AggregateID string    `json:"aggregate_id"`
	Payload     []byte    `json:"payload"`
	OccurredAt  time.Time `json:"occurred_at"`
}
