package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type DashboardOverview struct {
	TotalUsers    int64           `json:"totalUsers"`
	TotalProducts int64           `json:"totalProducts"`
	TotalOrders   int64           `json:"totalOrders"`
	TotalRevenue  decimal.Decimal `json:"totalRevenue"`
}

// DailySales is one day of paid sales; Date is YYYY-MM-DD (UTC).
type DailySales struct {
	Date       string          `bson:"_id" json:"date"`
	TotalSales decimal.Decimal `bson:"totalSales" json:"totalSales"`
	OrderCount int             `bson:"orderCount" json:"orderCount"`
}

type ProductSales struct {
	ID            string          `bson:"_id" json:"id"`
	Name          string          `bson:"name" json:"name"`
	Price         decimal.Decimal `bson:"price" json:"price"`
	FeaturedImage string          `bson:"featuredImage" json:"featuredImage"`
	SalesCount    int             `bson:"salesCount" json:"salesCount"`
}

type Dashboard struct {
	Overview        DashboardOverview `json:"overview"`
	RecentOrders    []Order           `json:"recentOrders"`
	SalesData       []DailySales      `json:"salesData"`
	PopularProducts []ProductSales    `json:"popularProducts"`
}

type SalesReport struct {
	TotalOrders       int             `json:"totalOrders"`
	TotalRevenue      decimal.Decimal `json:"totalRevenue"`
	AverageOrderValue decimal.Decimal `json:"averageOrderValue"`
	Orders            []Order         `json:"orders"`
}

// SalesReportRow is the flattened CSV shape of one paid order.
type SalesReportRow struct {
	OrderNumber string    `csv:"order_number"`
	OrderID     string    `csv:"order_id"`
	UserID      string    `csv:"user_id"`
	Status      string    `csv:"status"`
	Items       int       `csv:"items"`
	ItemsPrice  string    `csv:"items_price"`
	TaxPrice    string    `csv:"tax_price"`
	Shipping    string    `csv:"shipping_price"`
	TotalPrice  string    `csv:"total_price"`
	PaidAt      time.Time `csv:"paid_at"`
	CreatedAt   time.Time `csv:"created_at"`
}
