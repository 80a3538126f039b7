package service

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/shopsphere/shopsphere-api/internal/model"
)

var (
	taxRate               = decimal.RequireFromString("0.10")
	freeShippingThreshold = decimal.NewFromInt(100)
	flatShippingFee       = decimal.NewFromInt(10)
)

// OrderTotals holds the money fields derived from an order's items.
type OrderTotals struct {
	ItemsPrice    decimal.Decimal
	TaxPrice      decimal.Decimal
	ShippingPrice decimal.Decimal
	TotalPrice    decimal.Decimal
}

// ComputeOrderTotals derives every money field from the line items alone.
// Shipping is free strictly above the threshold.
func ComputeOrderTotals(items []model.OrderItem) OrderTotals {
	itemsPrice := decimal.Zero
	for _, item := range items {
		itemsPrice = itemsPrice.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	tax := itemsPrice.Mul(taxRate).Round(2)
	shipping := flatShippingFee
	if itemsPrice.GreaterThan(freeShippingThreshold) {
		shipping = decimal.Zero
	}

	return OrderTotals{
		ItemsPrice:    itemsPrice,
		TaxPrice:      tax,
		ShippingPrice: shipping,
		TotalPrice:    itemsPrice.Add(tax).Add(shipping).Round(2),
	}
}

// ApplyTotals overwrites the order's money fields from its items.
func ApplyTotals(order *model.Order) {
	t := ComputeOrderTotals(order.Items)
	order.ItemsPrice = t.ItemsPrice
	order.TaxPrice = t.TaxPrice
	order.ShippingPrice = t.ShippingPrice
	order.TotalPrice = t.TotalPrice
}

// CartTotals returns the item count and snapshot value of a cart.
func CartTotals(cart *model.Cart) (int, decimal.Decimal) {
	count := 0
	total := decimal.Zero
	for _, item := range cart.Items {
		count += item.Quantity
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return count, total
}

// RatingSummary returns the mean rating rounded to one decimal and the review
// count. No reviews yields 0, 0.
func RatingSummary(reviews []model.Review) (float64, int) {
	if len(reviews) == 0 {
		return 0, 0
	}
	sum := 0
	for _, r := range reviews {
		sum += r.Rating
	}
	mean := float64(sum) / float64(len(reviews))
	return math.Round(mean*10) / 10, len(reviews)
}

// toCents converts a decimal amount to the processor's minor unit.
func toCents(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
