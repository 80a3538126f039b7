package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID        string    `bson:"_id" json:"id"`
	Name      string    `bson:"name" json:"name"`
	Email     string    `bson:"email" json:"email"`
	Password  string    `bson:"password" json:"-"`
	Role      string    `bson:"role" json:"role"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

const DefaultProductImage = "/images/default-product.jpg"

var Categories = []string{
	"Electronics",
	"Computers",
	"Smart Home",
	"Arts & Crafts",
	"Automotive",
	"Baby",
	"Beauty & Personal Care",
	"Books",
	"Fashion",
	"Health & Household",
	"Sports & Outdoors",
	"Tools & Home Improvement",
	"Toys & Games",
	"Other",
}

func ValidCategory(c string) bool {
	for _, known := range Categories {
		if known == c {
			return true
		}
	}
	return false
}

type Inventory struct {
	Stock         int  `bson:"stock" json:"stock"`
	TrackQuantity bool `bson:"trackQuantity" json:"trackQuantity"`
}

type Review struct {
	UserID    string    `bson:"user" json:"user"`
	Name      string    `bson:"name" json:"name"`
	Rating    int       `bson:"rating" json:"rating"`
	Comment   string    `bson:"comment" json:"comment"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// Product is a catalog entry. AverageRating and ReviewCount are derived from
// Reviews and are only ever written together with them.
type Product struct {
	ID            string           `bson:"_id" json:"id"`
	Name          string           `bson:"name" json:"name"`
	Description   string           `bson:"description" json:"description"`
	Price         decimal.Decimal  `bson:"price" json:"price"`
	ComparePrice  *decimal.Decimal `bson:"comparePrice,omitempty" json:"comparePrice,omitempty"`
	Category      string           `bson:"category" json:"category"`
	Brand         string           `bson:"brand,omitempty" json:"brand,omitempty"`
	FeaturedImage string           `bson:"featuredImage" json:"featuredImage"`
	Inventory     Inventory        `bson:"inventory" json:"inventory"`
	IsActive      bool             `bson:"isActive" json:"isActive"`
	IsFeatured    bool             `bson:"isFeatured" json:"isFeatured"`
	VendorID      string           `bson:"vendor" json:"vendor"`
	Reviews       []Review         `bson:"reviews" json:"reviews"`
	AverageRating float64          `bson:"averageRating" json:"averageRating"`
	ReviewCount   int              `bson:"reviewCount" json:"reviewCount"`
	SalesCount    int              `bson:"salesCount" json:"salesCount"`
	CreatedAt     time.Time        `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time        `bson:"updatedAt" json:"updatedAt"`
}

// HasStockFor reports whether qty units can be sold. Untracked products
// always can.
func (p *Product) HasStockFor(qty int) bool {
	return !p.Inventory.TrackQuantity || p.Inventory.Stock >= qty
}

func (p *Product) Image() string {
	if p.FeaturedImage == "" {
		return DefaultProductImage
	}
	return p.FeaturedImage
}

type Cart struct {
	ID        string     `bson:"_id" json:"id"`
	UserID    string     `bson:"user" json:"user"`
	Items     []CartItem `bson:"items" json:"items"`
	CreatedAt time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time  `bson:"updatedAt" json:"updatedAt"`
}

type CartItem struct {
	ID        string          `bson:"_id" json:"id"`
	ProductID string          `bson:"product" json:"product"`
	Quantity  int             `bson:"quantity" json:"quantity"`
	Price     decimal.Decimal `bson:"price" json:"price"`
}

// FindProduct returns the index of the line holding productID, or -1.
func (c *Cart) FindProduct(productID string) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// FindLine returns the index of the line with the given id, or -1.
func (c *Cart) FindLine(lineID string) int {
	for i := range c.Items {
		if c.Items[i].ID == lineID {
			return i
		}
	}
	return -1
}

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// fulfillment is the forward path an order moves along.
var fulfillment = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
}

// Rank returns the position of s on the fulfillment path, or -1 for
// cancelled, refunded and unknown statuses.
func (s OrderStatus) Rank() int {
	for i, st := range fulfillment {
		if st == s {
			return i
		}
	}
	return -1
}

func (s OrderStatus) Valid() bool {
	return s.Rank() >= 0 || s == OrderStatusCancelled || s == OrderStatusRefunded
}

type PaymentMethod string

const (
	PaymentMethodStripe         PaymentMethod = "stripe"
	PaymentMethodPayPal         PaymentMethod = "paypal"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodStripe, PaymentMethodPayPal, PaymentMethodCashOnDelivery:
		return true
	}
	return false
}

const DefaultCountry = "United States"

type ShippingAddress struct {
	FirstName string `bson:"firstName" json:"firstName"`
	LastName  string `bson:"lastName" json:"lastName"`
	Address   string `bson:"address" json:"address"`
	City      string `bson:"city" json:"city"`
	State     string `bson:"state" json:"state"`
	ZipCode   string `bson:"zipCode" json:"zipCode"`
	Country   string `bson:"country" json:"country"`
	Phone     string `bson:"phone,omitempty" json:"phone,omitempty"`
}

// Complete reports whether every required field is present. Country and
// phone are optional.
func (a ShippingAddress) Complete() bool {
	return a.FirstName != "" && a.LastName != "" && a.Address != "" &&
		a.City != "" && a.State != "" && a.ZipCode != ""
}

type PaymentResult struct {
	ID           string `bson:"id" json:"id"`
	Status       string `bson:"status" json:"status"`
	UpdateTime   string `bson:"updateTime" json:"updateTime"`
	EmailAddress string `bson:"emailAddress" json:"emailAddress"`
}

type Order struct {
	ID              string          `bson:"_id" json:"id"`
	UserID          string          `bson:"user" json:"user"`
	OrderNumber     string          `bson:"orderNumber" json:"orderNumber"`
	Items           []OrderItem     `bson:"orderItems" json:"orderItems"`
	ShippingAddress ShippingAddress `bson:"shippingAddress" json:"shippingAddress"`
	PaymentMethod   PaymentMethod   `bson:"paymentMethod" json:"paymentMethod"`
	PaymentResult   *PaymentResult  `bson:"paymentResult,omitempty" json:"paymentResult,omitempty"`
	ItemsPrice      decimal.Decimal `bson:"itemsPrice" json:"itemsPrice"`
	TaxPrice        decimal.Decimal `bson:"taxPrice" json:"taxPrice"`
	ShippingPrice   decimal.Decimal `bson:"shippingPrice" json:"shippingPrice"`
	TotalPrice      decimal.Decimal `bson:"totalPrice" json:"totalPrice"`
	IsPaid          bool            `bson:"isPaid" json:"isPaid"`
	PaidAt          *time.Time      `bson:"paidAt,omitempty" json:"paidAt,omitempty"`
	IsDelivered     bool            `bson:"isDelivered" json:"isDelivered"`
	DeliveredAt     *time.Time      `bson:"deliveredAt,omitempty" json:"deliveredAt,omitempty"`
	Status          OrderStatus     `bson:"status" json:"status"`
	CreatedAt       time.Time       `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time       `bson:"updatedAt" json:"updatedAt"`
}

// OrderItem is a snapshot of a product at checkout time. StockDeducted is the
// quantity actually removed from inventory when the order was paid.
type OrderItem struct {
	ProductID     string          `bson:"product" json:"product"`
	Name          string          `bson:"name" json:"name"`
	Image         string          `bson:"image" json:"image"`
	Price         decimal.Decimal `bson:"price" json:"price"`
	Quantity      int             `bson:"quantity" json:"quantity"`
	StockDeducted int             `bson:"stockDeducted" json:"-"`
}

// PaymentConfirmation carries the effects of the unpaid to paid transition.
type PaymentConfirmation struct {
	Status   OrderStatus
	PaidAt   time.Time
	Result   *PaymentResult
	Shipping *ShippingAddress
}

// StatusChange describes a non-payment status transition.
type StatusChange struct {
	Status      OrderStatus
	DeliveredAt *time.Time
}

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusSucceeded  PaymentStatus = "succeeded"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCanceled   PaymentStatus = "canceled"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

// Payment is the audit record of one processor checkout session.
type Payment struct {
	ID              string
	UserID          string
	OrderID         string
	SessionID       string
	PaymentIntentID string
	Amount          decimal.Decimal
	Currency        string
	Status          PaymentStatus
	Method          string
	Refunds         []Refund
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Refund struct {
	RefundID  string
	Amount    decimal.Decimal
	Reason    string
	CreatedAt time.Time
}

type NotificationKind string

const (
	NotifyOrderConfirmation   NotificationKind = "order_confirmation"
	NotifyPaymentConfirmation NotificationKind = "payment_confirmation"
	NotifyStatusUpdate        NotificationKind = "status_update"
)

type Notification struct {
	ID      string           `json:"id"`
	Kind    NotificationKind `json:"kind"`
	UserID  string           `json:"user_id"`
	OrderID string           `json:"order_id"`
}

// OrderEvent is published on the order event stream.
type OrderEvent struct {
	Type        string          `json:"type"`
	OrderID     string          `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	UserID      string          `json:"user_id"`
	Status      OrderStatus     `json:"status"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	IsPaid      bool            `json:"is_paid"`
	OccurredAt  time.Time       `json:"occurred_at"`
}
