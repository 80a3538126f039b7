package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopsphere/shopsphere-api/internal/model"
)

// Envelope is the shape of every JSON response.
type Envelope struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message,omitempty"`
	Data       any         `json:"data,omitempty"`
	Count      *int        `json:"count,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}

func NewPagination(page, limit int, total int64) *Pagination {
	pages := int64(0)
	if limit > 0 {
		pages = (total + int64(limit) - 1) / int64(limit)
	}
	return &Pagination{Page: page, Limit: limit, Total: total, Pages: pages}
}

// --- Auth ---

type RegisterRequest struct {
	Name     string `json:"name" binding:"required,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type UpdateDetailsRequest struct {
	Name  string `json:"name" binding:"omitempty,max=50"`
	Email string `json:"email" binding:"omitempty,email"`
}

type UpdatePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=6"`
}

type AuthResponse struct {
	Success bool         `json:"success"`
	Token   string       `json:"token"`
	User    UserResponse `json:"user"`
}

type UserResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewUserResponse(u *model.User) UserResponse {
	return UserResponse{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role, CreatedAt: u.CreatedAt}
}

// --- Product ---

type InventoryRequest struct {
	Stock         int   `json:"stock" binding:"min=0"`
	TrackQuantity *bool `json:"trackQuantity"`
}

type CreateProductRequest struct {
	Name          string            `json:"name" binding:"required,max=100"`
	Description   string            `json:"description" binding:"required,max=1000"`
	Price         decimal.Decimal   `json:"price" binding:"required"`
	ComparePrice  *decimal.Decimal  `json:"comparePrice"`
	Category      string            `json:"category" binding:"required"`
	Brand         string            `json:"brand"`
	FeaturedImage string            `json:"featuredImage"`
	Inventory     *InventoryRequest `json:"inventory"`
	IsFeatured    bool              `json:"isFeatured"`
}

type UpdateProductRequest struct {
	Name          *string           `json:"name" binding:"omitempty,max=100"`
	Description   *string           `json:"description" binding:"omitempty,max=1000"`
	Price         *decimal.Decimal  `json:"price"`
	ComparePrice  *decimal.Decimal  `json:"comparePrice"`
	Category      *string           `json:"category"`
	Brand         *string           `json:"brand"`
	FeaturedImage *string           `json:"featuredImage"`
	Inventory     *InventoryRequest `json:"inventory"`
	IsActive      *bool             `json:"isActive"`
	IsFeatured    *bool             `json:"isFeatured"`
}

type ListProductsRequest struct {
	Page     int      `form:"page,default=1" binding:"min=1"`
	Limit    int      `form:"limit,default=12" binding:"min=1,max=100"`
	Search   string   `form:"search"`
	Category string   `form:"category"`
	MinPrice *float64 `form:"minPrice" binding:"omitempty,min=0"`
	MaxPrice *float64 `form:"maxPrice" binding:"omitempty,min=0"`
	Sort     string   `form:"sort,default=newest" binding:"omitempty,oneof=newest oldest price -price name rating popular"`
}

type ReviewRequest struct {
	Rating  int    `json:"rating" binding:"required"`
	Comment string `json:"comment" binding:"required,max=500"`
}

// --- Cart ---

type AddCartItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity"`
}

type UpdateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

type CartResponse struct {
	ID         string             `json:"id"`
	UserID     string             `json:"user"`
	Items      []CartItemResponse `json:"items"`
	TotalItems int                `json:"totalItems"`
	TotalPrice decimal.Decimal    `json:"totalPrice"`
	UpdatedAt  time.Time          `json:"updatedAt"`
}

// CartItemResponse carries the snapshot price plus the product's current
// name and image, when the product still exists.
type CartItemResponse struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product"`
	Name      string          `json:"name,omitempty"`
	Image     string          `json:"image,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// --- Order ---

type CreateOrderRequest struct {
	ShippingAddress model.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   string                `json:"paymentMethod"`
}

type PayOrderRequest struct {
	PaymentID  string `json:"paymentId"`
	Status     string `json:"status"`
	UpdateTime string `json:"updateTime"`
	Email      string `json:"email"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type ListOrdersRequest struct {
	Page   int    `form:"page,default=1" binding:"min=1"`
	Limit  int    `form:"limit,default=20" binding:"min=1,max=100"`
	Status string `form:"status"`
}

// --- Payment ---

type CheckoutSessionRequest struct {
	OrderID string `json:"orderId" binding:"required"`
}

type CheckoutSessionResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

type PaymentVerification struct {
	IsPaid bool              `json:"isPaid"`
	Status model.OrderStatus `json:"status"`
	PaidAt *time.Time        `json:"paidAt,omitempty"`
}

// --- Admin ---

type ListUsersRequest struct {
	Page  int `form:"page,default=1" binding:"min=1"`
	Limit int `form:"limit,default=20" binding:"min=1,max=100"`
}

type UpdateRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

type SalesReportRequest struct {
	StartDate string `form:"startDate"`
	EndDate   string `form:"endDate"`
	Format    string `form:"format" binding:"omitempty,oneof=json csv"`
}
