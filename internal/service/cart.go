package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shopsphere/shopsphere-api/internal/dto"
	"github.com/shopsphere/shopsphere-api/internal/model"
	"github.com/shopsphere/shopsphere-api/internal/repository"
)

type CartService struct {
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
}

func NewCartService(cartRepo repository.CartRepository, productRepo repository.ProductRepository) *CartService {
	return &CartService{cartRepo: cartRepo, productRepo: productRepo}
}

func (s *CartService) GetCart(ctx context.Context, userID string) (*dto.CartResponse, error) {
	cart, err := s.cartRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get or create cart: %w", err)
	}
	return s.toResponse(ctx, cart), nil
}

// AddItem merges quantity into the product's line, or appends a new line
// priced at the product's current price.
func (s *CartService) AddItem(ctx context.Context, userID, productID string, quantity int) (*dto.CartResponse, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil || !product.IsActive {
		return nil, ErrProductNotFound
	}

	cart, err := s.cartRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get or create cart: %w", err)
	}

	if i := cart.FindProduct(productID); i >= 0 {
		newQty := cart.Items[i].Quantity + quantity
		if !product.HasStockFor(newQty) {
			return nil, insufficientStock(product.Inventory.Stock)
		}
		cart.Items[i].Quantity = newQty
	} else {
		if !product.HasStockFor(quantity) {
			return nil, insufficientStock(product.Inventory.Stock)
		}
		cart.Items = append(cart.Items, model.CartItem{
			ID:        uuid.NewString(),
			ProductID: productID,
			Quantity:  quantity,
			Price:     product.Price,
		})
	}

	if err := s.cartRepo.Save(ctx, cart); err != nil {
		return nil, fmt.Errorf("save cart: %w", err)
	}
	return s.toResponse(ctx, cart), nil
}

func (s *CartService) UpdateItem(ctx context.Context, userID, lineID string, quantity int) (*dto.CartResponse, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	cart, err := s.cartRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	i := cart.FindLine(lineID)
	if i < 0 {
		return nil, ErrCartItemNotFound
	}

	product, err := s.productRepo.GetByID(ctx, cart.Items[i].ProductID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}
	if !product.HasStockFor(quantity) {
		return nil, insufficientStock(product.Inventory.Stock)
	}

	cart.Items[i].Quantity = quantity
	if err := s.cartRepo.Save(ctx, cart); err != nil {
		return nil, fmt.Errorf("save cart: %w", err)
	}
	return s.toResponse(ctx, cart), nil
}

// RemoveItem drops the line if present; a missing line is not an error.
func (s *CartService) RemoveItem(ctx context.Context, userID, lineID string) (*dto.CartResponse, error) {
	cart, err := s.cartRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	if i := cart.FindLine(lineID); i >= 0 {
		cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
		if err := s.cartRepo.Save(ctx, cart); err != nil {
			return nil, fmt.Errorf("save cart: %w", err)
		}
	}
	return s.toResponse(ctx, cart), nil
}

func (s *CartService) Clear(ctx context.Context, userID string) (*dto.CartResponse, error) {
	cart, err := s.cartRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	cart.Items = []model.CartItem{}
	if err := s.cartRepo.Save(ctx, cart); err != nil {
		return nil, fmt.Errorf("clear cart: %w", err)
	}
	return s.toResponse(ctx, cart), nil
}

func (s *CartService) toResponse(ctx context.Context, cart *model.Cart) *dto.CartResponse {
	count, total := CartTotals(cart)
	resp := &dto.CartResponse{
		ID:         cart.ID,
		UserID:     cart.UserID,
		Items:      make([]dto.CartItemResponse, 0, len(cart.Items)),
		TotalItems: count,
		TotalPrice: total,
		UpdatedAt:  cart.UpdatedAt,
	}
	for _, item := range cart.Items {
		line := dto.CartItemResponse{
			ID:        item.ID,
			ProductID: item.ProductID,
			Price:     item.Price,
			Quantity:  item.Quantity,
			Subtotal:  item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))),
		}
		if p, err := s.productRepo.GetByID(ctx, item.ProductID); err == nil && p != nil {
			line.Name = p.Name
			line.Image = p.Image()
		}
		resp.Items = append(resp.Items, line)
	}
	return resp
}
