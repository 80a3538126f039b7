package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shopsphere/shopsphere-api/internal/dto"
	"github.com/shopsphere/shopsphere-api/internal/model"
	"github.com/shopsphere/shopsphere-api/internal/repository"
)

const (
	productCacheTTL   = 60 * time.Second
	reviewSaveRetries = 3
)

var ErrInvalidPrice = &Error{KindValidation, "Price must not be negative"}

type ProductService struct {
	productRepo repository.ProductRepository
	redisClient *redis.Client
	log         *zap.Logger
}

func NewProductService(productRepo repository.ProductRepository, redisClient *redis.Client, log *zap.Logger) *ProductService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProductService{productRepo: productRepo, redisClient: redisClient, log: log}
}

func (s *ProductService) Create(ctx context.Context, vendorID string, req dto.CreateProductRequest) (*model.Product, error) {
	if !model.ValidCategory(req.Category) {
		return nil, ErrInvalidCategory
	}
	if req.Price.IsNegative() || (req.ComparePrice != nil && req.ComparePrice.IsNegative()) {
		return nil, ErrInvalidPrice
	}

	product := &model.Product{
		Name:          strings.TrimSpace(req.Name),
		Description:   req.Description,
		Price:         req.Price,
		ComparePrice:  req.ComparePrice,
		Category:      req.Category,
		Brand:         req.Brand,
		FeaturedImage: req.FeaturedImage,
		Inventory:     model.Inventory{TrackQuantity: true},
		IsActive:      true,
		IsFeatured:    req.IsFeatured,
		VendorID:      vendorID,
	}
	if product.FeaturedImage == "" {
		product.FeaturedImage = model.DefaultProductImage
	}
	inv := req.Inventory
	if inv != nil && inv.Stock < 0 {
		return nil, newError(KindValidation, "Stock must not be negative")
	}

	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return product, nil
}

// Get returns an active product, reading through the cache.
func (s *ProductService) Get(ctx context.Context, id string) (*model.Product, error) {
	cacheKey := productCacheKey(id)

	if s.redisClient != nil {
		if cached, err := s.redisClient.Get(ctx, cacheKey).Result(); err == nil {
			var p model.Product
			if json.Unmarshal([]byte(cached), &p) == nil {
				return &p, nil
			}
		}
	}

	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil || !product.IsActive {
		return nil, ErrProductNotFound
	}

	if s.redisClient != nil {
		if data, err := json.Marshal(product); err == nil {
			s.redisClient.Set(ctx, cacheKey, data, productCacheTTL)
		}
	}
	return product, nil
}

func (s *ProductService) List(ctx context.Context, req dto.ListProductsRequest) ([]model.Product, *dto.Pagination, error) {
	filter := repository.ProductFilter{
		Search:     strings.TrimSpace(req.Search),
		Category:   req.Category,
		ActiveOnly: true,
		Sort:       req.Sort,
		Limit:      req.Limit,
		Offset:     (req.Page - 1) * req.Limit,
	}
	if req.MinPrice != nil {
		d := decimal.NewFromFloat(*req.MinPrice)
		filter.MinPrice = &d
	}
	if req.MaxPrice != nil {
		d := decimal.NewFromFloat(*req.MaxPrice)
		filter.MaxPrice = &d
	}

	products, total, err := s.productRepo.List(ctx, filter)
	if err != nil {
		return nil, nil, fmt.Errorf("list products: %w", err)
	}
	if products == nil {
		products = []model.Product{}
	}
	return products, dto.NewPagination(req.Page, req.Limit, total), nil
}

// VendorProducts lists everything the vendor created, inactive included.
func (s *ProductService) VendorProducts(ctx context.Context, vendorID string) ([]model.Product, error) {
	products, _, err := s.productRepo.List(ctx, repository.ProductFilter{VendorID: vendorID, Sort: "newest"})
	if err != nil {
		return nil, fmt.Errorf("list vendor products: %w", err)
	}
	if products == nil {
		products = []model.Product{}
	}
	return products, nil
}

func (s *ProductService) Update(ctx context.Context, actor Actor, id string, req dto.UpdateProductRequest) (*model.Product, error) {
	product, err := s.ownedProduct(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		product.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		product.Description = *req.Description
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			return nil, ErrInvalidPrice
		}
		product.Price = *req.Price
	}
	if req.ComparePrice != nil {
		if req.ComparePrice.IsNegative() {
			return nil, ErrInvalidPrice
		}
		product.ComparePrice = req.ComparePrice
	}
	if req.Category != nil {
		if !model.ValidCategory(*req.Category) {
			return nil, ErrInvalidCategory
		}
		product.Category = *req.Category
	}
	if req.Brand != nil {
		product.Brand = *req.Brand
	}
	if req.FeaturedImage != nil {
		product.FeaturedImage = *req.FeaturedImage
	}
	inv := req.Inventory
	if inv != nil && inv.Stock < 0 {
		return nil, newError(KindValidation, "Stock must not be negative")
	}
	if req.IsActive != nil {
		product.IsActive = *req.IsActive
	}
	if req.IsFeatured != nil {
		product.IsFeatured = *req.IsFeatured
	}

	if err := s.productRepo.Update(ctx, product); err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	if inv != nil {
		if err := s.productRepo.SetInventory(ctx, id, inv.Stock, inv.TrackQuantity); err != nil {
			return nil, fmt.Errorf("update product: %w", err)
		}
		product.Inventory.Stock = inv.Stock
		if inv.TrackQuantity != nil {
			product.Inventory.TrackQuantity = *inv.TrackQuantity
		}
	}
	s.invalidateCache(ctx, id)
	return product, nil
}

// Delete deactivates the product. Orders keep referring to it.
func (s *ProductService) Delete(ctx context.Context, actor Actor, id string) error {
	if _, err := s.ownedProduct(ctx, actor, id); err != nil {
		return err
	}
	if _, err := s.productRepo.SetActive(ctx, id, false); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	s.invalidateCache(ctx, id)
	return nil
}

func (s *ProductService) AddReview(ctx context.Context, user Actor, id string, req dto.ReviewRequest) (*model.Product, error) {
	if req.Rating < 1 || req.Rating > 5 {
		return nil, ErrInvalidRating
	}

	for attempt := 0; attempt < reviewSaveRetries; attempt++ {
		product, err := s.productRepo.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get product: %w", err)
		}
		if product == nil || !product.IsActive {
			return nil, ErrProductNotFound
		}
		for _, r := range product.Reviews {
			if r.UserID == user.ID {
				return nil, ErrAlreadyReviewed
			}
		}

		prevCount := product.ReviewCount
		reviews := append(product.Reviews, model.Review{
			UserID:    user.ID,
			Name:      user.Name,
			Rating:    req.Rating,
			Comment:   strings.TrimSpace(req.Comment),
			CreatedAt: time.Now().UTC(),
		})
		avg, count := RatingSummary(reviews)

		saved, err := s.productRepo.SaveReviews(ctx, id, reviews, avg, count, prevCount)
		if err != nil {
			return nil, fmt.Errorf("save review: %w", err)
		}
		if saved {
			s.invalidateCache(ctx, id)
			product.Reviews, product.AverageRating, product.ReviewCount = reviews, avg, count
			return product, nil
		}
		s.log.Debug("review save lost a race, retrying", zap.String("product_id", id), zap.Int("attempt", attempt+1))
	}
	return nil, newError(KindInvalidState, "Product was reviewed concurrently, please retry")
}

// ConsumeStock removes qty units from a tracked product and reports whether
// anything was deducted.
func (s *ProductService) ConsumeStock(ctx context.Context, id string, qty int) (bool, error) {
	remaining, tracked, err := s.productRepo.ConsumeStock(ctx, id, qty)
	if err != nil {
		return false, err
	}
	if tracked && remaining < 0 {
		s.log.Warn("stock went negative", zap.String("product_id", id), zap.Int("stock", remaining))
	}
	s.invalidateCache(ctx, id)
	return tracked, nil
}

func (s *ProductService) RestoreStock(ctx context.Context, id string, qty int) error {
	if err := s.productRepo.RestoreStock(ctx, id, qty); err != nil {
		return err
	}
	s.invalidateCache(ctx, id)
	return nil
}

func (s *ProductService) IncrementSales(ctx context.Context, id string, qty int) error {
	if err := s.productRepo.IncrementSales(ctx, id, qty); err != nil {
		return err
	}
	s.invalidateCache(ctx, id)
	return nil
}

// Lookup returns the product regardless of its active flag, bypassing the
// cache. A missing product yields nil.
func (s *ProductService) Lookup(ctx context.Context, id string) (*model.Product, error) {
	return s.productRepo.GetByID(ctx, id)
}

func (s *ProductService) ownedProduct(ctx context.Context, actor Actor, id string) (*model.Product, error) {
	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}
	if product.VendorID != actor.ID && !actor.IsAdmin() {
		return nil, ErrNotProductOwner
	}
	return product, nil
}

func (s *ProductService) invalidateCache(ctx context.Context, id string) {
	if s.redisClient != nil {
		if err := s.redisClient.Del(ctx, productCacheKey(id)).Err(); err != nil {
			s.log.Warn("product cache invalidation failed", zap.String("product_id", id), zap.Error(err))
		}
	}
}

func productCacheKey(id string) string {
	return "product:" + id
}
