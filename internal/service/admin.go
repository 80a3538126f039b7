package service

import (
	"context"
	"fmt"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shopsphere/shopsphere-api/internal/dto"
	"github.com/shopsphere/shopsphere-api/internal/model"
	"github.com/shopsphere/shopsphere-api/internal/repository"
)

const (
	dashboardRecentOrders = 10
	dashboardPopularLimit = 5
	dashboardSalesWindow  = 30 * 24 * time.Hour
	reportDateLayout      = "2006-01-02"
)

var ErrInvalidDate = &Error{KindValidation, "Dates must be formatted as YYYY-MM-DD or RFC 3339"}

type AdminService struct {
	reports   repository.ReportRepository
	userRepo  repository.UserRepository
	orderRepo repository.OrderRepository
	log       *zap.Logger
}

func NewAdminService(reports repository.ReportRepository, userRepo repository.UserRepository, orderRepo repository.OrderRepository, log *zap.Logger) *AdminService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminService{reports: reports, userRepo: userRepo, orderRepo: orderRepo, log: log}
}

// Dashboard gathers the overview figures concurrently.
func (s *AdminService) Dashboard(ctx context.Context) (*model.Dashboard, error) {
	var d model.Dashboard
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		d.Overview.TotalUsers, err = s.reports.CountUsers(gctx)
		return err
	})
	g.Go(func() (err error) {
		d.Overview.TotalProducts, err = s.reports.CountProducts(gctx)
		return err
	})
	g.Go(func() (err error) {
		d.Overview.TotalOrders, err = s.reports.CountOrders(gctx)
		return err
	})
	g.Go(func() (err error) {
		d.Overview.TotalRevenue, err = s.reports.PaidRevenue(gctx)
		return err
	})
	g.Go(func() (err error) {
		d.RecentOrders, _, err = s.orderRepo.List(gctx, repository.OrderFilter{Limit: dashboardRecentOrders})
		return err
	})
	g.Go(func() (err error) {
		d.SalesData, err = s.reports.DailySales(gctx, time.Now().UTC().Add(-dashboardSalesWindow))
		return err
	})
	g.Go(func() (err error) {
		d.PopularProducts, err = s.reports.PopularProducts(gctx, dashboardPopularLimit)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}
	if d.RecentOrders == nil {
		d.RecentOrders = []model.Order{}
	}
	return &d, nil
}

func (s *AdminService) ListUsers(ctx context.Context, req dto.ListUsersRequest) ([]dto.UserResponse, *dto.Pagination, error) {
	users, total, err := s.userRepo.List(ctx, req.Limit, (req.Page-1)*req.Limit)
	if err != nil {
		return nil, nil, fmt.Errorf("list users: %w", err)
	}
	resp := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		resp = append(resp, dto.NewUserResponse(&users[i]))
	}
	return resp, dto.NewPagination(req.Page, req.Limit, total), nil
}

func (s *AdminService) UpdateUserRole(ctx context.Context, userID, role string) (*dto.UserResponse, error) {
	if role != model.RoleUser && role != model.RoleAdmin {
		return nil, ErrInvalidRole
	}
	ok, err := s.userRepo.UpdateRole(ctx, userID, role)
	if err != nil {
		return nil, fmt.Errorf("update role: %w", err)
	}
	if !ok {
		return nil, ErrUserNotFound
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	s.log.Info("user role changed", zap.String("user_id", userID), zap.String("role", role))
	resp := dto.NewUserResponse(user)
	return &resp, nil
}

// SalesReport summarizes paid orders created in the range. A date-only end
// bound covers the whole day.
func (s *AdminService) SalesReport(ctx context.Context, req dto.SalesReportRequest) (*model.SalesReport, error) {
	start, err := parseReportDate(req.StartDate, false)
	if err != nil {
		return nil, err
	}
	end, err := parseReportDate(req.EndDate, true)
	if err != nil {
		return nil, err
	}

	orders, err := s.reports.PaidOrders(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("sales report: %w", err)
	}

	report := &model.SalesReport{
		TotalOrders:       len(orders),
		TotalRevenue:      decimal.Zero,
		AverageOrderValue: decimal.Zero,
		Orders:            orders,
	}
	for _, o := range orders {
		report.TotalRevenue = report.TotalRevenue.Add(o.TotalPrice)
	}
	if len(orders) > 0 {
		report.AverageOrderValue = report.TotalRevenue.Div(decimal.NewFromInt(int64(len(orders)))).Round(2)
	}
	return report, nil
}

// SalesReportCSV renders one row per order of the report.
func SalesReportCSV(report *model.SalesReport) ([]byte, error) {
	rows := make([]*model.SalesReportRow, 0, len(report.Orders))
	for _, o := range report.Orders {
		items := 0
		for _, it := range o.Items {
			items += it.Quantity
		}
		row := &model.SalesReportRow{
			OrderNumber: o.OrderNumber,
			OrderID:     o.ID,
			UserID:      o.UserID,
			Status:      string(o.Status),
			Items:       items,
			ItemsPrice:  o.ItemsPrice.StringFixed(2),
			TaxPrice:    o.TaxPrice.StringFixed(2),
			Shipping:    o.ShippingPrice.StringFixed(2),
			TotalPrice:  o.TotalPrice.StringFixed(2),
			CreatedAt:   o.CreatedAt,
		}
		if o.PaidAt != nil {
			row.PaidAt = *o.PaidAt
		}
		rows = append(rows, row)
	}
	out, err := gocsv.MarshalBytes(&rows)
	if err != nil {
		return nil, fmt.Errorf("marshal sales report: %w", err)
	}
	return out, nil
}

func parseReportDate(v string, endOfDay bool) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(reportDateLayout, v)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
