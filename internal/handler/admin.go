package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shopsphere/shopsphere-api/internal/dto"
	"github.com/shopsphere/shopsphere-api/internal/service"
)

type AdminHandler struct {
	adminService *service.AdminService
	log          *zap.Logger
}

func NewAdminHandler(adminService *service.AdminService, log *zap.Logger) *AdminHandler {
	return &AdminHandler{adminService: adminService, log: log}
}

func (h *AdminHandler) Dashboard(c *gin.Context) {
	d, err := h.adminService.Dashboard(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	ok(c, http.StatusOK, d)
}

func (h *AdminHandler) ListUsers(c *gin.Context) {
	var req dto.ListUsersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindFailed(c, err)
		return
	}

	users, page, err := h.adminService.ListUsers(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	okList(c, users, page)
}

func (h *AdminHandler) UpdateUserRole(c *gin.Context) {
	var req dto.UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	user, err := h.adminService.UpdateUserRole(c.Request.Context(), c.Param("id"), req.Role)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	okMessage(c, "User role updated", user)
}

func (h *AdminHandler) SalesReport(c *gin.Context) {
	var req dto.SalesReportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindFailed(c, err)
		return
	}

	report, err := h.adminService.SalesReport(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	if req.Format != "csv" {
		ok(c, http.StatusOK, report)
		return
	}
	out, err := service.SalesReportCSV(report)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	filename := fmt.Sprintf("sales-report-%s.csv", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", out)
}
