package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bmr-suspension/storefront-backend/services/checkout-service/models"
)

type AdminController struct {
	orders  OrderManager
	tiers   DealerTierManager
	pending PendingOrderPurger
	devMode bool
}

func NewAdminController(orders OrderManager, tiers DealerTierManager, pending PendingOrderPurger, devMode bool) *AdminController {
	return &AdminController{orders: orders, tiers: tiers, pending: pending, devMode: devMode}
}

func (ac *AdminController) ListDealerTiers(c *gin.Context) {
	tiers, serr := ac.tiers.List(c.Request.Context())
	if serr != nil {
		writeError(c, ac.devMode, serr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "tiers": tiers})
}

type updateDealerTierRequest struct {
	DiscountPercent *decimal.Decimal `json:"discountPercent" binding:"required"`
}

func (ac *AdminController) UpdateDealerTier(c *gin.Context) {
	tier, err := strconv.Atoi(c.Param("tier"))
	if err != nil {
		writeBadRequest(c, "Invalid tier", err)
		return
	}
	var req updateDealerTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "Invalid request", err)
		return
	}

	updated, serr := ac.tiers.Update(c.Request.Context(), tier, *req.DiscountPercent)
	if serr != nil {
		writeError(c, ac.devMode, serr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "tier": updated})
}

type updateStatusRequest struct {
	Status models.OrderStatus `json:"status" binding:"required"`
}

func (ac *AdminController) UpdateOrderStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeBadRequest(c, "Invalid order ID format", nil)
		return
	}
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "Invalid request", err)
		return
	}

	order, serr := ac.orders.UpdateStatus(c.Request.Context(), id, req.Status)
	if serr != nil {
		writeError(c, ac.devMode, serr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "order": order})
}

func (ac *AdminController) PurgeExpiredPendingOrders(c *gin.Context) {
	n, serr := ac.pending.PurgeExpired(c.Request.Context())
	if serr != nil {
		writeError(c, ac.devMode, serr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "deleted": n})
}

func (ac *AdminController) ReissueGiftCards(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeBadRequest(c, "Invalid order ID format", nil)
		return
	}

	res, serr := ac.orders.ReissueGiftCards(c.Request.Context(), id)
	if serr != nil {
		writeError(c, ac.devMode, serr)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"orderNumber": res.OrderNumber,
		"issued":      len(res.Issued),
		"giftCards":   res.Issued,
		"outstanding": res.Outstanding,
	})
}
