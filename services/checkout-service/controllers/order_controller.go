package controllers

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/bmr-suspension/storefront-backend/services/checkout-service/middleware"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/models"
)

type OrderController struct {
	orders  OrderManager
	devMode bool
}

func NewOrderController(orders OrderManager, devMode bool) *OrderController {
	return &OrderController{orders: orders, devMode: devMode}
}

// CreateOrder is the create-order collaborator endpoint.
func (oc *OrderController) CreateOrder(c *gin.Context) {
	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.CreateOrderResponse{Success: false, Error: "Invalid request", Message: err.Error()})
		return
	}

	order, serr := oc.orders.CreateOrder(c.Request.Context(), &req)
	if serr != nil {
		_ = c.Error(serr)
		resp := gin.H{"success": false, "error": serr.Message}
		if oc.devMode && serr.Err != nil {
			resp["message"] = serr.Err.Error()
			resp["stack"] = string(debug.Stack())
		}
		c.JSON(serr.StatusCode, resp)
		return
	}

	c.JSON(http.StatusCreated, models.CreateOrderResponse{
		Success:     true,
		OrderNumber: order.OrderNumber,
		OrderID:     order.ID.String(),
	})
}

// GetOrder returns the order confirmation data for an order number to the
// buyer, identified by ?email= or by their session.
func (oc *OrderController) GetOrder(c *gin.Context) {
	order, serr := oc.orders.LookupOrder(c.Request.Context(), c.Param("orderNumber"), c.Query("email"), middleware.GetUserID(c))
	if serr != nil {
		writeError(c, oc.devMode, serr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "order": order})
}
