package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bmr-suspension/storefront-backend/services/checkout-service/middleware"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/services"
)

type PayPalController struct {
	capture  PaymentCapturer
	checkout CheckoutStarter
	devMode  bool
}

func NewPayPalController(capture PaymentCapturer, checkout CheckoutStarter, devMode bool) *PayPalController {
	return &PayPalController{capture: capture, checkout: checkout, devMode: devMode}
}

// CreateOrder starts a PayPal checkout for the submitted cart.
func (pc *PayPalController) CreateOrder(c *gin.Context) {
	var req services.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "Invalid request", err)
		return
	}

	session, serr := pc.checkout.BeginPayPalCheckout(c.Request.Context(), middleware.GetUserID(c), &req)
	if serr != nil {
		writeError(c, pc.devMode, serr)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"orderId":     session.OrderID,
		"approvalUrl": session.ApprovalURL,
		"totals":      session.Totals,
	})
}

// Capture finalizes the checkout PayPal redirected back with ?token=.
func (pc *PayPalController) Capture(c *gin.Context) {
	out, serr := pc.capture.Capture(c.Request.Context(), c.Query("token"))
	if serr != nil {
		writeError(c, pc.devMode, serr)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"orderNumber": out.OrderNumber,
		"orderId":     out.OrderID,
	})
}
