package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bmr-suspension/storefront-backend/services/checkout-service/middleware"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/services"
)

type CardController struct {
	card    CardCheckout
	devMode bool
}

func NewCardController(card CardCheckout, devMode bool) *CardController {
	return &CardController{card: card, devMode: devMode}
}

// Checkout charges a card and creates the order.
func (cc *CardController) Checkout(c *gin.Context) {
	var req services.CardCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "Invalid request", err)
		return
	}

	out, serr := cc.card.Checkout(c.Request.Context(), middleware.GetUserID(c), &req)
	if serr != nil {
		writeError(c, cc.devMode, serr)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"orderNumber": out.OrderNumber,
		"orderId":     out.OrderID,
	})
}
