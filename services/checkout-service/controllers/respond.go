package controllers

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/bmr-suspension/storefront-backend/services/checkout-service/services"
)

// writeError renders {success:false, message}. The cause and a stack
// trace are added only in development.
func writeError(c *gin.Context, devMode bool, serr *services.ServiceError) {
	_ = c.Error(serr)
	body := gin.H{"success": false, "message": serr.Message}
	if devMode && serr.Err != nil {
		body["error"] = serr.Err.Error()
		body["stack"] = string(debug.Stack())
	}
	c.JSON(serr.StatusCode, body)
}

func writeBadRequest(c *gin.Context, message string, err error) {
	body := gin.H{"success": false, "message": message}
	if err != nil {
		body["details"] = err.Error()
	}
	c.JSON(http.StatusBadRequest, body)
}
