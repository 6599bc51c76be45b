package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	awspkg "github.com/bmr-suspension/storefront-backend/pkg/aws"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/controllers"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/middleware"
	"github.com/bmr-suspension/storefront-backend/services/common/auth"
	apperrors "github.com/bmr-suspension/storefront-backend/services/common/errors"
	"github.com/bmr-suspension/storefront-backend/services/common/logger"
	commonmw "github.com/bmr-suspension/storefront-backend/services/common/middleware"
)

const serviceName = "checkout-service"

type Handlers struct {
	PayPal *controllers.PayPalController
	Orders *controllers.OrderController
	Card   *controllers.CardController
	Admin  *controllers.AdminController
	Health *controllers.HealthController
}

type Options struct {
	Logger         *zap.Logger
	Metrics        *awspkg.MetricsClient
	Verifier       *auth.Verifier
	AllowedOrigins []string
	// ServiceToken is the shared secret required to create orders.
	ServiceToken string
	// CheckoutPerMinute limits payment-starting and capture calls per IP.
	CheckoutPerMinute int
	CheckoutBurst     int
}

// NewRouter builds the engine with the shared middleware chain and every
// checkout route mounted.
func NewRouter(h Handlers, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.RequestID())
	r.Use(commonmw.RequestLogger(opts.Logger))
	r.Use(commonmw.SecurityHeaders())
	r.Use(commonmw.CORSMiddleware(opts.AllowedOrigins))
	r.Use(commonmw.MetricsMiddleware(opts.Metrics, serviceName))
	r.Use(apperrors.ErrorMiddleware())

	RegisterRoutes(r, h, opts)

	r.NoRoute(func(c *gin.Context) {
		_ = c.Error(apperrors.ErrNotFound)
	})
	return r
}

func RegisterRoutes(r *gin.Engine, h Handlers, opts Options) {
	r.GET("/health", h.Health.Health)

	limited := commonmw.RateLimitMiddleware(opts.CheckoutPerMinute, opts.CheckoutBurst)

	api := r.Group("/api")
	api.Use(middleware.OptionalAuth(opts.Verifier))
	{
		api.POST("/paypal/create-order", limited, h.PayPal.CreateOrder)
		api.GET("/paypal/capture", limited, h.PayPal.Capture)
		api.POST("/checkout/card", limited, h.Card.Checkout)

		api.POST("/orders", middleware.RequireServiceToken(opts.ServiceToken), h.Orders.CreateOrder)
		api.GET("/orders/:orderNumber", limited, h.Orders.GetOrder)
	}

	admin := r.Group("/admin")
	admin.Use(middleware.RequireAdmin(opts.Verifier))
	{
		admin.GET("/dealer-tiers", h.Admin.ListDealerTiers)
		admin.PUT("/dealer-tiers/:tier", h.Admin.UpdateDealerTier)
		admin.PATCH("/orders/:id/status", h.Admin.UpdateOrderStatus)
		admin.POST("/orders/:id/gift-cards/reissue", h.Admin.ReissueGiftCards)
		admin.DELETE("/pending-orders/expired", h.Admin.PurgeExpiredPendingOrders)
	}
}
