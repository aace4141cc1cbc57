package restapi

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// RouterOptions toggles the optional surfaces of the router.
type RouterOptions struct {
	SwaggerEnabled bool
	SwaggerPath    string
	SwaggerFile    string
	MetricsEnabled bool
}

// SetupRouter builds the Gin engine with all wallet routes.
func SetupRouter(h *WalletHandler, opts RouterOptions) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
	}))

	router.GET("/healthz", h.HealthHandler)

	v1 := router.Group("/api/v1")
	{
		wallet := v1.Group("/wallet")
		wallet.GET("/address", h.GetAddressHandler)
		wallet.GET("/balance", h.GetBalanceHandler)
		wallet.GET("/status", h.GetWalletStatusHandler)

		txs := v1.Group("/transactions")
		txs.POST("", h.InitiateSendHandler)
		txs.POST("/send-and-wait", h.SendAndWaitHandler)
		txs.GET("", h.ListTransactionsHandler)
		txs.GET("/pending", h.ListPendingTransactionsHandler)
		txs.GET("/:id", h.GetTransactionStatusHandler)

		v1.GET("/receipts/:identifier", h.ConfirmReceiptHandler)
	}

	if opts.MetricsEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	if opts.SwaggerEnabled {
		path := opts.SwaggerPath
		if path == "" {
			path = "/swagger"
		}
		docFile := opts.SwaggerFile
		if docFile == "" {
			docFile = "./docs/swagger.yaml"
		}
		router.StaticFile("/docs/swagger.yaml", docFile)
		router.GET(path+"/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/docs/swagger.yaml")))
	}

	return router
}
