package router

import (
	"model-sweep/internal/handler"
	"model-sweep/internal/service"

	"github.com/gin-gonic/gin"
)

func SetupRouter(svc *service.ServiceContext) *gin.Engine {
	var reader handler.SweepReader
	if svc.SweepStore != nil {
		reader = svc.SweepStore
	}
	var runner handler.SweepRunner
	if svc.SweepRunner != nil {
		runner = svc.SweepRunner
	}
	return newEngine(handler.NewSweepHandler(runner, reader))
}

func newEngine(sweepHandler *handler.SweepHandler) *gin.Engine {
	r := gin.Default()

	// CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// API路由
	api := r.Group("/api")
	{
		api.GET("/health", handler.Health)

		// sweep 相关
		sweeps := api.Group("/sweeps")
		{
			sweeps.POST("/run", sweepHandler.RunSweep)
			sweeps.GET("", sweepHandler.ListSweeps)
			sweeps.GET("/:id", sweepHandler.GetSweep)
		}
	}

	return r
}
