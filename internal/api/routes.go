package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SetupRoutes sets up the API routes
func SetupRoutes(handler *Handler, apiToken string, log logrus.FieldLogger) *gin.Engine {
	router := gin.New()

	// Middleware
	router.Use(Recovery())
	router.Use(CORS())
	router.Use(Logger(log))

	base := router.Group("/api")
	{
		// Health check
		base.GET("/health", handler.HealthCheck)

		secured := base.Group("")
		secured.Use(BearerAuth(apiToken))
		{
			repos := secured.Group("/repositories")
			{
				repos.POST("", handler.CreateRepositories)
				repos.DELETE("", handler.DeleteRepositories)
				repos.GET("/:name/history", handler.GetRepositoryHistory)
			}

			batches := secured.Group("/batches")
			{
				batches.GET("", handler.ListBatches)
				batches.GET("/:id", handler.GetBatch)
			}

			secured.GET("/names", handler.GetNames)
		}
	}

	return router
}
