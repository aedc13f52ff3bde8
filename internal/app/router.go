package app

import (
	"exam_prep_backend/docs"
	"exam_prep_backend/internal/config"
	"exam_prep_backend/internal/middleware"
	"exam_prep_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}

	// 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		tests := authGroup.Group("/tests")
		{
			tests.POST("/submit", c.test.SubmitTest)
			tests.GET("/records", c.test.ListTestRecords)
			tests.GET("/detail/:id", c.test.GetTestDetail)

			tests.GET("/ai-analysis-status/:examId", c.test.GetAnalysisStatus)
			tests.POST("/ai-analysis-retry/:examId", c.test.RetryAnalysis)

			// :id 在 GET/start/advance/jump 中是考试ID，在 PUT 中是进度ID
			tests.GET("/review-progress/:id", c.test.GetReviewProgress)
			tests.POST("/review-progress", c.test.CreateReviewProgress)
			tests.PUT("/review-progress/:id", c.test.UpdateReviewProgress)
			tests.POST("/review-progress/:id/start", c.test.StartReview)
			tests.POST("/review-progress/:id/advance", c.test.AdvanceReview)
			tests.POST("/review-progress/:id/jump", c.test.JumpReview)

			tests.GET("/practice-questions", c.test.GetPracticeQuestions)
		}
	}
}
