package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) SetUpRouter() *gin.Engine {
	router := gin.New()
	router.Use(RequestId())
	router.Use(Logger())
	router.Use(gin.Recovery())
	router.MaxMultipartMemory = s.conf.Upload.MaxFileSize

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "ok",
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{"error": "not found"})
	})

	ui := router.Group("/ui")
	s.SetUpUIRouter(ui)

	return router
}

func (s *Server) SetUpUIRouter(ui *gin.RouterGroup) {
	ui.GET("/state", s.handleGetState)
	ui.GET("/status", s.handleGetStatus)

	ui.POST("/files", s.handleSelectFiles)
	ui.GET("/fixtures", s.handleListFixtures)
	ui.POST("/fixtures/:name", s.handleSelectFixture)

	ui.POST("/detect", s.handleDetect)
	ui.POST("/clear", s.handleClear)

	ui.GET("/overlay.png", s.handleOverlay)
	ui.GET("/chart.png", s.handleChart)
	ui.GET("/report", s.handleReport)

	ui.GET("/history", s.handleListHistory)
	ui.POST("/history/:id", s.handleSelectHistory)
}
