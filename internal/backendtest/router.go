package backendtest

import (
	"github.com/gin-gonic/gin"
)

func (b *Backend) router() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(gin.Recovery(), b.countMiddleware())

	auth := router.Group("/auth")
	{
		auth.GET("/wallet/challenge", b.Challenge)
		auth.POST("/wallet/login", b.WalletLogin)
		auth.POST("/login", b.Login)
		auth.POST("/register", b.Register)
		auth.POST("/refresh", b.Refresh)
		auth.GET("/me", b.authMiddleware(), b.Me)
	}

	router.GET("/portfolio", b.authMiddleware(), b.Portfolio)

	return router
}
