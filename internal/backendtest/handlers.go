package backendtest

import (
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

type loginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         *user  `json:"user"`
}

// Challenge issues a challenge for the wallet in the publicKey query
func (b *Backend) Challenge(c *gin.Context) {
	if b.isUnavailable() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service unavailable"})
		return
	}

	address := c.Query("publicKey")
	if !common.IsHexAddress(address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid public key"})
		return
	}

	challenge, expire, err := b.createChallenge(address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create challenge"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"challenge": challenge,
		"expire":    expire.Unix(),
	}})
}

// WalletLogin exchanges a signed challenge for a token pair
func (b *Backend) WalletLogin(c *gin.Context) {
	if b.isUnavailable() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service unavailable"})
		return
	}

	var req struct {
		PublicKey string `json:"publicKey" binding:"required"`
		Signature string `json:"signature" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	pair, u, err := b.walletLogin(req.PublicKey, req.Signature)
	if err != nil {
		statusCode := http.StatusInternalServerError
		errorMsg := "Authentication failed"

		switch {
		case errors.Is(err, errNoChallenge), errors.Is(err, errInvalidToken):
			statusCode = http.StatusBadRequest
			errorMsg = "Invalid challenge"
		case errors.Is(err, errInvalidSignature):
			statusCode = http.StatusUnauthorized
			errorMsg = "Invalid signature"
		}

		c.JSON(statusCode, gin.H{"error": errorMsg})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": loginResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         u,
	}})
}

type credentials struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login authenticates with email and password. The response is not
// wrapped in an envelope.
func (b *Backend) Login(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	pair, u, err := b.login(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, errInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Authentication failed"})
		return
	}

	c.JSON(http.StatusOK, loginResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken, User: u})
}

// Register creates an account
func (b *Backend) Register(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	pair, u, err := b.register(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, errAccountExists) {
			c.JSON(http.StatusConflict, gin.H{"error": gin.H{"message": "Account already exists"}})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Registration failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": loginResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken, User: u}})
}

// Refresh rotates the refresh token
func (b *Backend) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	pair, err := b.refresh(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Refresh token has been invalidated"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": pair})
}

// Me returns the authenticated user
func (b *Backend) Me(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c))
}

// Portfolio returns a small data payload for the authenticated user
func (b *Backend) Portfolio(c *gin.Context) {
	u := currentUser(c)
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"owner": u.ID,
		"chain": c.Query("chain"),
		"positions": []gin.H{
			{"asset": "XLM", "amount": "1200.5"},
			{"asset": "USDC", "amount": "310"},
		},
	}})
}
