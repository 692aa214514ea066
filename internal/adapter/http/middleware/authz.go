package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/JHPush/cart-service/configs"
	"github.com/JHPush/cart-service/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const userIDKey = "userId"

type Authz struct {
	secret   []byte
	issuer   string
	audience string
}

func NewAuthz(cfg configs.Config) *Authz {
	return &Authz{
		secret:   []byte(cfg.Security.JWTSecret),
		issuer:   cfg.Security.Issuer,
		audience: cfg.Security.Audience,
	}
}

// RequireUser validates the bearer JWT and exposes its subject as the cart owner.
func (a *Authz) RequireUser() gin.HandlerFunc {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithAudience(a.audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30*time.Second), // small clock skew
	)

	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			unauth(c, "invalid_request", "missing bearer token")
			return
		}

		var claims jwt.RegisteredClaims
		token, err := parser.ParseWithClaims(strings.TrimPrefix(auth, "Bearer "), &claims, func(*jwt.Token) (any, error) {
			return a.secret, nil
		})
		if err != nil || !token.Valid {
			logging.From(c).Warn("jwt rejected", "err", err)
			unauth(c, "invalid_token", "invalid jwt")
			return
		}

		if claims.Subject == "" {
			unauth(c, "invalid_token", "missing subject")
			return
		}

		c.Set(userIDKey, claims.Subject)
		logging.With(c, logging.From(c).With("user_id", claims.Subject))
		c.Next()
	}
}

// UserID returns the authenticated user set by RequireUser.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

func unauth(c *gin.Context, code, desc string) {
	c.Header("WWW-Authenticate", `Bearer error="`+code+`", error_description="`+desc+`"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"status":    http.StatusUnauthorized,
		"message":   desc,
		"timestamp": time.Now().UTC(),
	})
}
