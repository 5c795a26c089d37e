package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const userIDKey = "auth.user_id"

// Claims carried by portal access tokens
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Authenticator resolves the acting user of a request. With no secret it runs
// in development mode and trusts the X-User-ID header instead of tokens.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

func (a *Authenticator) devMode() bool {
	return len(a.secret) == 0
}

// GenerateToken issues an HS256 token for userID
func (a *Authenticator) GenerateToken(userID uuid.UUID, ttl time.Duration) (string, error) {
	if a.devMode() {
		return "", errors.New("no signing secret configured")
	}
	now := time.Now()
	claims := Claims{
		UserID: userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) ValidateToken(tokenString string) (uuid.UUID, error) {
	if a.devMode() {
		return uuid.Nil, errors.New("no signing secret configured")
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return uuid.Nil, jwt.ErrTokenSignatureInvalid
	}
	return uuid.Parse(claims.UserID)
}

// Middleware stores the acting user on the context when one can be resolved.
// A bearer token that fails validation is rejected outright; requests with no
// credentials pass through and handlers decide whether they need a user.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") && !a.devMode() {
			userID, err := a.ValidateToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
			c.Set(userIDKey, userID)
		} else if a.devMode() {
			if id, err := uuid.Parse(c.GetHeader("X-User-ID")); err == nil {
				c.Set(userIDKey, id)
			}
		}
		c.Next()
	}
}

// UserID returns the acting user set by Middleware
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
