package devserver

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const issuer = "ideaboard-devserver"

// Claims identifies the user a token was issued to.
type Claims struct {
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for subject valid for ttl.
func (s *Server) IssueToken(subject string, ttl time.Duration) (string, error) {
	if len(s.secret) == 0 {
		return "", errors.New("devserver: no signing secret configured")
	}
	now := time.Now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return token, nil
}

func (s *Server) parseToken(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// authRequired rejects requests without a valid bearer token. It is a
// no-op when the server has no secret.
func (s *Server) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(s.secret) == 0 {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := s.parseToken(raw)
		if err != nil {
			s.log.WithError(err).Debug("rejecting token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set("subject", claims.Subject)
		c.Next()
	}
}
