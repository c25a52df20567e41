package middleware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"pantry-chef/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const userIDKey = "user_id"

// UserID 取出已驗證的使用者 ID，未驗證時為空字串
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// IssueToken 簽發 HS256 存取權杖，subject 為使用者 ID
func IssueToken(secret, issuer, userID string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// parseToken 驗證簽章、有效期與發行者，回傳 subject
func parseToken(tokenString, secret, issuer string) (string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// Auth 驗證 Bearer 權杖並將使用者 ID 放入 context
func Auth(secret, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(tokenString) == "" {
			common.WriteError(c, common.ErrUnauthorized)
			return
		}

		userID, err := parseToken(strings.TrimSpace(tokenString), secret, issuer)
		if err != nil {
			common.LogWarn("Invalid access token",
				zap.String("path", c.Request.URL.Path),
				zap.Error(err),
			)
			common.WriteError(c, common.ErrUnauthorized)
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}
