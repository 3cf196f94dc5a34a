package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/d60-Lab/tieba-pipeline/pkg/response"
)

// Auth API 守卫。未配置 api_key 与 jwt_secret 时放行全部请求；
// 否则接受 X-API-Key / Authorization: Bearer <api_key>，
// 或用 jwt_secret 校验的 HS256 token
func Auth(apiKey, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" && jwtSecret == "" {
			c.Next()
			return
		}

		token := c.GetHeader("X-API-Key")
		if token == "" {
			parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
				token = strings.TrimSpace(parts[1])
			}
		}
		if token == "" {
			response.Unauthorized(c, "missing credentials")
			return
		}

		if apiKey != "" && subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) == 1 {
			c.Next()
			return
		}
		if jwtSecret != "" && validJWT(token, jwtSecret) {
			c.Next()
			return
		}
		response.Unauthorized(c, "invalid credentials")
	}
}

func validJWT(token, secret string) bool {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	return err == nil && parsed.Valid
}
