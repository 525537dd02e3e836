package api

import (
	"crypto/ed25519"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const contextUserKey = "currentUserID"

type AccessClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// ParseAndValidateJWT 驗證 access token 的簽章與有效期限
func ParseAndValidateJWT(tokenString string, publicKey ed25519.PublicKey) (*AccessClaims, error) {
	const op = "ParseAndValidateJWT"
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		return publicKey, nil
	}, jwt.WithValidMethods([]string{"EdDSA"}))
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to parse token, err=%w", op, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("[%s] Token is invalid", op)
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok {
		return nil, fmt.Errorf("[%s] Token claims are invalid", op)
	}
	return claims, nil
}

// AuthMiddleware 從 cookie 或 Authorization header 取出 access token
// 解析成功時將使用者 id 放入 context；發行 token 屬於外部的認證服務
func (impl *ServerImpl) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := c.Cookie("access_token")
		if err != nil {
			header := c.GetHeader("Authorization")
			if after, ok := strings.CutPrefix(header, "Bearer "); ok {
				tokenString = after
			}
		}
		if tokenString == "" {
			c.Next()
			return
		}
		claims, err := ParseAndValidateJWT(tokenString, impl.config.Auth.PublicKey)
		if err != nil {
			c.Next()
			return
		}
		userID, err := strconv.ParseUint(claims.Subject, 10, 64)
		if err != nil {
			c.Next()
			return
		}
		c.Set(contextUserKey, uint(userID))
		c.Next()
	}
}

// currentUser 回傳已認證的使用者 id
func currentUser(c *gin.Context) (uint, bool) {
	value, ok := c.Get(contextUserKey)
	if !ok {
		return 0, false
	}
	userID, ok := value.(uint)
	return userID, ok
}

// requireUser 回傳已認證的使用者 id，未認證時回應 401
func requireUser(c *gin.Context) (uint, bool) {
	userID, ok := currentUser(c)
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return 0, false
	}
	return userID, true
}
