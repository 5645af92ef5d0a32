package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/fiberspec/internal/errors"
	"github.com/wfunc/fiberspec/internal/utils"
)

const operatorKey = "operator"

// AuthMiddleware JWT认证中间件
type AuthMiddleware struct {
	jwt *utils.JWTManager
}

// NewAuthMiddleware 创建认证中间件，jwt 为 nil 时不做认证
func NewAuthMiddleware(jwt *utils.JWTManager) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt}
}

// Enabled 是否启用认证
func (m *AuthMiddleware) Enabled() bool {
	return m.jwt != nil
}

// RequireOperator 控制命令需要操作员令牌
func (m *AuthMiddleware) RequireOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.jwt == nil {
			c.Next()
			return
		}

		token := extractToken(c)
		if token == "" {
			abort(c, errors.New(errors.ErrAuthentication, "missing bearer token"))
			return
		}

		claims, err := m.jwt.ValidateToken(token)
		if err != nil {
			code := errors.ErrTokenInvalid
			if err == utils.ErrExpiredToken {
				code = errors.ErrTokenExpired
			}
			abort(c, errors.Wrap(err, code))
			return
		}
		if claims.Role != utils.RoleOperator {
			abort(c, errors.New(errors.ErrAuthorization, "operator role required"))
			return
		}

		c.Set(operatorKey, claims.Operator)
		c.Next()
	}
}

func abort(c *gin.Context, err *errors.AppError) {
	status := err.HTTPStatus()
	if status == http.StatusInternalServerError {
		status = http.StatusUnauthorized
	}
	c.AbortWithStatusJSON(status, errors.NewErrorResponse(err, c.GetHeader(RequestIDHeader)))
}

// extractToken 从 Authorization 或 X-Access-Token 头提取令牌
func extractToken(c *gin.Context) string {
	if bearer := c.GetHeader("Authorization"); bearer != "" {
		parts := strings.SplitN(bearer, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return c.GetHeader("X-Access-Token")
}

// GetOperator 从上下文获取操作员名称
func GetOperator(c *gin.Context) (string, bool) {
	if v, exists := c.Get(operatorKey); exists {
		if name, ok := v.(string); ok {
			return name, true
		}
	}
	return "", false
}
