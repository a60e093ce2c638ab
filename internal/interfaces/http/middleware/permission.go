package middleware

import (
	"net/http"

	"github.com/erp/backoffice/internal/domain/backoffice"
	"github.com/erp/backoffice/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ResourceParam is the route parameter naming the resource
const ResourceParam = "resource"

// PermissionConfig holds configuration for permission middleware
type PermissionConfig struct {
	// Logger for middleware logging
	Logger *zap.Logger
}

// RequirePermission creates middleware that requires a specific permission
func RequirePermission(permission string) gin.HandlerFunc {
	return RequireAnyPermissionWithConfig(PermissionConfig{}, permission)
}

// RequireAnyPermissionWithConfig creates middleware that requires any of the
// specified permissions. Anonymous requests, allowed when authentication is
// optional, are not checked.
func RequireAnyPermissionWithConfig(cfg PermissionConfig, permissions ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if allowed(c, cfg, permissions) {
			c.Next()
		}
	}
}

// RequireResourcePermission checks the permission of the resource named by
// the :resource parameter: its read permission for GET, its write
// permission otherwise. Unknown resources are answered with 404.
func RequireResourcePermission(registry *backoffice.Registry, cfg PermissionConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := registry.Lookup(c.Param(ResourceParam))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusNotFound,
				dto.NewErrorResponseWithRequestID("UNKNOWN_RESOURCE", err.Error(), GetRequestID(c)))
			return
		}
		permission := res.WritePermission
		if c.Request.Method == http.MethodGet {
			permission = res.ReadPermission
		}
		if allowed(c, cfg, []string{permission}) {
			c.Next()
		}
	}
}

// RequireResourceAction checks a fixed resource's read or write permission
// by HTTP method
func RequireResourceAction(registry *backoffice.Registry, name string, cfg PermissionConfig) gin.HandlerFunc {
	res, err := registry.Lookup(name)
	if err != nil {
		panic(err)
	}
	return func(c *gin.Context) {
		permission := res.WritePermission
		if c.Request.Method == http.MethodGet {
			permission = res.ReadPermission
		}
		if allowed(c, cfg, []string{permission}) {
			c.Next()
		}
	}
}

func allowed(c *gin.Context, cfg PermissionConfig, permissions []string) bool {
	if IsAnonymous(c) {
		return true
	}
	claims := GetJWTClaims(c)
	if claims == nil {
		handlePermissionDenied(c, cfg, permissions, "No authentication claims found")
		return false
	}
	if !claims.HasAnyPermission(permissions...) {
		handlePermissionDenied(c, cfg, permissions, "User lacks required permission")
		return false
	}
	if cfg.Logger != nil {
		cfg.Logger.Debug("Permission check passed",
			zap.String("user_id", claims.UserID),
			zap.Strings("required_any", permissions),
		)
	}
	return true
}

func handlePermissionDenied(c *gin.Context, cfg PermissionConfig, permissions []string, reason string) {
	if cfg.Logger != nil {
		cfg.Logger.Warn("Permission denied",
			zap.String("user_id", GetJWTUserID(c)),
			zap.Strings("required", permissions),
			zap.String("reason", reason),
			zap.String("path", c.Request.URL.Path),
		)
	}
	c.AbortWithStatusJSON(http.StatusForbidden,
		dto.NewErrorResponseWithRequestID(dto.ErrCodeForbidden, "Permission denied", GetRequestID(c)))
}
