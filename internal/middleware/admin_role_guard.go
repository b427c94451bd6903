package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/ibra-a/urbanjungle-website-sub000/internal/domain/model"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// AuthJWT の後に置く。トークンの role が allowed のどれかでなければ 403。
// role は大文字小文字を区別しない。
func RequireRole(allowed ...model.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, _ := c.Get(CtxUserRoleKey).(string)
			if raw == "" {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			role := model.Role(strings.ToUpper(raw))
			if !slices.Contains(allowed, role) {
				shopperID, _ := ShopperID(c)
				zerolog.Ctx(c.Request().Context()).Warn().
					Str("shopper_id", shopperID).
					Str("role", string(role)).
					Str("path", c.Path()).
					Msg("role not allowed")
				return c.JSON(http.StatusForbidden, errorJSON("admin only"))
			}

			return next(c)
		}
	}
}

// 在庫・引当の管理 API 用
func AdminRoleGuard() echo.MiddlewareFunc {
	return RequireRole(model.RoleAdmin)
}
