package echoapi

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/soma/core"
	"github.com/trezcool/soma/core/user"
)

func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin && contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// ctxUserOrAdminMiddleware puts the user of the `:id` path param in the context as "object".
// Only that user and admins may see it.
func ctxUserOrAdminMiddleware(auth *Auth, svc *user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ctxUsr, err := auth.getContextUser(ctx)
			if err != nil {
				if core.IsNotFound(err) {
					return errUnauthorized
				}
				return errors.Wrap(err, "getting context user")
			}

			if ctx.Param("id") == ctxUsr.ID || ctxUsr.IsAdmin() {
				if usr, err := svc.GetByID(ctx.Request().Context(), ctx.Param("id")); err == nil {
					ctx.Set("object", usr)
					return next(ctx)
				} else if !core.IsNotFound(err) {
					return errors.Wrap(err, "finding user by ID")
				}
			}
			return errHttpNotFound
		}
	}
}

// rateLimitMiddleware allows `limit` requests per client IP and window on the routes it wraps.
// Requests go through when the limiter itself fails.
func rateLimitMiddleware(limiter core.RateLimiter, scope string, limit int, window time.Duration, logger core.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if limiter == nil || limit <= 0 {
				return next(ctx)
			}
			key := fmt.Sprintf("ratelimit:%s:%s", scope, ctx.RealIP())
			allowed, retryAfter, err := limiter.Allow(ctx.Request().Context(), key, limit, window)
			if err != nil {
				logger.Error(fmt.Sprintf("rate limiter: %v", err), err)
				return next(ctx)
			}
			if !allowed {
				secs := int(math.Ceil(retryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				ctx.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				return errTooManyRequests
			}
			return next(ctx)
		}
	}
}
