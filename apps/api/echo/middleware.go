package echoapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/trezcool/examtrack/core"
	"github.com/trezcool/examtrack/core/user"
	"github.com/trezcool/examtrack/services/metrics"
)

// userMiddleware loads the authenticated user into the context. Deleted users are unauthorized.
func userMiddleware(svc user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			usr, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
			if err != nil {
				if err == user.ErrNotFound {
					return errUnauthorized
				}
				return errors.Wrap(err, "finding user by ID")
			}
			if usr.IsDeleted {
				return errUnauthorized
			}
			ctx.Set(contextUserKey, usr)
			return next(ctx)
		}
	}
}

// accessMiddleware keeps banned and pending users out, except from the routes they need to sort out their account.
func accessMiddleware(allowed ...string) echo.MiddlewareFunc {
	allowedRoutes := make(map[string]bool, len(allowed))
	for _, route := range allowed {
		allowedRoutes[route] = true
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx)
			if err != nil {
				return err
			}
			if allowedRoutes[ctx.Request().Method+" "+ctx.Path()] {
				return next(ctx)
			}
			if usr.BanActive(core.Now()) {
				return errAccountBanned
			}
			if usr.AccountStatus == user.StatusPendingApproval {
				return errAccountPending
			}
			return next(ctx)
		}
	}
}

func onboardedMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		usr, err := getContextUser(ctx)
		if err != nil {
			return err
		}
		if !usr.OnboardingCompleted || usr.Exam == "" {
			return errOnboardingIncomplete
		}
		return next(ctx)
	}
}

func premiumMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		usr, err := getContextUser(ctx)
		if err != nil {
			return err
		}
		if !usr.EffectivePremium() {
			return errPremiumRequired
		}
		return next(ctx)
	}
}

// staffMiddleware only lets admins and sub-admins through. With adminOnly, sub-admins are refused too.
func staffMiddleware(adminOnly bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx)
			if err != nil {
				return err
			}
			if !usr.IsStaff() || (adminOnly && !usr.IsAdmin()) {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter holds a token bucket per client IP. Buckets idle for ttl are evicted, at most once per cleanupInterval.
type ipRateLimiter struct {
	mu              sync.Mutex
	visitors        map[string]*visitor
	limit           rate.Limit
	burst           int
	ttl             time.Duration
	cleanupInterval time.Duration
	lastCleanup     time.Time
	now             func() time.Time
}

func newIPRateLimiter(perSecond float64, burst int) *ipRateLimiter {
	return &ipRateLimiter{
		visitors:        make(map[string]*visitor),
		limit:           rate.Limit(perSecond),
		burst:           burst,
		ttl:             10 * time.Minute,
		cleanupInterval: time.Minute,
		lastCleanup:     time.Now(),
		now:             time.Now,
	}
}

// maybeCleanup evicts idle visitors if cleanupInterval has passed. l.mu must be held.
func (l *ipRateLimiter) maybeCleanup(now time.Time) {
	if now.Sub(l.lastCleanup) < l.cleanupInterval {
		return
	}
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.ttl {
			delete(l.visitors, key)
		}
	}
	l.lastCleanup = now
}

func (l *ipRateLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.maybeCleanup(now)

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// rateLimitMiddleware throttles the public endpoints that can be abused (logins, password resets, contact form...).
// A non-positive rate disables it.
func rateLimitMiddleware(conf *core.Config) echo.MiddlewareFunc {
	if conf.Server.RateLimit <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	limiter := newIPRateLimiter(conf.Server.RateLimit, conf.Server.RateBurst)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if !limiter.allow(ctx.RealIP()) {
				return errTooManyRequests
			}
			return next(ctx)
		}
	}
}

// metricsMiddleware counts requests by route and status.
func metricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if err := next(ctx); err != nil {
			ctx.Error(err)
		}
		status := ctx.Response().Status
		if status == 0 {
			status = http.StatusOK
		}
		metrics.ObserveRequest(ctx.Request().Method, ctx.Path(), status)
		return nil
	}
}

// chain returns a new slice with base followed by m.
func chain(base []echo.MiddlewareFunc, m ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	mws := make([]echo.MiddlewareFunc, 0, len(base)+len(m))
	return append(append(mws, base...), m...)
}
