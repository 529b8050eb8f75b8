package middleware

import (
	"net"
	"net/http"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/dukepan/multi-rooms-chat-back/internal/utils"
)

// HTTPThrottle is the coarse, per-client-IP request throttle guarding the
// whole HTTP surface — distinct from internal/ratelimit's per-user,
// per-message domain limiter. Grounded on the ulule/limiter/v3 usage in
// RoseWrightdev-Video-Conferencing's internal/v1/ratelimit/limiter.go,
// stripped of its gin dependency to fit this repo's net/http router.
type HTTPThrottle struct {
	limiter *limiter.Limiter
	logger  *utils.Logger
}

// NewHTTPThrottle builds a throttle backed by a Redis store, allowing
// `formattedRate` requests per client IP (e.g. "100-M" for 100/minute, the
// same format ulule/limiter/v3 parses).
func NewHTTPThrottle(redisClient *redis.Client, formattedRate string, logger *utils.Logger) (*HTTPThrottle, error) {
	rate, err := limiter.NewRateFromFormatted(formattedRate)
	if err != nil {
		return nil, err
	}
	store, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{Prefix: "http_throttle:v1:"})
	if err != nil {
		return nil, err
	}
	return &HTTPThrottle{limiter: limiter.New(store, rate), logger: logger}, nil
}

func (t *HTTPThrottle) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()
		ip, _, err := net.SplitHostPort(req.RemoteAddr)
		if err != nil {
			ip = req.RemoteAddr
		}

		result, err := t.limiter.Get(ctx, ip)
		if err != nil {
			// Fail open: an unreachable store shouldn't take the whole
			// service down with it.
			t.logger.Error(ctx, "http throttle store unavailable: %v", err)
			next.ServeHTTP(w, req)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.Reset, 10))

		if result.Reached {
			w.Header().Set("Retry-After", strconv.FormatInt(result.Reset, 10))
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, req)
	})
}
