package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/localli/booking/libs/config"
)

// CORSPolicy defines the CORS headers to emit for matching origins.
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

type corsRules struct {
	anyOrigin   bool
	origins     map[string]struct{}
	methods     string
	headers     string
	maxAge      string
	credentials bool
}

func compileCORS(cfg CORSPolicy) corsRules {
	rules := corsRules{
		origins:     map[string]struct{}{},
		methods:     strings.Join(config.SplitList(strings.Join(cfg.AllowedMethods, ",")), ", "),
		headers:     strings.Join(config.SplitList(strings.Join(cfg.AllowedHeaders, ",")), ", "),
		credentials: cfg.AllowCredentials,
	}
	if secs := int(cfg.MaxAge.Seconds()); secs > 0 {
		rules.maxAge = strconv.Itoa(secs)
	}
	for _, o := range config.SplitList(strings.Join(cfg.AllowedOrigins, ",")) {
		if o == "*" {
			rules.anyOrigin = true
			continue
		}
		rules.origins[strings.ToLower(strings.TrimSuffix(o, "/"))] = struct{}{}
	}
	return rules
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin.
// A wildcard is echoed as the concrete origin when credentials are allowed.
func (c corsRules) allowOrigin(origin string) (string, bool) {
	if _, ok := c.origins[strings.ToLower(origin)]; ok {
		return origin, true
	}
	if c.anyOrigin {
		if c.credentials {
			return origin, true
		}
		return "*", true
	}
	return "", false
}

// WithCORS answers preflights from allowed origins and decorates their
// responses. Preflights from other origins get 403. With no allowed origins
// the middleware is a no-op.
func WithCORS(cfg CORSPolicy) Middleware {
	rules := compileCORS(cfg)
	if !rules.anyOrigin && len(rules.origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			headers := w.Header()
			headers.Add("Vary", "Origin")

			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
			allow, ok := rules.allowOrigin(origin)
			if !ok {
				if preflight {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			headers.Set("Access-Control-Allow-Origin", allow)
			if rules.credentials {
				headers.Set("Access-Control-Allow-Credentials", "true")
			}
			if !preflight {
				headers.Set("Access-Control-Expose-Headers", RequestIDHeader)
				next.ServeHTTP(w, r)
				return
			}

			headers.Add("Vary", "Access-Control-Request-Method")
			headers.Add("Vary", "Access-Control-Request-Headers")
			if rules.methods != "" {
				headers.Set("Access-Control-Allow-Methods", rules.methods)
			}
			if rules.headers != "" {
				headers.Set("Access-Control-Allow-Headers", rules.headers)
			}
			if rules.maxAge != "" {
				headers.Set("Access-Control-Max-Age", rules.maxAge)
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
