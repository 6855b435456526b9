package main

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/edusched/school/libs/httpx"
)

// Upstreams are the service base URLs the gateway forwards to.
type Upstreams struct {
	Auth     string `envconfig:"AUTH_SERVICE_URL" default:"http://auth-service:3007"`
	Teachers string `envconfig:"TEACHERS_SERVICE_URL" default:"http://teachers-service:3002"`
	Rooms    string `envconfig:"ROOMS_SERVICE_URL" default:"http://rooms-service:3004"`
	Bookings string `envconfig:"BOOKINGS_SERVICE_URL" default:"http://bookings-service:3005"`
}

type apiInfo struct {
	Name      string            `json:"name"`
	Version   string            `json:"version"`
	Status    string            `json:"status"`
	Endpoints map[string]string `json:"endpoints"`
}

func newRouter(service string, up Upstreams, logger *slog.Logger) (http.Handler, error) {
	r := chi.NewRouter()
	r.Use(httpx.WithMetrics(service))
	r.Handle("/metrics", httpx.MetricsHandler())

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, apiInfo{
			Name:    "School Management System API",
			Version: "1.0.0",
			Status:  "running",
			Endpoints: map[string]string{
				"login":          "POST /api/auth/login",
				"verify":         "POST /api/auth/verify",
				"me":             "GET /api/auth/me",
				"changePassword": "POST /api/auth/change-password",
				"users":          "/api/auth/users",
				"teachers":       "/api/teachers",
				"activities":     "/api/activities",
				"rooms":          "/api/rooms",
				"bookings":       "/api/bookings",
			},
		})
	})

	routes := []struct {
		prefix string
		target string
		strip  bool
	}{
		{"/api/auth", up.Auth, true},
		{"/api/teachers", up.Teachers, false},
		// Activities are served by the teachers service.
		{"/api/activities", up.Teachers, false},
		{"/api/rooms", up.Rooms, false},
		{"/api/bookings", up.Bookings, false},
	}
	for _, rt := range routes {
		proxy, err := newProxy(rt.target, logger)
		if err != nil {
			return nil, err
		}
		var h http.Handler = proxy
		if rt.strip {
			h = http.StripPrefix(rt.prefix, ensureLeadingSlash(proxy))
		}
		r.Handle(rt.prefix, h)
		r.Handle(rt.prefix+"/*", h)
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteError(w, http.StatusNotFound, "Route not found")
	})
	return r, nil
}

func newProxy(raw string, logger *slog.Logger) (*httputil.ReverseProxy, error) {
	target, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Transport = otelhttp.NewTransport(http.DefaultTransport)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("proxy error",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"upstream", target.Host,
			"url", r.URL.String(),
			"err", err,
		)
		httpx.WriteError(w, http.StatusBadGateway, "Service unavailable")
	}
	return proxy, nil
}

// ensureLeadingSlash keeps "/api/auth" itself routable after the prefix is
// stripped.
func ensureLeadingSlash(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/") {
			r.URL.Path = "/" + r.URL.Path
		}
		next.ServeHTTP(w, r)
	})
}
