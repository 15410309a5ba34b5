package command

import (
	"context"
	"log/slog"
	"strings"
)

// Route pairs a matcher with the handler it selects.
type Route struct {
	Name    string
	Match   Matcher
	Handler Handler
}

// Router maps commands to handlers.
type Router struct {
	keyword  string
	gate     *AuthGate
	shutdown Handler
	routes   []Route
	fallback Handler
	logger   *slog.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithShutdown sets the privileged keyword and its handler.
// The keyword is matched case-insensitively anywhere in the text.
func WithShutdown(keyword string, h Handler) RouterOption {
	return func(r *Router) {
		r.keyword = strings.ToLower(strings.TrimSpace(keyword))
		r.shutdown = h
	}
}

// WithGate guards the shutdown handler behind gate.
func WithGate(gate *AuthGate) RouterOption {
	return func(r *Router) { r.gate = gate }
}

// WithRoute appends a route. Routes are scanned in the order added.
func WithRoute(name string, match Matcher, h Handler) RouterOption {
	return func(r *Router) {
		r.routes = append(r.routes, Route{Name: name, Match: match, Handler: h})
	}
}

// WithRouterLogger sets the logger.
func WithRouterLogger(l *slog.Logger) RouterOption {
	return func(r *Router) { r.logger = l }
}

// NewRouter creates a Router that sends unmatched commands to fallback.
func NewRouter(fallback Handler, opts ...RouterOption) *Router {
	r := &Router{
		fallback: fallback,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "command.router")
	return r
}

// Route answers cmd. The shutdown keyword wins over every other route.
func (r *Router) Route(ctx context.Context, cmd Command) Reply {
	if r.keyword != "" && r.shutdown != nil && HasPhrase(cmd.Key, r.keyword) {
		if r.gate != nil && !r.gate.Verify(ctx) {
			return Reply{Text: ReplyAccessDenied}
		}
		r.logger.Info("routing", "route", "shutdown")
		return r.shutdown.Handle(ctx, cmd)
	}

	for _, route := range r.routes {
		if route.Match != nil && route.Match(cmd.Key) {
			r.logger.Debug("routing", "route", route.Name)
			return route.Handler.Handle(ctx, cmd)
		}
	}

	r.logger.Debug("routing", "route", "fallback")
	if r.fallback == nil {
		return Reply{Text: "I'm afraid I can't help with that, sir."}
	}
	return r.fallback.Handle(ctx, cmd)
}

// Routes returns the configured route names in match order.
func (r *Router) Routes() []string {
	names := make([]string, 0, len(r.routes))
	for _, route := range r.routes {
		names = append(names, route.Name)
	}
	return names
}
