package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Handler is the signature implemented by all route handlers.
// Returning a nil Response writes nothing beyond what the handler
// already wrote to the connection itself.
type Handler func(*http.Request) Response

// Authenticator gates handlers behind authentication checks.
// Modules register routes against it without knowing who implements it.
type Authenticator interface {
	WithAuthn(Handler) Handler
	WithAdmin(Handler) Handler
}

type noopAuthenticator struct{}

func (noopAuthenticator) WithAuthn(fn Handler) Handler { return fn }
func (noopAuthenticator) WithAdmin(fn Handler) Handler { return fn }

type Router struct {
	router *http.ServeMux

	// Authenticator can be used to pass an authenticator implementation to other handlers.
	Authenticator
}

func NewRouter(notFound http.Handler) *Router {
	mux := http.NewServeMux()
	if notFound != nil {
		mux.Handle("/", notFound)
	}
	return &Router{router: mux, Authenticator: noopAuthenticator{}}
}

// Handle registers a handler for the given method and path.
// Path parameters use the stdlib ServeMux syntax and are read
// with r.PathValue.
func (r *Router) Handle(method, path string, fn Handler) {
	r.router.HandleFunc(method+" "+path, func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()

		ww := &responseWrapper{ResponseWriter: w, status: 200}
		resp := fn(req)
		if resp != nil {
			resp.Write(ww, req)
		}
		slog.Info("http request", "url", req.URL.Path, "method", req.Method, "userAgent", req.UserAgent(), "latencyMS", time.Since(start).Milliseconds(), "status", ww.status)
	})
}

// HandleFunc registers a raw stdlib handler, bypassing the Response plumbing.
// Used for endpoints that manage the connection themselves (health probes).
func (r *Router) HandleFunc(pattern string, fn http.HandlerFunc) {
	r.router.HandleFunc(pattern, fn)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, rr *http.Request) { r.router.ServeHTTP(w, rr) }

// Serve wires up the stdlib http server to the engine.
func (r *Router) Serve(addr string) Proc {
	return func(ctx context.Context) error {
		svr := &http.Server{Handler: r, Addr: addr}
		go func() {
			<-ctx.Done()
			slog.Warn("gracefully shutting down http server...")
			svr.Shutdown(context.Background())
		}()
		if err := svr.ListenAndServe(); err != nil {
			return err
		}
		slog.Info("the http server has shut down")
		return nil
	}
}

type responseWrapper struct {
	http.ResponseWriter
	status int
}

func (w *responseWrapper) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush implements http.Flusher to support streaming responses.
func (w *responseWrapper) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// CheckHealthProbe is used by the healthcheck subcommand to probe a running server.
func CheckHealthProbe(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return nil
}
