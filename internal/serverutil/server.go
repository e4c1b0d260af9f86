// Package serverutil holds the plumbing shared by the http handlers: error
// returning handlers, request logging and the server lifecycle.
package serverutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	selerrs "github.com/jdholdren/selvedge/internal/errors"
	"github.com/jdholdren/selvedge/internal/logger"
)

// Request bodies are small json documents.
const maxBodyBytes = 1 << 20

const RequestIDHeader = "X-Request-ID"

func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("error encoding json response: %s", err)
	}

	return nil
}

// Validator is a surface that can validate itself and return an error
// if something is wrong.
type Validator interface {
	Validate() error
}

// DecodeValid decodes at most maxBodyBytes of a request and then validates it.
//
// A body that is not JSON is a 400; validation errors are returned as they are.
func DecodeValid[V Validator](r io.Reader) (V, error) {
	var v V
	if err := json.NewDecoder(io.LimitReader(r, maxBodyBytes)).Decode(&v); err != nil {
		return v, selerrs.E(fmt.Sprintf("error decoding request: %s", err), http.StatusBadRequest)
	}
	if err := v.Validate(); err != nil {
		return v, fmt.Errorf("error validating request: %w", err)
	}

	return v, nil
}

// RequestLogMiddleware tags the request context with a request id, method and
// path so every log line of the request carries them, then logs the outcome.
//
// A request id sent by the caller is kept, otherwise one is minted.
func RequestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		ctx := logger.Ctx(r.Context(),
			slog.String("request_id", id),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
		r = r.WithContext(ctx)
		slog.DebugContext(ctx, "request received")

		start := time.Now()
		writer := &respCodeWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(writer, r)

		level := slog.LevelInfo
		switch {
		case writer.code >= http.StatusInternalServerError:
			level = slog.LevelError
		case writer.code >= http.StatusBadRequest:
			level = slog.LevelWarn
		}
		slog.Log(ctx, level, "request completed",
			"query", r.URL.RawQuery,
			"duration", time.Since(start),
			"status_code", writer.code,
		)
	})
}

// RecoverMiddleware turns a panicking handler into a 500 instead of a dropped connection.
func RecoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			slog.ErrorContext(r.Context(), "handler panicked", "panic", rec, "stack", string(debug.Stack()))
			writeError(w, r, selerrs.E(http.StatusInternalServerError, "internal server error"))
		}()

		next.ServeHTTP(w, r)
	})
}

// To trap the response status code for logging later.
type respCodeWriter struct {
	http.ResponseWriter
	code int
}

func (w *respCodeWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// HandlerFuncE is a modified type of [http.HandlerFunc] that returns an error.
type HandlerFuncE func(w http.ResponseWriter, r *http.Request) error

func (f HandlerFuncE) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := f(w, r)
	if err == nil {
		return
	}

	// Either it's already a structured error, or coerce it to one
	sErr := &selerrs.Error{}
	if !errors.As(err, &sErr) {
		slog.ErrorContext(r.Context(), "unstructured handler error", "error", err)
		sErr = selerrs.E(http.StatusInternalServerError, "internal server error")
	}

	writeError(w, r, sErr)
}

func writeError(w http.ResponseWriter, r *http.Request, sErr *selerrs.Error) {
	if err := WriteJSON(w, sErr.Status, sErr); err != nil {
		slog.ErrorContext(r.Context(), "error writing response", "error", err)
	}
}

// ErrRouter is a newtype around a mux router that allows attaching handlers that return errors.
type ErrRouter struct {
	*mux.Router
}

// NewErrRouter returns a router with panic recovery and request logging installed.
func NewErrRouter() ErrRouter {
	r := ErrRouter{Router: mux.NewRouter()}
	r.Use(RequestLogMiddleware, RecoverMiddleware)
	return r
}

func (r ErrRouter) HandleFuncE(path string, f HandlerFuncE) *mux.Route {
	return r.Handle(path, f)
}

// Start binds srv.Addr and serves in the background, so a taken port is
// reported to the caller rather than only logged. Returns the bound address.
func Start(srv *http.Server) (net.Addr, error) {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return nil, fmt.Errorf("error listening on %s: %w", srv.Addr, err)
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("error serving", "addr", ln.Addr().String(), "error", err)
		}
	}()

	return ln.Addr(), nil
}

// Shutdown drains in-flight requests until ctx is done, then closes whatever
// connections are left.
func Shutdown(ctx context.Context, srv *http.Server) error {
	err := srv.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		slog.Warn("requests still in flight at shutdown, closing them", "addr", srv.Addr)
		// Shutdown already closed the listeners
		if err := srv.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			return err
		}
		return nil
	}

	return err
}
