package observe

import (
	"net/http"
	"slices"
	"strings"

	"github.com/justinas/alice"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Multiplexer interface {
	Handle(pattern string, handler http.Handler)
	http.Handler
}

// Mux registers every route with otel instrumentation, naming spans after the
// route, and runs each route through a middleware chain shared by all routes.
// Handlers registered directly on the wrapped multiplexer (health checks) are
// not observed.
type Mux struct {
	wrapped Multiplexer
	chain   alice.Chain
}

func NewMux(wrapped Multiplexer, middleware ...alice.Constructor) *Mux {
	return &Mux{
		wrapped: wrapped,
		chain:   alice.New(middleware...),
	}
}

func (mux *Mux) Handle(pattern string, handler http.Handler) {
	taggedHandler := otelhttp.NewHandler(
		mux.chain.Then(handler),
		TrimMethod(pattern),
	)

	mux.wrapped.Handle(pattern, taggedHandler)
}

func (mux *Mux) HandleFunc(pattern string, handler http.HandlerFunc) {
	mux.Handle(pattern, handler)
}

func (mux *Mux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux.wrapped.ServeHTTP(w, r)
}

var methods = []string{
	http.MethodConnect,
	http.MethodDelete,
	http.MethodGet,
	http.MethodHead,
	http.MethodOptions,
	http.MethodPatch,
	http.MethodPost,
	http.MethodPut,
	http.MethodTrace,
}

// TrimMethod removes a leading HTTP method from a route pattern.
func TrimMethod(pattern string) string {
	method, resource, hasMethod := strings.Cut(pattern, " ")
	if hasMethod && slices.Contains(methods, method) {
		return resource
	}
	return pattern
}
