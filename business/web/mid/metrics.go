package mid

import (
	"context"
	"expvar"
	"net/http"

	"github.com/openchain/blockchain/foundation/web"
)

// counters holds the request counters published on the debug mux under
// /debug/vars.
var counters = expvar.NewMap("node")

// Metrics updates program counters.
func Metrics() web.Middleware {

	// This is the actual middleware function to be executed.
	m := func(handler web.Handler) web.Handler {

		// Create the handler that will be attached in the middleware chain.
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			// Call the next handler.
			err := handler(ctx, w, r)

			counters.Add("requests", 1)
			if err != nil {
				counters.Add("errors", 1)
			}

			// Return the error so it can be handled further up the chain.
			return err
		}

		return h
	}

	return m
}
