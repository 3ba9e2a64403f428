package handler

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"mintgate/pkg/platform/httputil"
)

// Pinger reports whether a backing store is reachable.
type Pinger func(ctx context.Context) error

const healthTimeout = 2 * time.Second

// Health answers 200 when every pinger succeeds and 503 otherwise, listing
// each dependency's state.
func Health(pingers map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		results := make(map[string]string, len(pingers))
		names := make([]string, 0, len(pingers))
		for name := range pingers {
			names = append(names, name)
		}

		// Each goroutine writes only its own slot.
		slots := make([]error, len(names))
		var g errgroup.Group
		for i, name := range names {
			ping := pingers[name]
			g.Go(func() error {
				slots[i] = ping(ctx)
				return nil
			})
		}
		_ = g.Wait()

		status := http.StatusOK
		for i, name := range names {
			if slots[i] != nil {
				status = http.StatusServiceUnavailable
				results[name] = "unavailable"
				continue
			}
			results[name] = "ok"
		}
		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		httputil.WriteJSON(w, status, map[string]any{"status": state, "checks": results})
	}
}
