// Package health exposes a tiny operator-only HTTP endpoint per daemon.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
)

type Server struct {
	daemon string
	// stats, when set, is read-only access to the ev relay's active
	// session counter.
	stats func() int64
}

func New(daemon string, stats func() int64) *Server {
	return &Server{daemon: daemon, stats: stats}
}

func (s *Server) Router() http.Handler {
	router := httprouter.New()

	router.GET("/healthz", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSON(w, map[string]any{"daemon": s.daemon, "ok": true})
	})

	if s.stats != nil {
		router.GET("/stats", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
			writeJSON(w, map[string]any{"daemon": s.daemon, "active_clients": s.stats()})
		})
	}

	return router
}

// Serve runs the endpoint until ctx is cancelled. A listen failure on
// an operator port is not worth killing the relay for; callers log it.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
