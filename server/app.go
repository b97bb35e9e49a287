// Command server is the optional HTTP facade over package luadec: a
// decompile-on-demand endpoint plus a read-only view of the cache database.
package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"luadec/cache"
)

// App holds server dependencies: a read-only DB view of the cache for
// GET /api/cache/{hash}, and a writable cache.Store for POST /api/decompile
// to memoize into.
type App struct {
	reads  *DB
	writes *cache.Store
}

// NewApp creates an App over the given read and write handles to the same
// cache database.
func NewApp(reads *DB, writes *cache.Store) *App {
	return &App{reads: reads, writes: writes}
}

// Handler returns the HTTP handler (router with CORS, recovery, routes).
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Post("/decompile", a.handleDecompile)
		r.Get("/cache/{hash}", a.handleCacheGet)
	})

	return r
}

// corsMiddleware sets CORS headers so a frontend on another port can call.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
