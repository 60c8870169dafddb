package httpapi

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mistakeknot/tapcall/internal/metrics"
)

type RouterOptions struct {
	// WS serves the real-time channel at /ws. Optional.
	WS http.Handler
	// Metrics enables per-route instrumentation and the /metrics endpoint.
	Metrics *metrics.Metrics
	// StaticDir, when set, serves its customer/ and staff/ subdirectories.
	StaticDir string
}

func NewRouter(svc *Service, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(observe(opts.Metrics, svc.logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/test", svc.handleTest)
		r.Post("/requests", svc.handleCreateRequest)
		r.Get("/requests", svc.handleListRequests)
		r.Put("/requests/{id}/complete", svc.handleCompleteRequest)
		r.Put("/requests/{id}/cancel", svc.handleCancelRequest)
		r.Get("/qr-dataurl/{tableId}", svc.handleQRDataURL)
		r.Get("/qr-download/{tableId}", svc.handleQRDownload)
	})

	if opts.WS != nil {
		r.Handle("/ws", opts.WS)
	}

	if opts.StaticDir != "" {
		for _, view := range []string{"customer", "staff"} {
			dir := filepath.Join(opts.StaticDir, view)
			if info, err := os.Stat(dir); err != nil || !info.IsDir() {
				continue
			}
			prefix := "/" + view
			r.Handle(prefix+"/*", http.StripPrefix(prefix, http.FileServer(http.Dir(dir))))
		}
	}

	return r
}
