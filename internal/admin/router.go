package admin

import "net/http"

// NewRouter wires the health/debug/metrics/auth surface (spec.md §6,
// SPEC_FULL.md §4.9). Grounded on alexdev-tb-CodePortal/internal/api.NewRouter.
func NewRouter(handler *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", handler.Health)
	mux.HandleFunc("/debug/pool", handler.DebugPool)
	mux.HandleFunc("/admin/auth/register", handler.Register)
	mux.HandleFunc("/admin/auth/login", handler.Login)
	if handler.Metrics != nil {
		mux.Handle("/metrics", handler.Metrics)
	}

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
