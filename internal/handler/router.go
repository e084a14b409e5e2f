package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"filekeeper/internal/auth"
)

type RouterConfig struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// NewRouter wires every endpoint. Routes under /api require a bearer token;
// /s and /share-collection are public and authorized by the share token.
func NewRouter(
	cfg RouterConfig,
	verifier auth.Verifier,
	perms *PermissionHandler,
	recycle *RecycleHandler,
	shares *ShareHandler,
	log *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", passwordHeader},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware(verifier, log))

		r.Get("/access", perms.CheckAccess)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/users/{id}/permissions", perms.ListGrants)
			r.Post("/users/{id}/permissions", perms.CreateGrant)
			r.Put("/users/{id}/permissions", perms.ReconcileGrants)
			r.Delete("/permissions/{permId}", perms.RevokeGrant)
			r.Delete("/permissions-expired", perms.ClearExpired)
		})

		r.Post("/files/trash", recycle.Trash)
		r.Get("/recycle-bin", recycle.List)
		r.Post("/recycle-bin/restore", recycle.BulkRestore)
		r.Post("/recycle-bin/restore/{id}", recycle.Restore)
		r.Post("/recycle-bin/purge", recycle.BulkPurge)
		r.Delete("/recycle-bin/{id}", recycle.Purge)
		r.Delete("/recycle-bin-clear", recycle.ClearAll)

		r.Get("/shares", shares.ListShares)
		r.Post("/shares", shares.CreateShare)
		r.Delete("/shares/{id}", shares.DeleteShare)
		r.Post("/shares/bulk-delete", shares.BulkDeleteShares)
		r.Post("/share-collection", shares.CreateCollection)
		r.Get("/my-share-collections", shares.ListCollections)
		r.Delete("/share-collection/{id}", shares.DeleteCollection)
	})

	r.Get("/s/{token}", shares.ResolveLink)
	r.Post("/s/{token}", shares.ResolveLink)
	r.Get("/s/{token}/download", shares.DownloadLink)
	r.Get("/share-collection/{token}", shares.ResolveCollection)
	r.Post("/share-collection/{token}", shares.ResolveCollection)
	r.Get("/share-collection/{token}/download", shares.DownloadCollection)

	return r
}
