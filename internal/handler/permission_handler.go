package handler

import (
	"net/http"

	"go.uber.org/zap"

	"filekeeper/internal/domain"
	"filekeeper/internal/service"
)

type PermissionHandler struct {
	perms *service.PermissionService
	authz *service.AuthorizationService
	log   *zap.Logger
}

func NewPermissionHandler(perms *service.PermissionService, authz *service.AuthorizationService, log *zap.Logger) *PermissionHandler {
	return &PermissionHandler{perms: perms, authz: authz, log: log}
}

type reconcileRequest struct {
	Grants []domain.GrantSpec `json:"grants"`
}

func (h *PermissionHandler) ListGrants(w http.ResponseWriter, r *http.Request) {
	userID, err := int64Param(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	grants, err := h.perms.List(r.Context(), principal(r), userID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, grants)
}

func (h *PermissionHandler) CreateGrant(w http.ResponseWriter, r *http.Request) {
	userID, err := int64Param(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var spec domain.GrantSpec
	if err := decodeJSON(w, r, &spec); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	g, err := h.perms.Grant(r.Context(), principal(r), userID, spec)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// ReconcileGrants replaces a user's grants with the submitted set.
func (h *PermissionHandler) ReconcileGrants(w http.ResponseWriter, r *http.Request) {
	userID, err := int64Param(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var req reconcileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	res, err := h.perms.Reconcile(r.Context(), principal(r), userID, req.Grants)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *PermissionHandler) RevokeGrant(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "permId")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if err := h.perms.Revoke(r.Context(), principal(r), id); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

func (h *PermissionHandler) ClearExpired(w http.ResponseWriter, r *http.Request) {
	n, err := h.perms.ClearExpired(r.Context(), principal(r))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
}

// CheckAccess reports the caller's effective access on ?path=, and whether
// ?action= (default Read) would be allowed.
func (h *PermissionHandler) CheckAccess(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	action := domain.AccessRead
	if a := q.Get("action"); a != "" {
		parsed, err := domain.ParseAccessType(a)
		if err != nil {
			writeError(w, r, h.log, err)
			return
		}
		action = parsed
	}

	p := principal(r)
	path := q.Get("path")
	effective, err := h.authz.EffectiveAccess(r.Context(), p, path)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	decision := domain.Decision(effective.Covers(action))

	writeJSON(w, http.StatusOK, map[string]any{
		"path":      path,
		"action":    action,
		"decision":  decision.String(),
		"effective": effective,
	})
}
