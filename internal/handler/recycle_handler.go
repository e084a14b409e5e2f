package handler

import (
	"net/http"

	"go.uber.org/zap"

	"filekeeper/internal/service"
)

type RecycleHandler struct {
	bin *service.RecycleService
	log *zap.Logger
}

func NewRecycleHandler(bin *service.RecycleService, log *zap.Logger) *RecycleHandler {
	return &RecycleHandler{bin: bin, log: log}
}

type trashRequest struct {
	Path string `json:"path" validate:"required"`
}

type idsRequest struct {
	IDs []int64 `json:"ids" validate:"required,min=1"`
}

func (h *RecycleHandler) Trash(w http.ResponseWriter, r *http.Request) {
	var req trashRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	item, err := h.bin.Trash(r.Context(), principal(r), req.Path)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *RecycleHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.bin.List(r.Context(), principal(r))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *RecycleHandler) Restore(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if err := h.bin.Restore(r.Context(), principal(r), id); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"restored": id})
}

func (h *RecycleHandler) BulkRestore(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, h.bin.BulkRestore(r.Context(), principal(r), req.IDs))
}

func (h *RecycleHandler) Purge(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if err := h.bin.Purge(r.Context(), principal(r), id); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"purged": id})
}

func (h *RecycleHandler) BulkPurge(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, h.bin.BulkPurge(r.Context(), principal(r), req.IDs))
}

func (h *RecycleHandler) ClearAll(w http.ResponseWriter, r *http.Request) {
	res, err := h.bin.ClearAll(r.Context(), principal(r))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"succeeded": len(res.Succeeded),
		"failed":    len(res.Failed),
		"result":    res,
	})
}
