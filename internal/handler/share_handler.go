package handler

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"

	"filekeeper/internal/domain"
	"filekeeper/internal/service"
	"filekeeper/internal/storage"
)

const passwordHeader = "X-Share-Password"

type ShareHandler struct {
	shares  *service.ShareService
	storage storage.Backend
	log     *zap.Logger
}

func NewShareHandler(shares *service.ShareService, backend storage.Backend, log *zap.Logger) *ShareHandler {
	return &ShareHandler{shares: shares, storage: backend, log: log}
}

type createShareRequest struct {
	Path      string     `json:"path" validate:"required"`
	Password  string     `json:"password,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type createCollectionRequest struct {
	Name      string     `json:"name"`
	Paths     []string   `json:"paths" validate:"required,min=1,dive,required"`
	Password  string     `json:"password,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type bulkDeleteRequest struct {
	IDs []uuid.UUID `json:"ids" validate:"required,min=1"`
}

type shareAccessResponse struct {
	*domain.ShareAccess
	DownloadURL string `json:"download_url"`
}

func (h *ShareHandler) CreateShare(w http.ResponseWriter, r *http.Request) {
	var req createShareRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	link, err := h.shares.CreateFileShare(r.Context(), principal(r), req.Path, domain.ShareOptions{
		Password:  req.Password,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

func (h *ShareHandler) ListShares(w http.ResponseWriter, r *http.Request) {
	links, err := h.shares.ListOwned(r.Context(), principal(r))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, links)
}

func (h *ShareHandler) DeleteShare(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if err := h.shares.Revoke(r.Context(), principal(r), id); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

func (h *ShareHandler) BulkDeleteShares(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, h.shares.RevokeMany(r.Context(), principal(r), req.IDs))
}

func (h *ShareHandler) CreateCollection(w http.ResponseWriter, r *http.Request) {
	var req createCollectionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	c, err := h.shares.CreateCollectionShare(r.Context(), principal(r), req.Name, req.Paths, domain.ShareOptions{
		Password:  req.Password,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ShareHandler) ListCollections(w http.ResponseWriter, r *http.Request) {
	cols, err := h.shares.ListOwnedCollections(r.Context(), principal(r))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, cols)
}

func (h *ShareHandler) DeleteCollection(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if err := h.shares.RevokeCollection(r.Context(), principal(r), id); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// ResolveLink is the public entry point of a file share.
func (h *ShareHandler) ResolveLink(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	access, err := h.shares.ResolveLink(r.Context(), token, sharePassword(r))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, shareAccessResponse{ShareAccess: access, DownloadURL: "/s/" + token + "/download"})
}

func (h *ShareHandler) ResolveCollection(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	access, err := h.shares.ResolveCollection(r.Context(), token, sharePassword(r))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, shareAccessResponse{ShareAccess: access, DownloadURL: "/share-collection/" + token + "/download"})
}

func (h *ShareHandler) DownloadLink(w http.ResponseWriter, r *http.Request) {
	access, err := h.shares.AuthorizeLinkDownload(r.Context(), chi.URLParam(r, "token"), sharePassword(r))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	rc, err := h.shares.OpenContent(r.Context(), access, access.Paths[0])
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": access.Name}))
	if _, err := io.Copy(w, rc); err != nil {
		h.log.Warn("share download interrupted", zap.String("share_id", access.ID.String()), zap.Error(err))
	}
}

// DownloadCollection streams every item of a collection as one zip archive.
// Items deleted since the collection was created are skipped.
func (h *ShareHandler) DownloadCollection(w http.ResponseWriter, r *http.Request) {
	access, err := h.shares.AuthorizeCollectionDownload(r.Context(), chi.URLParam(r, "token"), sharePassword(r))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": access.Name + ".zip"}))

	zw := zip.NewWriter(w)
	names := make(map[string]int)
	for _, p := range access.Paths {
		name := uniqueName(names, domain.BaseName(p))
		if err := h.addToArchive(r, zw, p, name); err != nil {
			if errors.Is(err, storage.ErrNotExist) {
				h.log.Info("skipping missing collection item", zap.String("path", p))
				continue
			}
			h.log.Error("collection archive failed", zap.String("share_id", access.ID.String()), zap.Error(err))
			return
		}
	}
	if err := zw.Close(); err != nil {
		h.log.Error("failed to finish collection archive", zap.Error(err))
	}
}

func (h *ShareHandler) addToArchive(r *http.Request, zw *zip.Writer, root, name string) error {
	ctx := r.Context()
	return h.storage.Walk(ctx, root, func(rel string, e storage.Entry) error {
		entryName := name
		if rel != "" {
			entryName = name + "/" + rel
		}
		hdr := &zip.FileHeader{Name: entryName, Method: zip.Deflate, Modified: e.ModTime}
		if e.IsDir {
			hdr.Name += "/"
			hdr.Method = zip.Store
			_, err := zw.CreateHeader(hdr)
			return err
		}

		dst, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		src, err := h.storage.Open(ctx, e.Path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(dst, src)
		return err
	})
}

// uniqueName disambiguates repeated archive names as "a.txt", "a (1).txt", ...
func uniqueName(seen map[string]int, name string) string {
	n := seen[name]
	seen[name] = n + 1
	if n == 0 {
		return name
	}
	ext := ""
	for i := len(name) - 1; i > 0; i-- {
		if name[i] == '.' {
			ext = name[i:]
			name = name[:i]
			break
		}
	}
	return name + " (" + strconv.Itoa(n) + ")" + ext
}

// sharePassword reads the password from ?password=, the X-Share-Password
// header, or a JSON body {"password": ...} on POST, in that order.
func sharePassword(r *http.Request) string {
	if p := r.URL.Query().Get("password"); p != "" {
		return p
	}
	if p := r.Header.Get(passwordHeader); p != "" {
		return p
	}
	if r.Method == http.MethodPost && r.Body != nil {
		var body struct {
			Password string `json:"password"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err == nil {
			return body.Password
		}
	}
	return ""
}
