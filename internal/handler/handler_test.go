package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"filekeeper/internal/auth"
	"filekeeper/internal/domain"
	"filekeeper/internal/repository/memory"
	"filekeeper/internal/service"
	"filekeeper/internal/storage"
)

func dept(id int64) *int64 { return &id }

var (
	admin = &domain.Principal{ID: 1, Username: "root", Role: domain.RoleAdmin}
	alice = &domain.Principal{ID: 3, Username: "alice", Role: domain.RoleMember, DepartmentID: dept(10)}
	bob   = &domain.Principal{ID: 4, Username: "bob", Role: domain.RoleMember, DepartmentID: dept(20)}
)

type testServer struct {
	t      *testing.T
	srv    *httptest.Server
	root   string
	jwt    *auth.JWTVerifier
	tokens map[int64]string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := zap.NewNop()
	root := t.TempDir()
	backend, err := storage.NewLocalStore(root)
	require.NoError(t, err)

	users := memory.NewUserStore()
	for _, p := range []*domain.Principal{admin, alice, bob} {
		require.NoError(t, users.PutUser(*p))
	}
	users.PutDepartment(domain.Department{ID: 10, Name: "Sales", FolderPath: "Departments/Sales"})
	grants := memory.NewPermissionStore()
	audit := service.NewZapAuditSink(log)

	authz := service.NewAuthorizationService(grants, users, log)
	perms := service.NewPermissionService(grants, users, users, audit, log)
	shares := service.NewShareService(memory.NewShareStore(), authz, backend, audit,
		service.ShareSettings{TokenBytes: 16, BcryptCost: bcrypt.MinCost}, log)
	bin, err := service.NewRecycleService(memory.NewRecycleStore(), authz, backend, audit,
		service.RecycleSettings{Dir: ".recycle", Retention: time.Hour}, log)
	require.NoError(t, err)

	verifier := auth.NewJWTVerifier("handler-test-secret-0123")
	router := NewRouter(
		RouterConfig{AllowedOrigins: []string{"*"}, RequestTimeout: time.Minute},
		verifier,
		NewPermissionHandler(perms, authz, log),
		NewRecycleHandler(bin, log),
		NewShareHandler(shares, backend, log),
		log,
	)

	ts := &testServer{t: t, srv: httptest.NewServer(router), root: root, jwt: verifier, tokens: map[int64]string{}}
	t.Cleanup(ts.srv.Close)
	for _, p := range []*domain.Principal{admin, alice, bob} {
		tok, err := verifier.Sign(p, time.Hour)
		require.NoError(t, err)
		ts.tokens[p.ID] = tok
	}
	return ts
}

func (ts *testServer) writeFile(rel, content string) {
	ts.t.Helper()
	full := filepath.Join(ts.root, filepath.FromSlash(rel))
	require.NoError(ts.t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(ts.t, os.WriteFile(full, []byte(content), 0o644))
}

// do sends a request as p (nil for anonymous) and decodes a JSON response
// into out when out is non-nil.
func (ts *testServer) do(p *domain.Principal, method, path string, body any, out any) *http.Response {
	ts.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(ts.t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, rd)
	require.NoError(ts.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p != nil {
		req.Header.Set("Authorization", "Bearer "+ts.tokens[p.ID])
	}
	resp, err := ts.srv.Client().Do(req)
	require.NoError(ts.t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(ts.t, err)
	if out != nil {
		require.NoError(ts.t, json.Unmarshal(raw, out), string(raw))
	}
	return resp
}

func TestHealthAndAuth(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusOK, ts.do(nil, http.MethodGet, "/healthz", nil, nil).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, ts.do(nil, http.MethodGet, "/api/recycle-bin", nil, nil).StatusCode)
	assert.Equal(t, http.StatusOK, ts.do(alice, http.MethodGet, "/api/recycle-bin", nil, nil).StatusCode)
}

func TestPermissionEndpoints(t *testing.T) {
	ts := newTestServer(t)

	var g domain.PermissionGrant
	resp := ts.do(admin, http.MethodPost, "/api/admin/users/3/permissions",
		map[string]any{"folder_path": "Docs", "access_type": "Read"}, &g)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Docs", g.FolderPath)

	var list []domain.PermissionGrant
	resp = ts.do(admin, http.MethodGet, "/api/admin/users/3/permissions", nil, &list)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, list, 1)

	var check map[string]any
	resp = ts.do(alice, http.MethodGet, "/api/access?path=Docs/a.txt&action=Contribute", nil, &check)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Deny", check["decision"])
	assert.Equal(t, "Read", check["effective"])

	var errBody errorResponse
	resp = ts.do(alice, http.MethodPost, "/api/admin/users/4/permissions",
		map[string]any{"folder_path": "Docs", "access_type": "Read"}, &errBody)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "Forbidden", errBody.Code)

	resp = ts.do(admin, http.MethodPost, "/api/admin/users/3/permissions",
		map[string]any{"folder_path": "Docs", "access_type": "Owner"}, &errBody)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(admin, http.MethodPut, "/api/admin/users/3/permissions",
		map[string]any{"grants": []map[string]any{{"folder_path": "Reports", "access_type": "Full"}}}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(admin, http.MethodDelete, fmt.Sprintf("/api/admin/permissions/%d", g.ID), nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "reconcile already removed it")

	resp = ts.do(admin, http.MethodDelete, "/api/admin/permissions-expired", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequestBodyValidation(t *testing.T) {
	ts := newTestServer(t)

	cases := []struct {
		name  string
		p     *domain.Principal
		path  string
		body  any
		field string
	}{
		{"grant without folder", admin, "/api/admin/users/3/permissions", map[string]any{"access_type": "Read"}, "folder_path"},
		{"grant without access", admin, "/api/admin/users/3/permissions", map[string]any{"folder_path": "Docs"}, "access_type"},
		{"trash without path", alice, "/api/files/trash", map[string]any{}, "path"},
		{"bulk purge without ids", alice, "/api/recycle-bin/purge", map[string]any{"ids": []int64{}}, "ids"},
		{"share without path", alice, "/api/shares", map[string]any{"password": "pw"}, "path"},
		{"collection with blank path", alice, "/api/share-collection", map[string]any{"name": "x", "paths": []string{""}}, "paths"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var errBody errorResponse
			resp := ts.do(tc.p, http.MethodPost, tc.path, tc.body, &errBody)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "InvalidInput", errBody.Code)
			assert.Contains(t, errBody.Error, tc.field)
		})
	}

	var res domain.ReconcileResult
	resp := ts.do(admin, http.MethodPut, "/api/admin/users/3/permissions",
		map[string]any{"grants": []map[string]any{{"folder_path": "Reports", "access_type": "Read"}, {"access_type": "Full"}}}, &res)
	require.Equal(t, http.StatusOK, resp.StatusCode, "one bad entry does not reject the whole sync")
	assert.Len(t, res.Added, 1)
	assert.Len(t, res.Failed, 1)
}

func TestRecycleEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.writeFile("Members/alice/a.txt", "a")

	var item domain.RecycleItem
	resp := ts.do(alice, http.MethodPost, "/api/files/trash", map[string]string{"path": "Members/alice/a.txt"}, &item)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(bob, http.MethodPost, "/api/files/trash", map[string]string{"path": "Members/alice/b.txt"}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	var items []domain.RecycleItem
	ts.do(alice, http.MethodGet, "/api/recycle-bin", nil, &items)
	require.Len(t, items, 1)
	ts.do(bob, http.MethodGet, "/api/recycle-bin", nil, &items)
	assert.Empty(t, items)

	ts.writeFile("Members/alice/a.txt", "occupied")
	var conflict errorResponse
	resp = ts.do(alice, http.MethodPost, fmt.Sprintf("/api/recycle-bin/restore/%d", item.ID), nil, &conflict)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, item.ID, conflict.ID)
	assert.Equal(t, "Members/alice/a.txt", conflict.Path)

	resp = ts.do(alice, http.MethodPost, "/api/recycle-bin/restore/999", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var bulk domain.BulkResult[int64]
	resp = ts.do(alice, http.MethodPost, "/api/recycle-bin/purge", map[string]any{"ids": []int64{item.ID, 999}}, &bulk)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []int64{item.ID}, bulk.Succeeded)
	require.Len(t, bulk.Failed, 1)
	assert.Equal(t, domain.ReasonNotFound, bulk.Failed[0].Reason)

	resp = ts.do(alice, http.MethodDelete, "/api/recycle-bin-clear", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestShareEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.writeFile("Members/alice/report.txt", "quarterly numbers")

	var link domain.ShareLink
	resp := ts.do(alice, http.MethodPost, "/api/shares",
		map[string]any{"path": "Members/alice/report.txt", "password": "pw"}, &link)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, link.Token)

	var errBody errorResponse
	resp = ts.do(nil, http.MethodGet, "/s/"+link.Token, nil, &errBody)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "PasswordRequired", errBody.Code)

	resp = ts.do(nil, http.MethodGet, "/s/"+link.Token+"?password=nope", nil, &errBody)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "PasswordIncorrect", errBody.Code)

	var access shareAccessResponse
	resp = ts.do(nil, http.MethodPost, "/s/"+link.Token, map[string]string{"password": "pw"}, &access)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(1), access.AccessCount)
	assert.Equal(t, "/s/"+link.Token+"/download", access.DownloadURL)

	req, err := http.NewRequest(http.MethodGet, ts.srv.URL+"/s/"+link.Token+"/download", nil)
	require.NoError(t, err)
	req.Header.Set(passwordHeader, "pw")
	dl, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	body, err := io.ReadAll(dl.Body)
	dl.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, dl.StatusCode)
	assert.Equal(t, "quarterly numbers", string(body))
	assert.Contains(t, dl.Header.Get("Content-Disposition"), "report.txt")

	var owned []domain.ShareLink
	ts.do(alice, http.MethodGet, "/api/shares", nil, &owned)
	require.Len(t, owned, 1)
	assert.Equal(t, int64(1), owned[0].AccessCount, "downloads are not counted")

	resp = ts.do(bob, http.MethodDelete, "/api/shares/"+link.ID.String(), nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = ts.do(alice, http.MethodDelete, "/api/shares/"+link.ID.String(), nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = ts.do(nil, http.MethodGet, "/s/"+link.Token+"?password=pw", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(alice, http.MethodDelete, "/api/shares/not-a-uuid", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCollectionDownload(t *testing.T) {
	ts := newTestServer(t)
	ts.writeFile("Members/alice/a.txt", "alpha")
	ts.writeFile("Members/alice/dir/b.txt", "beta")

	var c domain.ShareCollection
	resp := ts.do(alice, http.MethodPost, "/api/share-collection", map[string]any{
		"name":  "bundle",
		"paths": []string{"Members/alice/a.txt", "Members/alice/dir", "Members/alice/a.txt"},
	}, &c)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, c.ItemCount)

	var cols []domain.ShareCollection
	ts.do(alice, http.MethodGet, "/api/my-share-collections", nil, &cols)
	require.Len(t, cols, 1)

	var access shareAccessResponse
	resp = ts.do(nil, http.MethodGet, "/share-collection/"+c.Token, nil, &access)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, domain.ShareKindCollection, access.Kind)

	dl, err := ts.srv.Client().Get(ts.srv.URL + "/share-collection/" + c.Token + "/download")
	require.NoError(t, err)
	raw, err := io.ReadAll(dl.Body)
	dl.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, dl.StatusCode)

	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	contents := map[string]string{}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		contents[f.Name] = string(b)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"a (1).txt", "a.txt", "dir/", "dir/b.txt"}, names)
	assert.Equal(t, "alpha", contents["a (1).txt"])
	assert.Equal(t, "beta", contents["dir/b.txt"])

	resp = ts.do(alice, http.MethodDelete, "/api/share-collection/"+c.ID.String(), nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = ts.do(nil, http.MethodGet, "/share-collection/"+c.Token, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWriteErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{domain.ErrInvalidInput, http.StatusBadRequest, "InvalidInput"},
		{domain.ErrPasswordRequired, http.StatusUnauthorized, "PasswordRequired"},
		{domain.ErrPasswordIncorrect, http.StatusUnauthorized, "PasswordIncorrect"},
		{fmt.Errorf("wrapped: %w", domain.ErrForbidden), http.StatusForbidden, "Forbidden"},
		{domain.ErrNotFound, http.StatusNotFound, "NotFound"},
		{domain.ErrExpired, http.StatusGone, "Expired"},
		{&domain.ConflictError{ID: 7, Path: "Docs/a"}, http.StatusConflict, "Conflict"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "Internal"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), zap.NewNop(), tc.err)
			assert.Equal(t, tc.status, rec.Code)

			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body.Code)
			if tc.status == http.StatusInternalServerError {
				assert.NotContains(t, body.Error, "disk on fire")
			}
		})
	}
}

func TestUniqueName(t *testing.T) {
	seen := map[string]int{}
	assert.Equal(t, "a.txt", uniqueName(seen, "a.txt"))
	assert.Equal(t, "a (1).txt", uniqueName(seen, "a.txt"))
	assert.Equal(t, "a (2).txt", uniqueName(seen, "a.txt"))
	assert.Equal(t, "README", uniqueName(seen, "README"))
	assert.Equal(t, "README (1)", uniqueName(seen, "README"))
}
