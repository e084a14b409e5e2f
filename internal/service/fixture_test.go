package service

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"filekeeper/internal/domain"
	"filekeeper/internal/repository/memory"
	"filekeeper/internal/storage"
)

type recordingAudit struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (a *recordingAudit) Record(_ context.Context, ev domain.AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
}

func (a *recordingAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.events))
	for i, ev := range a.events {
		out[i] = ev.Action
	}
	return out
}

func deptID(id int64) *int64 { return &id }

var (
	admin = &domain.Principal{ID: 1, Username: "root", Role: domain.RoleAdmin}
	lead  = &domain.Principal{ID: 2, Username: "lena", Role: domain.RoleLead, DepartmentID: deptID(10)}
	alice = &domain.Principal{ID: 3, Username: "alice", Role: domain.RoleMember, DepartmentID: deptID(10)}
	bob   = &domain.Principal{ID: 4, Username: "bob", Role: domain.RoleMember, DepartmentID: deptID(20)}
)

type fixture struct {
	t     *testing.T
	ctx   context.Context
	root  string
	clock time.Time

	grants  *memory.PermissionStore
	users   *memory.UserStore
	shares  *memory.ShareStore
	recycle *memory.RecycleStore
	backend *storage.LocalStore
	audit   *recordingAudit

	authz *AuthorizationService
	perms *PermissionService
	share *ShareService
	bin   *RecycleService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zap.NewNop()
	root := t.TempDir()
	backend, err := storage.NewLocalStore(root)
	require.NoError(t, err)

	f := &fixture{
		t:       t,
		ctx:     context.Background(),
		root:    root,
		clock:   time.Date(2024, 12, 1, 12, 0, 0, 0, time.UTC),
		grants:  memory.NewPermissionStore(),
		users:   memory.NewUserStore(),
		shares:  memory.NewShareStore(),
		recycle: memory.NewRecycleStore(),
		backend: backend,
		audit:   &recordingAudit{},
	}
	for _, p := range []*domain.Principal{admin, lead, alice, bob} {
		require.NoError(t, f.users.PutUser(*p))
	}
	f.users.PutDepartment(domain.Department{ID: 10, Name: "Sales", FolderPath: "Departments/Sales"})
	f.users.PutDepartment(domain.Department{ID: 20, Name: "Support", FolderPath: "Departments/Support"})

	f.authz = NewAuthorizationService(f.grants, f.users, log)
	f.authz.now = f.now
	f.perms = NewPermissionService(f.grants, f.users, f.users, f.audit, log)
	f.perms.now = f.now
	f.share = NewShareService(f.shares, f.authz, backend, f.audit, ShareSettings{TokenBytes: 16, BcryptCost: bcrypt.MinCost}, log)
	f.share.now = f.now
	f.bin, err = NewRecycleService(f.recycle, f.authz, backend, f.audit, RecycleSettings{Dir: ".recycle", Retention: 30 * 24 * time.Hour}, log)
	require.NoError(t, err)
	f.bin.now = f.now
	return f
}

func (f *fixture) now() time.Time { return f.clock }

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

// grant inserts a grant directly, bypassing administration rules.
func (f *fixture) grant(userID int64, path string, access domain.AccessType, expiresAt *time.Time) *domain.PermissionGrant {
	f.t.Helper()
	g := &domain.PermissionGrant{UserID: userID, FolderPath: path, AccessType: access, ExpiresAt: expiresAt, GrantedBy: admin.ID}
	require.NoError(f.t, f.grants.Create(f.ctx, g))
	return g
}

func (f *fixture) writeFile(rel, content string) {
	f.t.Helper()
	full := filepath.Join(f.root, filepath.FromSlash(rel))
	require.NoError(f.t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(f.t, os.WriteFile(full, []byte(content), 0o644))
}

func (f *fixture) readFile(rel string) string {
	f.t.Helper()
	b, err := os.ReadFile(filepath.Join(f.root, filepath.FromSlash(rel)))
	require.NoError(f.t, err)
	return string(b)
}

func (f *fixture) exists(rel string) bool {
	_, err := os.Stat(filepath.Join(f.root, filepath.FromSlash(rel)))
	return err == nil
}

func at(t time.Time) *time.Time { return &t }
