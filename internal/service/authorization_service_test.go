package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filekeeper/internal/domain"
)

func TestResolveRoleDefaults(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name   string
		p      *domain.Principal
		path   string
		action domain.AccessType
		want   domain.Decision
	}{
		{"admin anywhere", admin, "Anything/at/all", domain.AccessFull, domain.Allow},
		{"personal space", alice, "Members/alice/notes.txt", domain.AccessFull, domain.Allow},
		{"personal space root", alice, "Members/alice", domain.AccessFull, domain.Allow},
		{"members root case", alice, "members/alice/x", domain.AccessFull, domain.Allow},
		{"owner segment is exact", alice, "Members/ALICE/x", domain.AccessRead, domain.Deny},
		{"someone else's space", alice, "Members/bob/x", domain.AccessRead, domain.Deny},
		{"prefix of username", alice, "Members/alicex/x", domain.AccessRead, domain.Deny},
		{"lead in department", lead, "Departments/Sales/Q1/report.pdf", domain.AccessFull, domain.Allow},
		{"lead outside department", lead, "Departments/Support/x", domain.AccessRead, domain.Deny},
		{"member not lead", alice, "Departments/Sales/x", domain.AccessRead, domain.Deny},
		{"no principal", nil, "Docs", domain.AccessRead, domain.Deny},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := f.authz.Resolve(f.ctx, tc.p, tc.path, tc.action)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResolvePersonalSpaceNeedsExactUsername(t *testing.T) {
	f := newFixture(t)
	f.writeFile("Members/bob/secret.txt", "mine")
	shouty := &domain.Principal{ID: 99, Username: "BOB", Role: domain.RoleMember}

	got, err := f.authz.Resolve(f.ctx, shouty, "Members/bob/secret.txt", domain.AccessRead)
	require.NoError(t, err)
	assert.Equal(t, domain.Deny, got)

	_, err = f.bin.Trash(f.ctx, shouty, "Members/bob/secret.txt")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Equal(t, "mine", f.readFile("Members/bob/secret.txt"))

	got, err = f.authz.Resolve(f.ctx, bob, "Members/bob/secret.txt", domain.AccessFull)
	require.NoError(t, err)
	assert.Equal(t, domain.Allow, got)
}

func TestResolveSegmentAlignedPrefix(t *testing.T) {
	f := newFixture(t)
	f.grant(alice.ID, "Docs", domain.AccessRead, nil)

	for path, want := range map[string]domain.Decision{
		"Docs":              domain.Allow,
		"Docs/Reports":      domain.Allow,
		"Docs/Reports/a.md": domain.Allow,
		"/docs//reports/":   domain.Allow,
		"DocsArchive":       domain.Deny,
		"DocsArchive/a.md":  domain.Deny,
		"Other/Docs":        domain.Deny,
	} {
		got, err := f.authz.Resolve(f.ctx, alice, path, domain.AccessRead)
		require.NoError(t, err)
		assert.Equal(t, want, got, path)
	}
}

func TestResolveLongestPrefixWins(t *testing.T) {
	f := newFixture(t)
	f.grant(alice.ID, "Docs", domain.AccessFull, nil)
	f.grant(alice.ID, "Docs/Secret", domain.AccessRead, nil)

	got, err := f.authz.Resolve(f.ctx, alice, "Docs/Secret/plan.txt", domain.AccessContribute)
	require.NoError(t, err)
	assert.Equal(t, domain.Deny, got)

	got, err = f.authz.Resolve(f.ctx, alice, "Docs/Public/plan.txt", domain.AccessContribute)
	require.NoError(t, err)
	assert.Equal(t, domain.Allow, got)
}

func TestResolveTiePrefersMostPermissive(t *testing.T) {
	f := newFixture(t)
	f.grant(alice.ID, "Docs", domain.AccessRead, nil)
	f.grant(alice.ID, "docs", domain.AccessContribute, nil)

	access, err := f.authz.EffectiveAccess(f.ctx, alice, "Docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, domain.AccessContribute, access)

	got, err := f.authz.Resolve(f.ctx, alice, "Docs/a.txt", domain.AccessFull)
	require.NoError(t, err)
	assert.Equal(t, domain.Deny, got)
}

func TestResolveExpiredGrantIsAbsent(t *testing.T) {
	f := newFixture(t)
	f.grant(alice.ID, "Docs", domain.AccessRead, nil)
	f.grant(alice.ID, "Docs/Q1", domain.AccessFull, at(f.clock.Add(-time.Minute)))

	withExpired := map[domain.AccessType]domain.Decision{}
	for _, a := range []domain.AccessType{domain.AccessRead, domain.AccessContribute, domain.AccessFull} {
		d, err := f.authz.Resolve(f.ctx, alice, "Docs/Q1/file.txt", a)
		require.NoError(t, err)
		withExpired[a] = d
	}

	g := newFixture(t)
	g.grant(alice.ID, "Docs", domain.AccessRead, nil)
	for a, d := range withExpired {
		want, err := g.authz.Resolve(g.ctx, alice, "Docs/Q1/file.txt", a)
		require.NoError(t, err)
		assert.Equal(t, want, d, a)
	}
	assert.Equal(t, domain.Allow, withExpired[domain.AccessRead])
	assert.Equal(t, domain.Deny, withExpired[domain.AccessFull])
}

func TestResolveExpiryBoundary(t *testing.T) {
	f := newFixture(t)
	expires := f.clock.Add(time.Second)
	f.grant(alice.ID, "Docs", domain.AccessRead, &expires)

	got, err := f.authz.Resolve(f.ctx, alice, "Docs/a", domain.AccessRead)
	require.NoError(t, err)
	assert.Equal(t, domain.Allow, got)

	f.advance(time.Second)
	got, err = f.authz.Resolve(f.ctx, alice, "Docs/a", domain.AccessRead)
	require.NoError(t, err)
	assert.Equal(t, domain.Deny, got, "a grant is expired at its expiry instant")
}

func TestResolveGrantExpiringNewYear(t *testing.T) {
	f := newFixture(t)
	expires := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := f.perms.Grant(f.ctx, admin, alice.ID, domain.GrantSpec{
		FolderPath: "Docs/Q1",
		AccessType: domain.AccessContribute,
		ExpiresAt:  &expires,
	})
	require.NoError(t, err)

	got, err := f.authz.Resolve(f.ctx, alice, "Docs/Q1/file.txt", domain.AccessRead)
	require.NoError(t, err)
	assert.Equal(t, domain.Allow, got)

	f.clock = time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	got, err = f.authz.Resolve(f.ctx, alice, "Docs/Q1/file.txt", domain.AccessRead)
	require.NoError(t, err)
	assert.Equal(t, domain.Deny, got)
}

func TestResolveRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.authz.Resolve(f.ctx, alice, "Docs", domain.AccessType("Write"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.authz.Resolve(f.ctx, alice, "Docs/../Members/bob", domain.AccessRead)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestResolveUnknownDepartmentDenies(t *testing.T) {
	f := newFixture(t)
	orphan := &domain.Principal{ID: 9, Username: "orphan", Role: domain.RoleLead, DepartmentID: deptID(99)}

	got, err := f.authz.Resolve(f.ctx, orphan, "Departments/Sales", domain.AccessRead)
	require.NoError(t, err)
	assert.Equal(t, domain.Deny, got)
}

func TestResolveConcurrent(t *testing.T) {
	f := newFixture(t)
	f.grant(alice.ID, "Docs", domain.AccessContribute, nil)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := f.authz.Resolve(f.ctx, alice, "Docs/x", domain.AccessContribute)
			assert.NoError(t, err)
			assert.Equal(t, domain.Allow, got)
		}()
	}
	wg.Wait()
}
