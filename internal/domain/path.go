package domain

import "strings"

const MembersRoot = "Members"

// NormalizePath converts p to the canonical slash-separated form used by
// grants and recycle rows: no leading or trailing slash, no empty segments.
// The empty string denotes the storage root. Dot segments are rejected.
func NormalizePath(p string) (string, error) {
	p = strings.ReplaceAll(p, "\\", "/")
	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, part := range parts {
		switch part {
		case "":
			continue
		case ".", "..":
			return "", invalidf("path %q contains a relative segment", p)
		}
		out = append(out, part)
	}
	return strings.Join(out, "/"), nil
}

// Segments splits a normalized path.
func Segments(p string) []string {
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// IsWithin reports whether path equals root or lies below it. Matching is
// segment aligned and case-insensitive, so "Docs" covers "docs/Reports" but
// not "DocsArchive". Both arguments must be normalized.
func IsWithin(path, root string) bool {
	rs := Segments(root)
	ps := Segments(path)
	if len(rs) > len(ps) {
		return false
	}
	for i, seg := range rs {
		if !strings.EqualFold(seg, ps[i]) {
			return false
		}
	}
	return true
}

// PersonalSpace is the subtree always fully owned by username.
func PersonalSpace(username string) string {
	return MembersRoot + "/" + username
}

// InPersonalSpace reports whether path lies in username's personal space.
// The Members root matches case-insensitively like any other segment, but the
// owner segment must equal username exactly so "BOB" never reaches Members/bob.
func InPersonalSpace(path, username string) bool {
	if username == "" {
		return false
	}
	ps := Segments(path)
	return len(ps) >= 2 && strings.EqualFold(ps[0], MembersRoot) && ps[1] == username
}

// BaseName returns the last segment of a normalized path.
func BaseName(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}
