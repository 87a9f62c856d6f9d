package parse

import (
	"encoding/hex"
	"encoding/json"
	"net"
	"net/url"
	"path"
	"strings"
)

// QueryMarker separates a file stem from its hex-encoded query string in object names
const QueryMarker = "-mirror-"

// IndexDocument is appended to storage keys for directory paths
const IndexDocument = "index.html"

// IsValidPath reports whether p is a host-relative absolute path
func IsValidPath(p string) bool {
	return strings.HasPrefix(p, "/")
}

// Resolve resolves ref, found in the document at currentPath, against the target origin.
// It returns the host-relative form (path, optional query, optional fragment) and true
// when ref points at the target host over http(s). Empty refs, pure fragments,
// other schemes and other hosts return false.
func Resolve(target *url.URL, currentPath, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return "", false
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	if refURL.Scheme != "" && refURL.Scheme != "http" && refURL.Scheme != "https" {
		return "", false
	}

	base, err := url.Parse(currentPath)
	if err != nil {
		base = &url.URL{Path: currentPath}
	}
	base.Scheme = target.Scheme
	base.Host = target.Host
	base.RawQuery, base.ForceQuery, base.Fragment, base.RawFragment = "", false, "", ""

	resolved := base.ResolveReference(refURL)
	if HostKey(resolved) != HostKey(target) {
		return "", false
	}
	return HostRelative(resolved), true
}

// HostKey lowercases the host and drops the default port of the URL's scheme
func HostKey(u *url.URL) string {
	if u == nil {
		return ""
	}
	h := strings.ToLower(u.Host)
	host, port, err := net.SplitHostPort(h)
	if err == nil {
		scheme := strings.ToLower(u.Scheme)
		if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
			return host
		}
	}
	return h
}

// HostRelative renders u without scheme and host. An explicitly empty query ("?")
// and the fragment are kept.
func HostRelative(u *url.URL) string {
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if u.ForceQuery || u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	if u.Fragment != "" {
		p += "#" + u.EscapedFragment()
	}
	return p
}

// ObjectPath maps a host-relative path to the path the mirrored object is served under.
// A query string is folded into the file name: "/a/font.eot?#x" becomes
// "/a/font-mirror-7b7d.eot#x" (hex of the JSON-encoded query values). The fragment is kept.
func ObjectPath(p string) string {
	base, fragment, hasFragment := strings.Cut(p, "#")
	pathPart, rawQuery, hasQuery := strings.Cut(base, "?")
	if !hasQuery {
		return p
	}

	// ParseQuery keeps whatever it could decode; that is enough for a stable name
	values, _ := url.ParseQuery(rawQuery)
	encoded, err := json.Marshal(values)
	if err != nil {
		encoded = []byte(rawQuery)
	}
	suffix := QueryMarker + hex.EncodeToString(encoded)

	dir, file := path.Split(pathPart)
	if file == "" {
		file = IndexDocument
	}
	ext := path.Ext(file)
	out := dir + strings.TrimSuffix(file, ext) + suffix + ext
	if hasFragment {
		out += "#" + fragment
	}
	return out
}

// DedupPath is the fragment-free object path, used to key local dedup markers
func DedupPath(p string) string {
	op := ObjectPath(p)
	if i := strings.IndexByte(op, '#'); i >= 0 {
		op = op[:i]
	}
	return op
}

// StorageKey maps a host-relative path to its object store key: the unescaped
// object path without its leading slash, with index.html for directories.
func StorageKey(p string) string {
	key := DedupPath(p)
	if unescaped, err := url.PathUnescape(key); err == nil {
		key = unescaped
	}
	key = strings.TrimPrefix(key, "/")
	if key == "" || strings.HasSuffix(key, "/") {
		key += IndexDocument
	}
	return key
}
