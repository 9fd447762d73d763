package crawler

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// RequestKind is the closed set of request shapes the cache knows how to key.
type RequestKind string

// Supported request kinds.
const (
	KindListing RequestKind = "listing"
	KindDetail  RequestKind = "detail"
	KindOther   RequestKind = "other"
)

// Path fragments identifying the two remote endpoints.
const (
	ListingPathMarker = "api/security/ann"
	DetailPathMarker  = "api/content/ann"
)

// Query parameters whose values change on every call.
const (
	ParamCallback  = "cb"
	ParamTimestamp = "_"
)

// Signature is the normalized, volatile-free identity of a request.
type Signature struct {
	Kind RequestKind
	// Key is the identifying parameter: page index for listings, art code for
	// details, or a digest of the normalized URL for anything else.
	Key string
	// Normalized is the request URL with volatile parameters stripped and the
	// remaining query sorted.
	Normalized string
}

// String renders the signature as kind:key.
func (s Signature) String() string {
	return fmt.Sprintf("%s:%s", s.Kind, s.Key)
}

// ClassifyPath maps a request path onto a RequestKind.
func ClassifyPath(path string) RequestKind {
	switch {
	case strings.Contains(path, ListingPathMarker):
		return KindListing
	case strings.Contains(path, DetailPathMarker):
		return KindDetail
	default:
		return KindOther
	}
}

// DeriveSignature computes the cache signature for rawURL. Two URLs that differ
// only in callback name or timestamp yield equal signatures.
func DeriveSignature(rawURL string) (Signature, error) {
	normalized, u, err := normalizeURL(rawURL)
	if err != nil {
		return Signature{}, err
	}
	kind := ClassifyPath(u.Path)
	q := u.Query()
	sig := Signature{Kind: kind, Normalized: normalized}
	switch kind {
	case KindListing:
		sig.Key = firstNonEmpty(q.Get("page_index"), "1")
	case KindDetail:
		sig.Key = firstNonEmpty(q.Get("art_code"), "unknown")
	default:
		sig.Key = fmt.Sprintf("%016x", xxhash.Sum64String(normalized))
	}
	return sig, nil
}

// NormalizeURL standardizes a URL so that volatile parameters never
// distinguish two requests. It lowercases the scheme and host, removes default
// ports and fragments, drops the callback and timestamp parameters and sorts
// what remains.
func NormalizeURL(rawURL string) (string, error) {
	normalized, _, err := normalizeURL(rawURL)
	return normalized, err
}

func normalizeURL(rawURL string) (string, *url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", nil, fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	u.Fragment = ""

	q := u.Query()
	q.Del(ParamCallback)
	q.Del(ParamTimestamp)
	u.RawQuery = q.Encode()

	return u.String(), u, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
