// Package contentstore maps content identifiers to fetchable URLs on the
// host side.
package contentstore

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrMalformedURI is returned for identifiers that are not sha1:// URIs.
	ErrMalformedURI = errors.New("malformed content uri")
	// ErrNotFound is returned when no store knows the identifier.
	ErrNotFound = errors.New("content not found")
)

const scheme = "sha1://"

// URI is a parsed content identifier.
type URI struct {
	Hash  string // 40 lowercase hex digits
	Name  string // optional path after the hash
	Label string // optional ?label=
}

// String formats u back into sha1:// form.
func (u URI) String() string {
	s := scheme + u.Hash
	if u.Name != "" {
		s += "/" + u.Name
	}
	if u.Label != "" {
		s += "?label=" + url.QueryEscape(u.Label)
	}
	return s
}

// ParseURI parses sha1://<hash>[/<name>][?label=...].
func ParseURI(raw string) (URI, error) {
	rest, ok := strings.CutPrefix(raw, scheme)
	if !ok {
		return URI{}, fmt.Errorf("%w: %q", ErrMalformedURI, raw)
	}

	var u URI
	if path, query, found := strings.Cut(rest, "?"); found {
		rest = path
		q, err := url.ParseQuery(query)
		if err != nil {
			return URI{}, fmt.Errorf("%w: %q: %v", ErrMalformedURI, raw, err)
		}
		u.Label = q.Get("label")
	}
	u.Hash, u.Name, _ = strings.Cut(rest, "/")
	u.Hash = strings.ToLower(u.Hash)

	if !isHash(u.Hash) {
		return URI{}, fmt.Errorf("%w: %q", ErrMalformedURI, raw)
	}
	return u, nil
}

func isHash(s string) bool {
	if len(s) != 40 {
		return false
	}
	for _, c := range s {
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return false
		}
	}
	return true
}

// Resolver turns a content identifier into a URL.
type Resolver interface {
	Resolve(uri string) (string, error)
}

// Static is a literal alias table from identifier to URL.
type Static map[string]string

// Resolve implements Resolver.
func (s Static) Resolve(uri string) (string, error) {
	if u, ok := s[uri]; ok {
		return u, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, uri)
}

// Chain asks each resolver in turn. The first one that knows the identifier
// wins; a malformed identifier stops the search.
type Chain []Resolver

// Resolve implements Resolver.
func (c Chain) Resolve(uri string) (string, error) {
	for _, r := range c {
		u, err := r.Resolve(uri)
		switch {
		case err == nil:
			return u, nil
		case errors.Is(err, ErrNotFound):
			continue
		default:
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, uri)
}
