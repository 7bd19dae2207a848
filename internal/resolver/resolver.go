// Package resolver maps track descriptors to concrete fetchable URLs.
//
// Resolution follows a fixed priority: content-delivery endpoint, then the
// storage-proxy endpoint, then the track's own URL as a direct
// pass-through. A cache-busting query parameter is appended unless the URL
// already carries one.
package resolver

import (
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/quietroom/quietroom/internal/domain"
)

// cacheBustParam is the query key marking a resolved URL as cache-busted.
const cacheBustParam = "v"

// signatureParam marks a presigned object-storage URL.
const signatureParam = "X-Amz-Signature"

// Resolver produces playable URLs for track descriptors.
type Resolver struct {
	cdnBase    string
	proxyBase  string
	forceHTTPS bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCDNBase sets the content-delivery endpoint, tried first.
func WithCDNBase(base string) Option {
	return func(r *Resolver) { r.cdnBase = strings.TrimRight(base, "/") }
}

// WithProxyBase sets the storage-proxy endpoint, tried second.
func WithProxyBase(base string) Option {
	return func(r *Resolver) { r.proxyBase = strings.TrimRight(base, "/") }
}

// WithForceHTTPS upgrades http URLs to https, per deployment content
// restrictions.
func WithForceHTTPS(on bool) Option {
	return func(r *Resolver) { r.forceHTTPS = on }
}

// New creates a resolver with the given options.
func New(opts ...Option) *Resolver {
	r := &Resolver{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the playable URL for a track under the priority order
// CDN, proxy, direct pass-through. Returns a *domain.SourceLoadError when
// no base and no track URL is available.
func (r *Resolver) Resolve(track domain.Track) (string, error) {
	raw := ""
	switch {
	case r.cdnBase != "" && track.SourceKey != "":
		raw = r.cdnBase + "/" + escapeKey(track.SourceKey)
	case r.proxyBase != "" && track.SourceKey != "":
		raw = r.proxyBase + "/" + escapeKey(track.SourceKey)
	case track.PlayableURL != "":
		raw = track.PlayableURL
	case track.FallbackURL != "":
		raw = track.FallbackURL
	default:
		return "", domain.NewSourceLoadError("", "no resolvable source for track "+track.ID, nil)
	}

	return r.finalize(raw)
}

// ResolveFallback returns the inline fallback URL for a track, used after a
// resolved URL failed to load.
func (r *Resolver) ResolveFallback(track domain.Track) (string, error) {
	if track.FallbackURL == "" {
		return "", domain.NewSourceLoadError("", "no fallback source for track "+track.ID, nil)
	}
	return r.finalize(track.FallbackURL)
}

// finalize applies scheme restrictions and the cache-busting parameter.
func (r *Resolver) finalize(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", domain.NewSourceLoadError(raw, "unparseable URL", err)
	}

	// Local paths pass through untouched: no scheme policy, no busting.
	if u.Scheme == "" || u.Scheme == "file" {
		return raw, nil
	}

	if r.forceHTTPS && u.Scheme == "http" {
		u.Scheme = "https"
	}

	// Signed URLs pass through untouched; an extra parameter would break
	// the signature.
	q := u.Query()
	if q.Get(cacheBustParam) == "" && q.Get(signatureParam) == "" {
		q.Set(cacheBustParam, uuid.NewString())
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

// CacheKey returns the stable identity of a resolved URL: the URL with
// the cache-busting and signing parameters removed. Cache entries are
// keyed by this form so a re-resolution, which busts and signs anew,
// still hits.
func CacheKey(resolved string) string {
	u, err := url.Parse(resolved)
	if err != nil {
		return resolved
	}
	q := u.Query()
	changed := false
	for param := range q {
		if param == cacheBustParam || strings.HasPrefix(param, "X-Amz-") {
			q.Del(param)
			changed = true
		}
	}
	if !changed {
		return resolved
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
