// Package accessor provides lazy header and cookie readers shared by all
// transport adaptors. Each factory wraps one envelope shape behind the same
// Getter interface: single-key lookups try a direct, non-normalizing path
// first and only fall back to a lazily built lower-cased map on a miss;
// requesting all entries builds that map once and caches it.
package accessor

import (
	"net/http"
	"net/textproto"
	"strings"
	"sync"
)

// Getter reads header- or cookie-shaped key/value data.
//
// Get performs a case-insensitive lookup of one key. All returns the fully
// normalized map (lower-cased keys), built at most once per Getter. A direct
// Get and a later All always agree on the value of a key, whichever is
// called first.
type Getter interface {
	Get(key string) (string, bool)
	All() map[string]string
}

type nopGetter struct{}

func (nopGetter) Get(string) (string, bool) { return "", false }
func (nopGetter) All() map[string]string    { return map[string]string{} }

// Nop returns a Getter that is always empty, for transports that carry no
// headers or cookies. It keeps the pipeline free of nil checks.
func Nop() Getter {
	return nopGetter{}
}

// mapGetter serves flat maps whose keys may vary in case across providers.
type mapGetter struct {
	raw map[string]string

	once       sync.Once
	normalized map[string]string
}

// FromMap returns a Getter over a flat, possibly case-varying map.
func FromMap(raw map[string]string) Getter {
	if raw == nil {
		return Nop()
	}
	return &mapGetter{raw: raw}
}

func (g *mapGetter) Get(key string) (string, bool) {
	// Direct attempts before paying for normalization: the exact key, the
	// lower-cased key, and the canonical MIME form cover every shape the
	// two transport envelopes produce in practice.
	if v, ok := g.raw[key]; ok {
		return v, true
	}
	lower := strings.ToLower(key)
	if v, ok := g.raw[lower]; ok {
		return v, true
	}
	if v, ok := g.raw[textproto.CanonicalMIMEHeaderKey(key)]; ok {
		return v, true
	}
	v, ok := g.normalize()[lower]
	return v, ok
}

func (g *mapGetter) All() map[string]string {
	return g.normalize()
}

func (g *mapGetter) normalize() map[string]string {
	g.once.Do(func() {
		g.normalized = make(map[string]string, len(g.raw))
		for k, v := range g.raw {
			g.normalized[strings.ToLower(k)] = v
		}
	})
	return g.normalized
}

// pairsGetter serves cookie data delivered as "name=value" entries, with an
// optional raw Cookie header string as fallback when the entry list is
// absent.
type pairsGetter struct {
	pairs        []string
	cookieHeader string

	once       sync.Once
	normalized map[string]string
}

// FromPairs returns a Getter over "name=value" entries. When pairs is
// empty, cookieHeader is parsed as a single Cookie header string
// ("a=1; b=2") instead.
func FromPairs(pairs []string, cookieHeader string) Getter {
	if len(pairs) == 0 && cookieHeader == "" {
		return Nop()
	}
	return &pairsGetter{pairs: pairs, cookieHeader: cookieHeader}
}

func (g *pairsGetter) Get(key string) (string, bool) {
	// Direct scan first: no map is built unless the scan misses.
	lower := strings.ToLower(key)
	for _, pair := range g.pairs {
		name, value, ok := strings.Cut(pair, "=")
		if ok && strings.ToLower(strings.TrimSpace(name)) == lower {
			return strings.TrimSpace(value), true
		}
	}
	v, ok := g.normalize()[lower]
	return v, ok
}

func (g *pairsGetter) All() map[string]string {
	return g.normalize()
}

func (g *pairsGetter) normalize() map[string]string {
	g.once.Do(func() {
		entries := g.pairs
		if len(entries) == 0 {
			entries = strings.Split(g.cookieHeader, ";")
		}
		g.normalized = make(map[string]string, len(entries))
		for _, pair := range entries {
			name, value, ok := strings.Cut(pair, "=")
			if !ok {
				continue
			}
			name = strings.ToLower(strings.TrimSpace(name))
			if name == "" {
				continue
			}
			g.normalized[name] = strings.TrimSpace(value)
		}
	})
	return g.normalized
}

// headerGetter serves http.Header using its canonical-key lookup for the
// direct path.
type headerGetter struct {
	header http.Header

	once       sync.Once
	normalized map[string]string
}

// FromHTTPHeader returns a Getter over an http.Header.
func FromHTTPHeader(h http.Header) Getter {
	if h == nil {
		return Nop()
	}
	return &headerGetter{header: h}
}

func (g *headerGetter) Get(key string) (string, bool) {
	if v := g.header.Get(key); v != "" {
		return v, true
	}
	v, ok := g.normalize()[strings.ToLower(key)]
	return v, ok
}

func (g *headerGetter) All() map[string]string {
	return g.normalize()
}

func (g *headerGetter) normalize() map[string]string {
	g.once.Do(func() {
		g.normalized = make(map[string]string, len(g.header))
		for k, values := range g.header {
			if len(values) == 0 {
				continue
			}
			g.normalized[strings.ToLower(k)] = values[0]
		}
	})
	return g.normalized
}

// requestCookieGetter uses the request's native single-cookie lookup for
// the direct path and enumerates only when all cookies are requested.
type requestCookieGetter struct {
	request *http.Request

	once       sync.Once
	normalized map[string]string
}

// FromRequestCookies returns a Getter over an http.Request's cookies.
func FromRequestCookies(r *http.Request) Getter {
	if r == nil {
		return Nop()
	}
	return &requestCookieGetter{request: r}
}

func (g *requestCookieGetter) Get(key string) (string, bool) {
	if c, err := g.request.Cookie(key); err == nil {
		return c.Value, true
	}
	v, ok := g.normalize()[strings.ToLower(key)]
	return v, ok
}

func (g *requestCookieGetter) All() map[string]string {
	return g.normalize()
}

func (g *requestCookieGetter) normalize() map[string]string {
	g.once.Do(func() {
		cookies := g.request.Cookies()
		g.normalized = make(map[string]string, len(cookies))
		for _, c := range cookies {
			g.normalized[strings.ToLower(c.Name)] = c.Value
		}
	})
	return g.normalized
}
