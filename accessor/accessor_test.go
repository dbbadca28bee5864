package accessor

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFromMapCaseVaryingKeys(t *testing.T) {
	g := FromMap(map[string]string{
		"Content-Type":     "application/json",
		"x-custom-header":  "custom",
		"AUTHORIZATION":    "Bearer token",
		"X-Correlation-Id": "abc",
	})

	cases := map[string]string{
		"content-type":     "application/json",
		"Content-Type":     "application/json",
		"X-Custom-Header":  "custom",
		"authorization":    "Bearer token",
		"x-correlation-id": "abc",
	}
	for key, want := range cases {
		got, ok := g.Get(key)
		if !ok || got != want {
			t.Errorf("Get(%q) = %q, %v; want %q", key, got, ok, want)
		}
	}

	if _, ok := g.Get("missing"); ok {
		t.Error("expected miss for absent key")
	}
}

// A direct single-key lookup and a subsequent full-map lookup must agree on
// the value for that key, in either call order.
func TestDirectAndAllAgree(t *testing.T) {
	raw := map[string]string{"X-Token": "t1", "accept": "text/html"}

	getFirst := FromMap(raw)
	direct, ok := getFirst.Get("x-token")
	if !ok {
		t.Fatal("expected hit")
	}
	if all := getFirst.All(); all["x-token"] != direct {
		t.Errorf("All disagrees with Get: %q vs %q", all["x-token"], direct)
	}

	allFirst := FromMap(raw)
	all := allFirst.All()
	direct, ok = allFirst.Get("X-Token")
	if !ok || all["x-token"] != direct {
		t.Errorf("Get disagrees with All: %q vs %q", direct, all["x-token"])
	}
}

func TestFromPairs(t *testing.T) {
	g := FromPairs([]string{"session=abc123", "Theme=dark"}, "")

	if v, ok := g.Get("session"); !ok || v != "abc123" {
		t.Errorf("Get(session) = %q, %v", v, ok)
	}
	if v, ok := g.Get("theme"); !ok || v != "dark" {
		t.Errorf("Get(theme) = %q, %v", v, ok)
	}

	all := g.All()
	if len(all) != 2 || all["session"] != "abc123" || all["theme"] != "dark" {
		t.Errorf("unexpected All(): %v", all)
	}
}

func TestFromPairsTrimsValuesOnDirectLookup(t *testing.T) {
	g := FromPairs([]string{"theme= dark", "session=abc123 "}, "")

	direct, ok := g.Get("theme")
	if !ok || direct != "dark" {
		t.Errorf("Get(theme) = %q, %v; want %q", direct, ok, "dark")
	}
	if all := g.All(); all["theme"] != direct {
		t.Errorf("Get and All disagree: %q vs %q", direct, all["theme"])
	}
	if v, _ := g.Get("session"); v != "abc123" {
		t.Errorf("Get(session) = %q; want %q", v, "abc123")
	}
}

func TestFromPairsCookieHeaderFallback(t *testing.T) {
	g := FromPairs(nil, "session=abc123; theme=dark")

	if v, ok := g.Get("session"); !ok || v != "abc123" {
		t.Errorf("Get(session) = %q, %v", v, ok)
	}
	all := g.All()
	if all["theme"] != "dark" {
		t.Errorf("unexpected All(): %v", all)
	}
}

func TestFromHTTPHeader(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("X-Request-ID", "req-9")

	g := FromHTTPHeader(h)
	if v, ok := g.Get("content-type"); !ok || v != "application/json" {
		t.Errorf("Get(content-type) = %q, %v", v, ok)
	}
	if all := g.All(); all["x-request-id"] != "req-9" {
		t.Errorf("unexpected All(): %v", all)
	}
}

func TestFromRequestCookies(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: "session", Value: "s1"})
	r.AddCookie(&http.Cookie{Name: "theme", Value: "dark"})

	g := FromRequestCookies(r)
	if v, ok := g.Get("session"); !ok || v != "s1" {
		t.Errorf("Get(session) = %q, %v", v, ok)
	}
	if all := g.All(); len(all) != 2 || all["theme"] != "dark" {
		t.Errorf("unexpected All(): %v", all)
	}
}

func TestNop(t *testing.T) {
	g := Nop()
	if _, ok := g.Get("anything"); ok {
		t.Error("Nop should never hit")
	}
	if all := g.All(); len(all) != 0 {
		t.Errorf("Nop All should be empty, got %v", all)
	}

	// Nil inputs degrade to Nop instead of special-casing in the pipeline.
	if _, ok := FromMap(nil).Get("k"); ok {
		t.Error("FromMap(nil) should behave as Nop")
	}
	if all := FromPairs(nil, "").All(); len(all) != 0 {
		t.Errorf("FromPairs(nil, \"\") should be empty, got %v", all)
	}
}
