package endpoint

import (
	"net/http"
	"strings"
	"time"
)

// Response is the transport-neutral result of one pipeline execution.
// Transport adaptors map it onto their concrete response shape.
type Response struct {
	Status  int
	Body    []byte
	Headers map[string]string
	// Cookies holds serialized Set-Cookie values; multi-valued because a
	// response may set several cookies.
	Cookies []string
}

// CookieOptions mirrors the Set-Cookie attributes a handler may control.
type CookieOptions struct {
	Path     string
	Domain   string
	MaxAge   int
	Expires  time.Time
	Secure   bool
	HTTPOnly bool
	SameSite string // "lax", "strict", or "none"
}

type pendingCookie struct {
	name    string
	value   string
	options CookieOptions
}

// ResponseMeta is the mutable scratch object the handler annotates the
// response through. It carries no control flow: the pipeline reads it once
// after the handler returns.
type ResponseMeta struct {
	status  int
	headers map[string]string
	cookies []pendingCookie
}

// NewResponseMeta returns an empty ResponseMeta.
func NewResponseMeta() *ResponseMeta {
	return &ResponseMeta{headers: make(map[string]string)}
}

// SetStatus overrides the endpoint's default success status.
func (m *ResponseMeta) SetStatus(code int) {
	m.status = code
}

// Status returns the override, or zero when unset.
func (m *ResponseMeta) Status() int {
	return m.status
}

// SetHeader sets a response header.
func (m *ResponseMeta) SetHeader(name, value string) {
	m.headers[name] = value
}

// SetCookie queues a Set-Cookie entry.
func (m *ResponseMeta) SetCookie(name, value string, options CookieOptions) {
	m.cookies = append(m.cookies, pendingCookie{name: name, value: value, options: options})
}

func (m *ResponseMeta) headerMap() map[string]string {
	out := make(map[string]string, len(m.headers))
	for k, v := range m.headers {
		out[k] = v
	}
	return out
}

func (m *ResponseMeta) setCookieValues() []string {
	if len(m.cookies) == 0 {
		return nil
	}
	values := make([]string, 0, len(m.cookies))
	for _, pc := range m.cookies {
		cookie := http.Cookie{
			Name:     pc.name,
			Value:    pc.value,
			Path:     pc.options.Path,
			Domain:   pc.options.Domain,
			MaxAge:   pc.options.MaxAge,
			Expires:  pc.options.Expires,
			Secure:   pc.options.Secure,
			HttpOnly: pc.options.HTTPOnly,
			SameSite: sameSiteFrom(pc.options.SameSite),
		}
		values = append(values, cookie.String())
	}
	return values
}

func sameSiteFrom(value string) http.SameSite {
	switch strings.ToLower(value) {
	case "lax":
		return http.SameSiteLaxMode
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteDefaultMode
	}
}
