// Package httptransport adapts endpoint definitions onto net/http. Route
// templates use ":param" segments and are mapped to ServeMux "{param}"
// patterns, with per-method dispatch on a shared path.
package httptransport

import (
	"io"
	"net/http"
	"strings"

	"github.com/Togather-Foundation/conduit/accessor"
	"github.com/Togather-Foundation/conduit/endpoint"
)

// maxBodyBytes caps inbound request bodies.
const maxBodyBytes = 4 << 20

// Handler returns an http.Handler executing def through rt.
func Handler(def *endpoint.Definition, rt *endpoint.Runtime) http.Handler {
	paramNames := templateParams(def.Route())

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
			if err != nil {
				http.Error(w, `{"error":{"code":"bad_request","message":"unreadable body"}}`, http.StatusBadRequest)
				return
			}
			body = data
		}

		params := make(map[string]string, len(paramNames))
		for _, name := range paramNames {
			params[name] = r.PathValue(name)
		}

		query := make(map[string]string)
		for key, values := range r.URL.Query() {
			if len(values) > 0 {
				query[key] = values[0]
			}
		}

		resp := def.Execute(r.Context(), rt, endpoint.Inbound{
			Method:    r.Method,
			Path:      r.URL.Path,
			Host:      r.Host,
			RequestID: r.Header.Get("X-Request-ID"),
			Params:    params,
			Query:     query,
			Body:      body,
			Header:    accessor.FromHTTPHeader(r.Header),
			Cookie:    accessor.FromRequestCookies(r),
		})

		for name, value := range resp.Headers {
			w.Header().Set(name, value)
		}
		for _, cookie := range resp.Cookies {
			w.Header().Add("Set-Cookie", cookie)
		}
		w.WriteHeader(resp.Status)
		if len(resp.Body) > 0 {
			_, _ = w.Write(resp.Body)
		}
	})
}

// Mount registers defs on mux, grouping definitions that share a path so
// each method dispatches to its own pipeline.
func Mount(mux *http.ServeMux, rt *endpoint.Runtime, defs ...*endpoint.Definition) {
	byPattern := make(map[string]map[string]http.Handler)
	for _, def := range defs {
		pattern := muxPattern(def.Route())
		if byPattern[pattern] == nil {
			byPattern[pattern] = make(map[string]http.Handler)
		}
		byPattern[pattern][def.Method()] = Handler(def, rt)
	}

	for pattern, handlers := range byPattern {
		mux.Handle(pattern, methodMux(handlers))
	}
}

func methodMux(handlers map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		_, _ = w.Write([]byte(`{"error":{"code":"method_not_allowed","message":"method not allowed"}}`))
	})
}

// muxPattern converts "/users/:id" to "/users/{id}".
func muxPattern(route string) string {
	segments := strings.Split(route, "/")
	for i, seg := range segments {
		if strings.HasPrefix(seg, ":") && len(seg) > 1 {
			segments[i] = "{" + seg[1:] + "}"
		}
	}
	return strings.Join(segments, "/")
}

func templateParams(route string) []string {
	var names []string
	for _, seg := range strings.Split(route, "/") {
		if strings.HasPrefix(seg, ":") && len(seg) > 1 {
			names = append(names, seg[1:])
		}
	}
	return names
}
