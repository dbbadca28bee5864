// Package lambdatransport adapts endpoint definitions onto a cloud-function
// invocation envelope. Header keys may vary in case across providers, and
// cookies arrive either as "name=value" entries or as a single Cookie
// header string; the accessor factories normalize both lazily.
package lambdatransport

import (
	"encoding/base64"
	"fmt"
	"strings"

	"context"

	"github.com/Togather-Foundation/conduit/accessor"
	"github.com/Togather-Foundation/conduit/endpoint"
)

// Event is the inbound function invocation envelope.
type Event struct {
	HTTPMethod            string            `json:"httpMethod"`
	Path                  string            `json:"path"`
	Headers               map[string]string `json:"headers,omitempty"`
	Cookies               []string          `json:"cookies,omitempty"`
	QueryStringParameters map[string]string `json:"queryStringParameters,omitempty"`
	PathParameters        map[string]string `json:"pathParameters,omitempty"`
	Body                  string            `json:"body,omitempty"`
	IsBase64Encoded       bool              `json:"isBase64Encoded,omitempty"`
	RequestContext        RequestContext    `json:"requestContext"`
}

// RequestContext carries provider metadata about the invocation.
type RequestContext struct {
	RequestID  string `json:"requestId,omitempty"`
	DomainName string `json:"domainName,omitempty"`
}

// Result is the function response shape. Set-Cookie entries ride under
// MultiValueHeaders because a response may set several cookies.
type Result struct {
	StatusCode        int                 `json:"statusCode"`
	Body              string              `json:"body,omitempty"`
	Headers           map[string]string   `json:"headers,omitempty"`
	MultiValueHeaders map[string][]string `json:"multiValueHeaders,omitempty"`
}

// Handle executes def for one invocation.
func Handle(ctx context.Context, def *endpoint.Definition, rt *endpoint.Runtime, ev Event) (Result, error) {
	var body []byte
	if ev.Body != "" {
		if ev.IsBase64Encoded {
			decoded, err := base64.StdEncoding.DecodeString(ev.Body)
			if err != nil {
				return Result{}, fmt.Errorf("lambdatransport: decode body: %w", err)
			}
			body = decoded
		} else {
			body = []byte(ev.Body)
		}
	}

	header := accessor.FromMap(ev.Headers)
	cookieHeader, _ := header.Get("cookie")

	resp := def.Execute(ctx, rt, endpoint.Inbound{
		Method:    ev.HTTPMethod,
		Path:      ev.Path,
		Host:      ev.RequestContext.DomainName,
		RequestID: ev.RequestContext.RequestID,
		Params:    ev.PathParameters,
		Query:     ev.QueryStringParameters,
		Body:      body,
		Header:    header,
		Cookie:    accessor.FromPairs(ev.Cookies, cookieHeader),
	})

	result := Result{
		StatusCode: resp.Status,
		Body:       string(resp.Body),
		Headers:    resp.Headers,
	}
	if len(resp.Cookies) > 0 {
		result.MultiValueHeaders = map[string][]string{"Set-Cookie": resp.Cookies}
	}
	return result, nil
}

// Router dispatches events across a fixed set of definitions by method and
// path template.
type Router struct {
	rt     *endpoint.Runtime
	routes []route
}

type route struct {
	method   string
	segments []string
	def      *endpoint.Definition
}

// NewRouter returns a router over defs.
func NewRouter(rt *endpoint.Runtime, defs ...*endpoint.Definition) *Router {
	r := &Router{rt: rt}
	for _, def := range defs {
		r.routes = append(r.routes, route{
			method:   def.Method(),
			segments: strings.Split(strings.Trim(def.Route(), "/"), "/"),
			def:      def,
		})
	}
	return r
}

// Dispatch finds the definition matching the event and executes it. An
// unmatched event yields a 404 result, not an error.
func (r *Router) Dispatch(ctx context.Context, ev Event) (Result, error) {
	segments := strings.Split(strings.Trim(ev.Path, "/"), "/")
	for _, candidate := range r.routes {
		if candidate.method != ev.HTTPMethod {
			continue
		}
		params, ok := match(candidate.segments, segments)
		if !ok {
			continue
		}
		if len(params) > 0 {
			merged := make(map[string]string, len(params)+len(ev.PathParameters))
			for k, v := range ev.PathParameters {
				merged[k] = v
			}
			for k, v := range params {
				merged[k] = v
			}
			ev.PathParameters = merged
		}
		return Handle(ctx, candidate.def, r.rt, ev)
	}

	return Result{
		StatusCode: 404,
		Body:       `{"error":{"code":"not_found","message":"no matching endpoint"}}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}, nil
}

func match(template, actual []string) (map[string]string, bool) {
	if len(template) != len(actual) {
		return nil, false
	}
	params := make(map[string]string)
	for i, seg := range template {
		if strings.HasPrefix(seg, ":") && len(seg) > 1 {
			params[seg[1:]] = actual[i]
			continue
		}
		if seg != actual[i] {
			return nil, false
		}
	}
	return params, true
}
