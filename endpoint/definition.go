// Package endpoint lets an API operation be declared once — route, method,
// schemas, services, session, authorization, audit, events, row-level
// security — and executed identically across transports. The fluent
// Builder produces an immutable Definition; Definition.Execute runs the
// phases of the pipeline for one inbound request.
package endpoint

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Togather-Foundation/conduit/accessor"
	"github.com/Togather-Foundation/conduit/audit"
	"github.com/Togather-Foundation/conduit/config"
	"github.com/Togather-Foundation/conduit/database"
	"github.com/Togather-Foundation/conduit/events"
	"github.com/Togather-Foundation/conduit/registry"
	"github.com/Togather-Foundation/conduit/rls"
	"github.com/Togather-Foundation/conduit/schema"
)

// Handler is the business function at the core of an endpoint. It receives
// the validated inputs and resolved collaborators on Request and returns
// the output value the output schema (if any) validates.
type Handler func(ctx context.Context, r *Request) (any, error)

// SessionFunc derives the request's session from headers, cookies,
// services, or the database. Returning (nil, nil) means "no session".
type SessionFunc func(ctx context.Context, r *Request) (any, error)

// AuthorizeFunc decides whether the request may proceed. Returning false
// yields a generic unauthorized response.
type AuthorizeFunc func(ctx context.Context, r *Request) (bool, error)

// RLSExtractor derives the row-level-security scoping for this request.
type RLSExtractor func(ctx context.Context, r *Request) (rls.Context, error)

// Request is the per-request view handed to session, authorize, RLS, and
// handler functions. Fields are populated progressively as the pipeline
// advances; a session function, for example, sees services but not yet a
// session.
type Request struct {
	Header   accessor.Getter
	Cookie   accessor.Getter
	Logger   zerolog.Logger
	Services registry.Instances
	Session  any
	Auditor  *audit.Recorder
	DB       *database.DB
	Body     any
	Query    any
	Params   any
	Meta     *ResponseMeta
}

// Inbound is the transport-neutral raw request a transport adaptor feeds
// the pipeline.
type Inbound struct {
	Method    string
	Path      string
	Host      string
	RequestID string // transport correlation ID; generated when empty
	Params    map[string]string
	Query     map[string]string
	Body      []byte
	Header    accessor.Getter
	Cookie    accessor.Getter
}

// Runtime carries the process-wide collaborators a transport hands every
// execution. Construct one at startup and share it across endpoints.
type Runtime struct {
	Registry *registry.Registry
	Env      *config.Env
	Logger   zerolog.Logger
	// BypassRLS disables row-level-security derivation process-wide, for
	// trusted internal deployments.
	BypassRLS bool
}

// Definition is the frozen descriptor of one API operation. Built once at
// module load via a Builder; safe to share across concurrent requests.
type Definition struct {
	route  string
	method string

	bodySchema   schema.Schema
	querySchema  schema.Schema
	paramsSchema schema.Schema
	outputSchema schema.Schema

	services []*registry.Descriptor

	session   SessionFunc
	authorize AuthorizeFunc

	dbService        *registry.Descriptor
	auditService     *registry.Descriptor
	auditMappings    []audit.Mapping
	publisherService *registry.Descriptor
	eventMappings    []events.Mapping

	rlsExtract RLSExtractor
	rlsPrefix  string

	status    int
	handler   Handler
	logger    zerolog.Logger
	hasLogger bool
}

// Route returns the route template ("/users/:id").
func (d *Definition) Route() string { return d.route }

// Method returns the HTTP method.
func (d *Definition) Method() string { return d.method }
