package endpoint

import (
	"net/http"
	"slices"

	"github.com/rs/zerolog"

	"github.com/Togather-Foundation/conduit/audit"
	"github.com/Togather-Foundation/conduit/events"
	"github.com/Togather-Foundation/conduit/registry"
	"github.com/Togather-Foundation/conduit/schema"
)

// Builder accumulates an endpoint declaration through chained calls and
// freezes it with Handle. Every method works on a copy, so a preconfigured
// base builder (shared logger, session, authorizer) can start many
// independent chains without cross-contamination.
type Builder struct {
	def Definition
}

// New returns an empty builder.
func New() Builder {
	return Builder{}
}

// Logger sets the base logger endpoints built from this chain derive their
// request loggers from.
func (b Builder) Logger(logger zerolog.Logger) Builder {
	b.def.logger = logger
	b.def.hasLogger = true
	return b
}

func (b Builder) route(method, route string) Builder {
	b.def.method = method
	b.def.route = route
	return b
}

// Get starts a GET endpoint for route.
func (b Builder) Get(route string) Builder { return b.route(http.MethodGet, route) }

// Post starts a POST endpoint for route.
func (b Builder) Post(route string) Builder { return b.route(http.MethodPost, route) }

// Put starts a PUT endpoint for route.
func (b Builder) Put(route string) Builder { return b.route(http.MethodPut, route) }

// Patch starts a PATCH endpoint for route.
func (b Builder) Patch(route string) Builder { return b.route(http.MethodPatch, route) }

// Delete starts a DELETE endpoint for route.
func (b Builder) Delete(route string) Builder { return b.route(http.MethodDelete, route) }

// Body declares the request body schema.
func (b Builder) Body(s schema.Schema) Builder {
	b.def.bodySchema = s
	return b
}

// Query declares the query string schema.
func (b Builder) Query(s schema.Schema) Builder {
	b.def.querySchema = s
	return b
}

// Params declares the path parameter schema.
func (b Builder) Params(s schema.Schema) Builder {
	b.def.paramsSchema = s
	return b
}

// Output declares the response body schema. A handler return value failing
// it is a server-side defect, reported as an internal error.
func (b Builder) Output(s schema.Schema) Builder {
	b.def.outputSchema = s
	return b
}

// Services declares the named services the handler depends on.
func (b Builder) Services(descriptors ...*registry.Descriptor) Builder {
	b.def.services = append(slices.Clone(b.def.services), descriptors...)
	return b
}

// Database declares the endpoint's database service. The handler receives
// its instance as Request.DB, transaction-wrapped when audit sharing or
// RLS requires it.
func (b Builder) Database(descriptor *registry.Descriptor) Builder {
	b.def.dbService = descriptor
	return b
}

// Session sets the session derivation function.
func (b Builder) Session(fn SessionFunc) Builder {
	b.def.session = fn
	return b
}

// Authorize sets the authorizer. Unset means implicitly granted.
func (b Builder) Authorize(fn AuthorizeFunc) Builder {
	b.def.authorize = fn
	return b
}

// Auditor declares the audit storage service.
func (b Builder) Auditor(descriptor *registry.Descriptor) Builder {
	b.def.auditService = descriptor
	return b
}

// Audit adds declarative audit mappings evaluated after a successful
// handler run.
func (b Builder) Audit(mappings ...audit.Mapping) Builder {
	b.def.auditMappings = append(slices.Clone(b.def.auditMappings), mappings...)
	return b
}

// Publisher declares the event publisher service.
func (b Builder) Publisher(descriptor *registry.Descriptor) Builder {
	b.def.publisherService = descriptor
	return b
}

// Event adds declarative event mappings published on 2xx responses.
func (b Builder) Event(mappings ...events.Mapping) Builder {
	b.def.eventMappings = append(slices.Clone(b.def.eventMappings), mappings...)
	return b
}

// RLS enables row-level-security scoping. prefix namespaces the
// transaction-local settings; empty means rls.DefaultPrefix.
func (b Builder) RLS(extract RLSExtractor, prefix string) Builder {
	b.def.rlsExtract = extract
	b.def.rlsPrefix = prefix
	return b
}

// Status sets the default success status (200 when unset).
func (b Builder) Status(code int) Builder {
	b.def.status = code
	return b
}

// Handle freezes the declaration and returns the immutable Definition.
// Endpoint definitions are module-load-time values, so configuration that
// can never execute correctly panics here rather than surfacing per
// request: a missing method/route/handler, audit mappings without an
// auditor, event mappings without a publisher, or RLS without a database.
func (b Builder) Handle(h Handler) *Definition {
	def := b.def
	def.handler = h

	if def.method == "" || def.route == "" {
		panic("endpoint: method and route must be set before Handle")
	}
	if def.handler == nil {
		panic("endpoint: Handle requires a non-nil handler")
	}
	if len(def.auditMappings) > 0 && def.auditService == nil {
		panic("endpoint: audit mappings declared without an auditor service")
	}
	if len(def.eventMappings) > 0 && def.publisherService == nil {
		panic("endpoint: event mappings declared without a publisher service")
	}
	if def.rlsExtract != nil && def.dbService == nil {
		panic("endpoint: RLS declared without a database service")
	}
	if def.status == 0 {
		def.status = http.StatusOK
	}
	return &def
}
