package endpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Togather-Foundation/conduit/accessor"
	"github.com/Togather-Foundation/conduit/audit"
	"github.com/Togather-Foundation/conduit/database"
	"github.com/Togather-Foundation/conduit/events"
	"github.com/Togather-Foundation/conduit/metrics"
	"github.com/Togather-Foundation/conduit/registry"
	"github.com/Togather-Foundation/conduit/requestctx"
	"github.com/Togather-Foundation/conduit/rls"
	"github.com/Togather-Foundation/conduit/schema"
)

const tracerName = "github.com/Togather-Foundation/conduit/endpoint"

// Pipeline phase names used in logs, spans, and failure metrics.
const (
	phaseInput     = "input_validation"
	phaseServices  = "service_resolution"
	phaseRLS       = "rls_derivation"
	phaseSession   = "session"
	phaseAuthorize = "authorization"
	phaseHandler   = "handler"
	phaseOutput    = "output_validation"
	phaseEvents    = "event_publication"
	phaseFormat    = "response_formatting"
	phasePanic     = "panic"
)

// Execute runs the pipeline for one inbound request and always returns a
// well-formed response: any error raised in a phase is caught exactly
// once, logged with full context, and translated to a typed error
// response. No phase after a failing one executes.
func (d *Definition) Execute(ctx context.Context, rt *Runtime, in Inbound) Response {
	start := time.Now()

	requestID := in.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	base := rt.Logger
	if d.hasLogger {
		base = d.logger
	}
	logger := base.With().
		Str("request_id", requestID).
		Str("method", d.method).
		Str("route", d.route).
		Str("host", in.Host).
		Logger()

	ctx = requestctx.With(ctx, requestctx.Context{
		Logger:    logger,
		RequestID: requestID,
		StartTime: start,
	})

	ctx, span := otel.Tracer(tracerName).Start(ctx, d.method+" "+d.route)
	span.SetAttributes(
		attribute.String("conduit.route", d.route),
		attribute.String("conduit.method", d.method),
		attribute.String("conduit.request_id", requestID),
	)
	defer span.End()

	resp, phase, err := d.run(ctx, rt, in, logger, requestID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, phase)
		metrics.PipelineFailures.WithLabelValues(d.route, phase).Inc()
		resp = d.errorResponse(logger, phase, err)
	}

	if resp.Headers == nil {
		resp.Headers = map[string]string{}
	}
	if _, ok := resp.Headers["X-Request-ID"]; !ok {
		resp.Headers["X-Request-ID"] = requestID
	}

	metrics.RequestsTotal.WithLabelValues(d.method, d.route, strconv.Itoa(resp.Status)).Inc()
	metrics.RequestDuration.WithLabelValues(d.method, d.route).Observe(time.Since(start).Seconds())
	return resp
}

func (d *Definition) run(ctx context.Context, rt *Runtime, in Inbound, logger zerolog.Logger, requestID string) (resp Response, phase string, err error) {
	// A panicking phase must not escape the pipeline: under net/http it
	// would only kill the connection, but a function transport would lose
	// the whole process. Recover into the ordinary 500 funnel.
	defer func() {
		if p := recover(); p != nil {
			logger.Error().Interface("panic_value", p).Bytes("stack", debug.Stack()).Msg("pipeline recovered from panic")
			resp = Response{}
			phase = phasePanic
			err = Internal(fmt.Errorf("panic: %v", p))
		}
	}()

	// Input acquisition: the transport supplies accessors; absent ones
	// degrade to the no-op getter.
	header := in.Header
	if header == nil {
		header = accessor.Nop()
	}
	cookie := in.Cookie
	if cookie == nil {
		cookie = accessor.Nop()
	}

	req := &Request{
		Header: header,
		Cookie: cookie,
		Logger: logger,
		Meta:   NewResponseMeta(),
	}

	// Input validation. Undeclared inputs pass through raw: the body as
	// bytes, query and params as string maps.
	if d.bodySchema == nil {
		if len(in.Body) > 0 {
			req.Body = in.Body
		}
	}
	if d.querySchema == nil && in.Query != nil {
		req.Query = in.Query
	}
	if d.paramsSchema == nil && in.Params != nil {
		req.Params = in.Params
	}
	if d.bodySchema != nil {
		value, issues, err := d.bodySchema.Decode(in.Body)
		if err != nil {
			return Response{}, phaseInput, fmt.Errorf("decode body: %w", err)
		}
		if len(issues) > 0 {
			return Response{}, phaseInput, Unprocessable(issues)
		}
		req.Body = value
	}
	if d.querySchema != nil {
		value, issues, err := d.querySchema.Decode(in.Query)
		if err != nil {
			return Response{}, phaseInput, fmt.Errorf("decode query: %w", err)
		}
		if len(issues) > 0 {
			return Response{}, phaseInput, Unprocessable(issues)
		}
		req.Query = value
	}
	if d.paramsSchema != nil {
		value, issues, err := d.paramsSchema.Decode(in.Params)
		if err != nil {
			return Response{}, phaseInput, fmt.Errorf("decode params: %w", err)
		}
		if len(issues) > 0 {
			return Response{}, phaseInput, Unprocessable(issues)
		}
		req.Params = value
	}

	// Service resolution.
	descriptors := make([]*registry.Descriptor, 0, len(d.services)+3)
	descriptors = append(descriptors, d.services...)
	descriptors = append(descriptors, d.dbService, d.auditService, d.publisherService)
	instances, err := rt.Registry.Resolve(ctx, rt.Env, descriptors)
	if err != nil {
		return Response{}, phaseServices, err
	}
	req.Services = instances

	var db *database.DB
	if d.dbService != nil {
		if db, err = registry.Get[*database.DB](instances, d.dbService.Name); err != nil {
			return Response{}, phaseServices, err
		}
		req.DB = db
	}
	var storage audit.Storage
	if d.auditService != nil {
		if storage, err = registry.Get[audit.Storage](instances, d.auditService.Name); err != nil {
			return Response{}, phaseServices, err
		}
	}
	var publisher events.Publisher
	if d.publisherService != nil {
		if publisher, err = registry.Get[events.Publisher](instances, d.publisherService.Name); err != nil {
			return Response{}, phaseServices, err
		}
	}

	// RLS derivation.
	var rlsCtx rls.Context
	if d.rlsExtract != nil && !rt.BypassRLS && db != nil {
		if rlsCtx, err = d.rlsExtract(ctx, req); err != nil {
			return Response{}, phaseRLS, err
		}
	}

	// Session derivation.
	if d.session != nil {
		if req.Session, err = d.session(ctx, req); err != nil {
			return Response{}, phaseSession, err
		}
	}

	// Authorization. Unset means implicitly granted.
	if d.authorize != nil {
		granted, err := d.authorize(ctx, req)
		if err != nil {
			return Response{}, phaseAuthorize, err
		}
		if !granted {
			return Response{}, phaseAuthorize, Unauthorized()
		}
	}

	// Handler execution, inside the audit coordinator, inside the request
	// transaction when RLS scoping or shared audit storage needs one.
	shared := storage != nil && d.dbService != nil &&
		storage.DatabaseServiceName() == d.dbService.Name

	runBody := func(ctx context.Context, handle *database.DB) (any, error) {
		plan := audit.Plan{
			Storage:   storage,
			DB:        handle,
			SharedDB:  shared,
			Mappings:  d.auditMappings,
			RequestID: requestID,
		}
		return audit.ExecuteInTransaction(ctx, plan, func(ctx context.Context, rec *audit.Recorder) (any, error) {
			req.Auditor = rec
			req.DB = handle
			return d.handler(ctx, req)
		})
	}

	var output any
	if db != nil && (len(rlsCtx) > 0 || shared) {
		err = db.WithTx(ctx, func(ctx context.Context, txdb *database.DB) error {
			if len(rlsCtx) > 0 {
				if err := rls.Apply(ctx, txdb.Querier(), d.rlsPrefix, rlsCtx); err != nil {
					return err
				}
			}
			var bodyErr error
			output, bodyErr = runBody(ctx, txdb)
			return bodyErr
		})
	} else {
		output, err = runBody(ctx, db)
	}
	if err != nil {
		return Response{}, phaseHandler, err
	}

	// Output validation: a mismatch here is a defect in the endpoint, not
	// the caller, so issues surface as an internal error.
	if d.outputSchema != nil {
		validated, issues, decodeErr := d.outputSchema.Decode(output)
		if decodeErr != nil {
			return Response{}, phaseOutput, fmt.Errorf("decode output: %w", decodeErr)
		}
		if len(issues) > 0 {
			logger.Error().Interface("issues", issues).Msg("handler output failed response schema")
			return Response{}, phaseOutput, Internal(fmt.Errorf("handler output failed response schema"))
		}
		output = validated
	}

	status := req.Meta.Status()
	if status == 0 {
		status = d.status
	}

	// Event publication, only for success-range responses.
	if status >= 200 && status < 300 && publisher != nil && len(d.eventMappings) > 0 {
		if err := publisher.Publish(ctx, events.Evaluate(d.eventMappings, output)); err != nil {
			return Response{}, phaseEvents, err
		}
	}

	// Response formatting.
	var body []byte
	headers := req.Meta.headerMap()
	if output != nil {
		if body, err = json.Marshal(output); err != nil {
			return Response{}, phaseFormat, fmt.Errorf("marshal response: %w", err)
		}
		if _, ok := headers["Content-Type"]; !ok {
			headers["Content-Type"] = "application/json"
		}
	}

	return Response{
		Status:  status,
		Body:    body,
		Headers: headers,
		Cookies: req.Meta.setCookieValues(),
	}, "", nil
}

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Issues  []schema.Issue `json:"issues,omitempty"`
}

func (d *Definition) errorResponse(logger zerolog.Logger, phase string, err error) Response {
	typed := &Error{}
	if !errors.As(err, &typed) {
		typed = Internal(err)
	}

	event := logger.Warn()
	if typed.Status >= 500 {
		event = logger.Error()
	}
	event.Err(err).Int("status", typed.Status).Str("phase", phase).Msg("request failed")

	body, marshalErr := json.Marshal(map[string]errorBody{"error": {
		Code:    typed.Code,
		Message: typed.Message,
		Issues:  typed.Issues,
	}})
	if marshalErr != nil {
		body = []byte(`{"error":{"code":"internal_error","message":"internal server error"}}`)
	}

	return Response{
		Status:  typed.Status,
		Body:    body,
		Headers: map[string]string{"Content-Type": "application/json"},
	}
}
