// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package tools holds the tool registry, the argument checks every call goes
// through, and the vector search tools themselves.
package tools

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/stacklok/envector-mcp/pkg/logger"
)

const instrumentationName = "github.com/stacklok/envector-mcp/pkg/tools"

var (
	attrMCPMethodName      = attribute.Key("mcp.method.name")
	attrGenAIToolName      = attribute.Key("gen_ai.tool.name")
	attrGenAIOperationName = attribute.Key("gen_ai.operation.name")
	attrErrorType          = attribute.Key("error.type")
)

// HandlerFunc runs a tool with validated arguments. The returned payload
// becomes the "results" field of the success envelope.
type HandlerFunc func(ctx context.Context, args Args) (any, error)

// Tool is a registered tool.
type Tool struct {
	Name        string
	Description string
	Params      []Param
	Annotations mcp.ToolAnnotation
	Handler     HandlerFunc
}

// Call is one tools/call invocation.
type Call struct {
	Name      string
	Arguments map[string]any
}

type entry struct {
	tool   Tool
	def    mcp.Tool
	schema *gojsonschema.Schema
}

// Registry maps tool names to tools and dispatches calls to them.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*entry
	order []string

	tracer   trace.Tracer
	calls    metric.Int64Counter
	duration metric.Float64Histogram
}

// Option configures a Registry.
type Option func(*options)

type options struct {
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
}

// WithMeterProvider records call metrics with mp.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// WithTracerProvider records a span per call with tp.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) (*Registry, error) {
	o := options{
		meterProvider:  metricnoop.NewMeterProvider(),
		tracerProvider: tracenoop.NewTracerProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	meter := o.meterProvider.Meter(instrumentationName)
	calls, err := meter.Int64Counter(
		"envector_mcp_tool_calls",
		metric.WithDescription("Total number of tool calls"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool call counter: %w", err)
	}
	duration, err := meter.Float64Histogram(
		"envector_mcp_tool_call_duration",
		metric.WithDescription("Duration of tool calls in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool call duration histogram: %w", err)
	}

	return &Registry{
		tools:    make(map[string]*entry),
		tracer:   o.tracerProvider.Tracer(instrumentationName),
		calls:    calls,
		duration: duration,
	}, nil
}

// Register adds a tool. Registering a name twice, or a tool whose parameters
// do not form a valid schema, is a programming error and panics.
func (r *Registry) Register(t Tool) {
	if t.Name == "" || t.Handler == nil {
		panic("tools: tool needs a name and a handler")
	}
	def := mcp.Tool{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: inputSchema(t.Params),
		Annotations: t.Annotations,
	}
	schema, err := compileSchema(def.InputSchema)
	if err != nil {
		panic(fmt.Sprintf("tools: invalid schema for %s: %v", t.Name, err))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[t.Name]; ok {
		panic(fmt.Sprintf("tools: %s registered twice", t.Name))
	}
	r.tools[t.Name] = &entry{tool: t, def: def, schema: schema}
	r.order = append(r.order, t.Name)
}

// List returns the tool definitions in registration order.
func (r *Registry) List() []mcp.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]mcp.Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].def)
	}
	return out
}

func (r *Registry) lookup(name string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	return e, ok
}

// Dispatch runs a call and always returns a result. Unknown tools, invalid
// arguments, handler errors and handler panics all become error results.
func (r *Registry) Dispatch(ctx context.Context, call Call) (result *mcp.CallToolResult) {
	e, known := r.lookup(call.Name)
	label := call.Name
	if !known {
		// keeps metric cardinality bounded
		label = "unknown"
	}

	ctx, span := r.tracer.Start(ctx, "tools/call "+label,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attrMCPMethodName.String("tools/call"),
			attrGenAIToolName.String(label),
			attrGenAIOperationName.String("execute_tool"),
		),
	)
	start := time.Now()

	var err error
	defer func() {
		if p := recover(); p != nil {
			logger.Errorf("Tool %s panicked: %v\n%s", call.Name, p, debug.Stack())
			err = fmt.Errorf("tool %s failed unexpectedly: %v", call.Name, p)
			result = errorResult(err)
		}

		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetAttributes(attrErrorType.String(ErrorCode(err)))
			span.SetStatus(codes.Error, err.Error())
		}
		attrs := metric.WithAttributes(attribute.String("tool", label), attribute.String("status", status))
		r.calls.Add(ctx, 1, attrs)
		r.duration.Record(ctx, time.Since(start).Seconds(), attrs)
		span.End()
	}()

	if !known {
		err = fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
		return errorResult(err)
	}

	var payload any
	payload, err = r.invoke(ctx, e, call.Arguments)
	if err != nil {
		logger.Debugf("Tool %s failed: %v", call.Name, err)
		return errorResult(err)
	}
	return successResult(payload)
}

func (*Registry) invoke(ctx context.Context, e *entry, arguments map[string]any) (any, error) {
	if arguments == nil {
		arguments = map[string]any{}
	}
	if err := validateArgs(e.schema, arguments); err != nil {
		return nil, err
	}
	return e.tool.Handler(ctx, withDefaults(e.tool.Params, arguments))
}
