// Package tools holds the capabilities the hosted agent may invoke through
// deferred function calls.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Handler runs a tool with already parsed arguments.
type Handler func(ctx context.Context, arguments map[string]any) (any, error)

type Tool struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema

	handler Handler
}

// New builds a tool whose parameters are described by the struct P. The JSON
// schema advertised to the agent is reflected from P and arguments are decoded
// into it before run is called.
func New[P any](name, description string, run func(ctx context.Context, params P) (any, error)) Tool {
	reflector := jsonschema.Reflector{DoNotReference: true}

	var zero P
	var schema *jsonschema.Schema
	if t := reflect.TypeOf(zero); t != nil && t.Kind() == reflect.Ptr {
		schema = reflector.ReflectFromType(t.Elem())
	} else {
		schema = reflector.Reflect(zero)
	}
	schema.Version = ""

	return Tool{
		Name:        name,
		Description: description,
		Parameters:  schema,
		handler: func(ctx context.Context, arguments map[string]any) (any, error) {
			raw, err := json.Marshal(arguments)
			if err != nil {
				return nil, fmt.Errorf("failed to encode arguments: %w", err)
			}

			var params P
			if err := json.Unmarshal(raw, &params); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
			return run(ctx, params)
		},
	}
}

// NewRaw builds a tool that receives the arguments map untouched.
func NewRaw(name, description string, parameters *jsonschema.Schema, handler Handler) Tool {
	return Tool{
		Name:        name,
		Description: description,
		Parameters:  parameters,
		handler:     handler,
	}
}

// Registry is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: map[string]Tool{}}
	r.Register(tools...)
	return r
}

// Register adds tools, replacing any tool registered under the same name.
func (r *Registry) Register(tools ...Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tool := range tools {
		r.tools[tool.Name] = tool
	}
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Tools returns the registered tools ordered by name.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	slices.SortFunc(tools, func(a, b Tool) int { return strings.Compare(a.Name, b.Name) })
	return tools
}

// Execute runs the named tool and returns its result encoded as JSON. A
// panicking tool is reported as an error.
func (r *Registry) Execute(ctx context.Context, name string, arguments map[string]any) (output string, err error) {
	ctx, span := tracer.Start(ctx, "execute tool")
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", name))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	tool, ok := r.Get(name)
	if !ok || tool.handler == nil {
		return "", fmt.Errorf("tool not found: %s", name)
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("tool %q panicked: %v", name, recovered)
		}
	}()

	result, err := tool.handler(ctx, arguments)
	if err != nil {
		return "", fmt.Errorf("failed to execute tool %q: %w", name, err)
	}

	switch typed := result.(type) {
	case string:
		return typed, nil
	case json.RawMessage:
		return string(typed), nil
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to encode result of tool %q: %w", name, err)
	}
	span.SetAttributes(attribute.Int("tool.result_size", len(encoded)))
	return string(encoded), nil
}
