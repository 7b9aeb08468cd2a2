package link

import (
	"context"
	"fmt"

	language "github.com/hanpama/lighthouselink/internal/language"
)

// Operation describes a single GraphQL request. It is not modified once
// created; WithContext returns a shallow copy.
type Operation struct {
	Query         *language.QueryDocument
	Source        string
	OperationName string
	Variables     map[string]any
	Extensions    map[string]any

	ctx context.Context
}

type OperationOption func(*Operation)

func WithOperationName(name string) OperationOption {
	return func(o *Operation) { o.OperationName = name }
}
func WithVariables(v map[string]any) OperationOption {
	return func(o *Operation) { o.Variables = v }
}
func WithExtensions(e map[string]any) OperationOption {
	return func(o *Operation) { o.Extensions = e }
}

// NewOperation parses source and returns the operation bound to ctx.
func NewOperation(ctx context.Context, source string, opts ...OperationOption) (*Operation, error) {
	doc, err := language.ParseQuery(source)
	if err != nil {
		return nil, fmt.Errorf("parse operation: %w", err)
	}
	op := &Operation{Query: doc, Source: source, ctx: ctx}
	for _, f := range opts {
		f(op)
	}
	if op.Variables == nil {
		op.Variables = map[string]any{}
	}
	return op, nil
}

// Context returns the operation context, never nil.
func (o *Operation) Context() context.Context {
	if o.ctx == nil {
		return context.Background()
	}
	return o.ctx
}

// WithContext returns a copy of o bound to ctx.
func (o *Operation) WithContext(ctx context.Context) *Operation {
	cp := *o
	cp.ctx = ctx
	return &cp
}

// Type reports the type of the operation that will be executed.
func (o *Operation) Type() language.Operation {
	return language.OperationType(o.Query, o.OperationName)
}
