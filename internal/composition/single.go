package composition

import (
	"bytes"
	"context"
	"fmt"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/wudi/registry/internal/schema"
)

// SingleOrchestrator validates a single-service schema in process.
type SingleOrchestrator struct{}

// NewSingleOrchestrator returns the in-process single-schema orchestrator.
func NewSingleOrchestrator() *SingleOrchestrator {
	return &SingleOrchestrator{}
}

// ComposeAndValidate parses and validates one SDL document. All failures are
// GraphQL validation errors; there is nothing to compose.
func (o *SingleOrchestrator) ComposeAndValidate(_ context.Context, schemas []schema.Input, _ Options) (*Result, error) {
	sources := make([]*ast.Source, len(schemas))
	for i, s := range schemas {
		sources[i] = &ast.Source{Name: sourceName(s, i), Input: s.SDL}
	}

	built, err := gqlparser.LoadSchema(sources...)
	if err != nil {
		return &Result{Errors: graphqlErrors(err)}, nil
	}

	return &Result{SDL: printSchema(built)}, nil
}

func sourceName(s schema.Input, i int) string {
	if s.ServiceName != "" {
		return s.ServiceName
	}
	if s.ID != "" {
		return s.ID
	}
	return fmt.Sprintf("schema-%d", i)
}

// graphqlErrors converts a gqlparser error into source-tagged errors.
func graphqlErrors(err error) []Error {
	return tagErrors(err, SourceGraphQL)
}

func tagErrors(err error, source ErrorSource) []Error {
	if list, ok := err.(gqlerror.List); ok {
		out := make([]Error, len(list))
		for i, e := range list {
			out[i] = Error{Message: e.Message, Source: source}
		}
		return out
	}
	if e, ok := err.(*gqlerror.Error); ok {
		return []Error{{Message: e.Message, Source: source}}
	}
	return []Error{{Message: err.Error(), Source: source}}
}

func printSchema(s *ast.Schema) string {
	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatSchema(s)
	return buf.String()
}
