package composition

import (
	"context"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/wudi/registry/internal/schema"
)

// StitchingOrchestrator merges multiple service schemas in process.
//
// Per-document syntax failures are reported as graphql errors; failures that
// only show up when the documents are combined (conflicting definitions,
// dangling type references) are composition errors.
type StitchingOrchestrator struct{}

// NewStitchingOrchestrator returns the in-process stitching orchestrator.
func NewStitchingOrchestrator() *StitchingOrchestrator {
	return &StitchingOrchestrator{}
}

func (o *StitchingOrchestrator) ComposeAndValidate(_ context.Context, schemas []schema.Input, _ Options) (*Result, error) {
	sources := make([]*ast.Source, 0, len(schemas))
	var syntaxErrors []Error

	for i, s := range schemas {
		src := &ast.Source{Name: sourceName(s, i), Input: s.SDL}
		if _, err := parser.ParseSchema(src); err != nil {
			syntaxErrors = append(syntaxErrors, tagErrors(err, SourceGraphQL)...)
			continue
		}
		sources = append(sources, src)
	}

	if len(syntaxErrors) > 0 {
		return &Result{Errors: syntaxErrors}, nil
	}

	built, err := gqlparser.LoadSchema(sources...)
	if err != nil {
		// Every document parsed on its own, so this is a cross-service conflict.
		return &Result{Errors: tagErrors(err, SourceComposition)}, nil
	}

	return &Result{SDL: printSchema(built)}, nil
}
