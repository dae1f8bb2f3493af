package composition

import (
	"context"
	"fmt"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
	"go.uber.org/zap"

	"github.com/wudi/registry/internal/schema"
)

// federationPrelude declares the federation machinery so subgraph documents
// using @key and friends validate in process.
const federationPrelude = `
scalar _FieldSet
scalar FieldSet
scalar link__Import

directive @key(fields: _FieldSet!, resolvable: Boolean = true) repeatable on OBJECT | INTERFACE
directive @external on FIELD_DEFINITION | OBJECT
directive @requires(fields: _FieldSet!) on FIELD_DEFINITION
directive @provides(fields: _FieldSet!) on FIELD_DEFINITION
directive @shareable repeatable on FIELD_DEFINITION | OBJECT
directive @inaccessible on FIELD_DEFINITION | OBJECT | INTERFACE | UNION | ARGUMENT_DEFINITION | SCALAR | ENUM | ENUM_VALUE | INPUT_OBJECT | INPUT_FIELD_DEFINITION
directive @override(from: String!) on FIELD_DEFINITION
directive @tag(name: String!) repeatable on FIELD_DEFINITION | OBJECT | INTERFACE | UNION | ARGUMENT_DEFINITION | SCALAR | ENUM | ENUM_VALUE | INPUT_OBJECT | INPUT_FIELD_DEFINITION
directive @extends on OBJECT | INTERFACE
directive @link(url: String!, as: String, import: [link__Import]) repeatable on SCHEMA
`

// FederationOrchestrator composes federation subgraphs. When an external
// composition service is configured and native mode is off, composition is
// delegated to it; otherwise an in-process merge is used.
type FederationOrchestrator struct {
	external *ExternalClient
	logger   *zap.Logger
}

// NewFederationOrchestrator creates a federation orchestrator. external may
// be nil, in which case only the in-process merge is available.
func NewFederationOrchestrator(external *ExternalClient, logger *zap.Logger) *FederationOrchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FederationOrchestrator{external: external, logger: logger}
}

func (o *FederationOrchestrator) ComposeAndValidate(ctx context.Context, schemas []schema.Input, opts Options) (*Result, error) {
	if o.external != nil && !opts.Native {
		o.logger.Debug("delegating composition to external service",
			zap.Int("subgraphs", len(schemas)))
		result, err := o.external.Compose(ctx, schemas)
		if err != nil {
			return nil, fmt.Errorf("external composition: %w", err)
		}
		return result, nil
	}

	return o.composeNative(schemas)
}

// composeNative merges the subgraph documents in process. The resulting SDL
// doubles as the supergraph artifact; subgraph routing metadata is only
// produced by the external service.
func (o *FederationOrchestrator) composeNative(schemas []schema.Input) (*Result, error) {
	sources := make([]*ast.Source, 0, len(schemas)+1)
	sources = append(sources, &ast.Source{Name: "federation", Input: federationPrelude, BuiltIn: true})

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
		return &Result{Errors: tagErrors(err, SourceComposition)}, nil
	}

	sdl := printSchema(built)
	return &Result{SDL: sdl, SupergraphSDL: sdl}, nil
}
