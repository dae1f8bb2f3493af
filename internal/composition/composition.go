// Package composition adapts the composition backends (in-process single and
// stitching orchestrators, external federation service) behind one interface
// and classifies their failures by source.
package composition

import (
	"context"
	"fmt"

	"github.com/wudi/registry/internal/schema"
)

// ErrorSource tells apart plain GraphQL validation errors from semantic
// composition errors. Downstream publish logic treats the two differently.
type ErrorSource string

const (
	SourceGraphQL     ErrorSource = "graphql"
	SourceComposition ErrorSource = "composition"
)

// Error is a single composition failure.
type Error struct {
	Message string      `json:"message"`
	Source  ErrorSource `json:"source"`
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Source, e.Message)
}

// Result is the outcome of one compose-and-validate call. A non-empty Errors
// list means the schema set does not compose; that is an expected outcome,
// not a Go error.
type Result struct {
	SDL           string   `json:"sdl,omitempty"`
	SupergraphSDL string   `json:"supergraph,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	Errors        []Error  `json:"errors,omitempty"`
}

// Options carries per-project composition settings.
type Options struct {
	// Native runs federation composition in-process instead of calling the
	// external composition service.
	Native bool
}

// Orchestrator composes a set of schemas into one servable schema.
// Implementations return an error only for transport or contract failures;
// schemas that fail to compose are reported through Result.Errors.
type Orchestrator interface {
	ComposeAndValidate(ctx context.Context, schemas []schema.Input, opts Options) (*Result, error)
}

// ErrorsBySource partitions composition errors by their source.
type ErrorsBySource struct {
	GraphQL     []Error `json:"graphql"`
	Composition []Error `json:"composition"`
}

// Partition splits errors into graphql vs composition buckets.
func Partition(errs []Error) ErrorsBySource {
	var out ErrorsBySource
	for _, e := range errs {
		if e.Source == SourceComposition {
			out.Composition = append(out.Composition, e)
		} else {
			out.GraphQL = append(out.GraphQL, e)
		}
	}
	return out
}

// Check is the composition stage outcome consumed by the check/publish models.
type Check struct {
	Failed         bool
	SDL            string
	SupergraphSDL  string
	Tags           []string
	Errors         []Error
	ErrorsBySource ErrorsBySource
}

// Compose runs the orchestrator over the (base-extended) schema set and wraps
// the outcome. Expected composition failures come back as Check.Failed;
// an orchestrator reporting success without SDL is a contract violation and
// surfaces as a returned error.
func Compose(ctx context.Context, orchestrator Orchestrator, schemas []schema.Input, baseSchema string, opts Options) (*Check, error) {
	result, err := orchestrator.ComposeAndValidate(ctx, schema.ExtendWithBase(schemas, baseSchema), opts)
	if err != nil {
		return nil, fmt.Errorf("compose and validate: %w", err)
	}

	if len(result.Errors) > 0 {
		return &Check{
			Failed:         true,
			Errors:         result.Errors,
			ErrorsBySource: Partition(result.Errors),
		}, nil
	}

	if result.SDL == "" {
		return nil, fmt.Errorf("composition returned no SDL and no errors")
	}

	return &Check{
		SDL:           result.SDL,
		SupergraphSDL: result.SupergraphSDL,
		Tags:          result.Tags,
	}, nil
}
