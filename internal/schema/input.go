// Package schema holds schema submissions and the checksum logic that detects
// no-op resubmissions before the expensive pipeline stages run.
package schema

// Input is a single schema submission. Composite (federation/stitching)
// inputs carry a service identity; single-schema inputs leave both empty.
type Input struct {
	ID           string `json:"id"`
	SDL          string `json:"sdl"`
	ServiceName  string `json:"service_name,omitempty"`
	ServiceURL   string `json:"service_url,omitempty"`
	MetadataJSON string `json:"metadata,omitempty"`
}

// IsComposite reports whether the input belongs to a multi-service project.
func (in Input) IsComposite() bool {
	return in.ServiceName != ""
}

// SwapServices replaces the schema whose service name matches the incoming
// one, or appends the incoming schema when no service matches. It returns the
// new schema list and the replaced schema, if any.
func SwapServices(schemas []Input, incoming Input) (out []Input, existing *Input) {
	out = make([]Input, 0, len(schemas)+1)
	for _, s := range schemas {
		if s.ServiceName == incoming.ServiceName {
			prev := s
			existing = &prev
			out = append(out, incoming)
			continue
		}
		out = append(out, s)
	}

	if existing == nil {
		out = append(out, incoming)
	}

	return out, existing
}

// ExtendWithBase prepends the base schema to the first input's SDL.
// The base schema carries shared directives and scalars maintained outside
// any one service.
func ExtendWithBase(schemas []Input, baseSchema string) []Input {
	if baseSchema == "" {
		return schemas
	}

	out := make([]Input, len(schemas))
	copy(out, schemas)
	if len(out) > 0 {
		out[0].SDL = baseSchema + " " + out[0].SDL
	}
	return out
}
