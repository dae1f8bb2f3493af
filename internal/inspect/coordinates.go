package inspect

import (
	"sort"

	"github.com/vektah/gqlparser/v2/ast"
)

// CoordinatesDiff lists schema coordinates that appeared or disappeared
// between two composable versions.
type CoordinatesDiff struct {
	Added   []string `json:"added,omitempty"`
	Deleted []string `json:"deleted,omitempty"`
}

// SchemaCoordinates returns every coordinate a schema exposes: types,
// fields, arguments, input fields, and enum values.
func SchemaCoordinates(s *ast.Schema) map[string]struct{} {
	coords := make(map[string]struct{})
	for name, def := range s.Types {
		if def.BuiltIn || isIntrospectionType(name) {
			continue
		}
		coords[name] = struct{}{}

		switch def.Kind {
		case ast.Object, ast.Interface, ast.InputObject:
			for _, f := range def.Fields {
				if isIntrospectionField(f.Name) {
					continue
				}
				coords[name+"."+f.Name] = struct{}{}
				for _, a := range f.Arguments {
					coords[name+"."+f.Name+"."+a.Name] = struct{}{}
				}
			}
		case ast.Enum:
			for _, v := range def.EnumValues {
				coords[name+"."+v.Name] = struct{}{}
			}
		}
	}
	return coords
}

// DiffCoordinates computes the added/deleted coordinate sets. Either side
// may be nil, in which case all coordinates of the other side are reported.
func DiffCoordinates(before, after *ast.Schema) *CoordinatesDiff {
	var beforeSet, afterSet map[string]struct{}
	if before != nil {
		beforeSet = SchemaCoordinates(before)
	}
	if after != nil {
		afterSet = SchemaCoordinates(after)
	}

	diff := &CoordinatesDiff{}
	for c := range afterSet {
		if _, ok := beforeSet[c]; !ok {
			diff.Added = append(diff.Added, c)
		}
	}
	for c := range beforeSet {
		if _, ok := afterSet[c]; !ok {
			diff.Deleted = append(diff.Deleted, c)
		}
	}
	sort.Strings(diff.Added)
	sort.Strings(diff.Deleted)
	return diff
}
