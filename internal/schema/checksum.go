package schema

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/tidwall/gjson"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/parser"
)

// ChecksumResult classifies an incoming submission against the latest version.
type ChecksumResult int

const (
	// ChecksumInitial means there is no existing version to compare against.
	ChecksumInitial ChecksumResult = iota
	// ChecksumUnchanged means the submission is a no-op resubmission.
	ChecksumUnchanged
	// ChecksumModified means the submission differs from the latest version.
	ChecksumModified
)

func (r ChecksumResult) String() string {
	switch r {
	case ChecksumInitial:
		return "initial"
	case ChecksumUnchanged:
		return "unchanged"
	case ChecksumModified:
		return "modified"
	default:
		return "unknown"
	}
}

// VersionedSchemas pairs a schema set with the contract names attached to it.
type VersionedSchemas struct {
	Schemas       []Input
	ContractNames []string
}

// Checksum decides whether an incoming schema set is a new, modified, or
// unchanged submission. Equal digests with differing contract-name sets are
// still reported as modified, so callers must always go through this check
// instead of comparing SDL themselves.
func Checksum(existing *VersionedSchemas, incoming VersionedSchemas) ChecksumResult {
	if existing == nil || len(existing.Schemas) == 0 {
		return ChecksumInitial
	}

	if DigestSchemas(existing.Schemas) != DigestSchemas(incoming.Schemas) {
		return ChecksumModified
	}

	if !equalNameSets(existing.ContractNames, incoming.ContractNames) {
		return ChecksumModified
	}

	return ChecksumUnchanged
}

// DigestSchemas returns a stable digest over a schema set. Order of the
// inputs does not matter.
func DigestSchemas(schemas []Input) string {
	digests := make([]string, len(schemas))
	for i, s := range schemas {
		digests[i] = Digest(s)
	}
	sort.Strings(digests)

	h := xxhash.New()
	for _, d := range digests {
		io.WriteString(h, d)
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Digest returns a stable digest of one schema input: the printed sorted AST
// plus service identity and a canonical metadata hash. Whitespace and
// definition order in the SDL do not affect the digest.
func Digest(s Input) string {
	h := xxhash.New()
	io.WriteString(h, printSorted(s.SDL))
	fmt.Fprintf(h, "service_name: %s\n", s.ServiceName)
	fmt.Fprintf(h, "service_url: %s\n", s.ServiceURL)
	fmt.Fprintf(h, "metadata: %s\n", MetadataHash(s.MetadataJSON))
	return hex.EncodeToString(h.Sum(nil))
}

// MetadataHash returns a digest of a metadata JSON document that is stable
// under key reordering and whitespace. Empty metadata hashes to "".
func MetadataHash(metadataJSON string) string {
	if metadataJSON == "" {
		return ""
	}

	h := xxhash.New()
	writeCanonicalJSON(h, gjson.Parse(metadataJSON))
	return hex.EncodeToString(h.Sum(nil))
}

func writeCanonicalJSON(w io.Writer, v gjson.Result) {
	switch {
	case v.IsObject():
		keys := make([]string, 0, 8)
		values := make(map[string]gjson.Result, 8)
		v.ForEach(func(key, value gjson.Result) bool {
			keys = append(keys, key.String())
			values[key.String()] = value
			return true
		})
		sort.Strings(keys)
		io.WriteString(w, "{")
		for _, k := range keys {
			fmt.Fprintf(w, "%q:", k)
			writeCanonicalJSON(w, values[k])
			io.WriteString(w, ",")
		}
		io.WriteString(w, "}")
	case v.IsArray():
		io.WriteString(w, "[")
		for _, item := range v.Array() {
			writeCanonicalJSON(w, item)
			io.WriteString(w, ",")
		}
		io.WriteString(w, "]")
	default:
		io.WriteString(w, v.Raw)
	}
}

// printSorted parses the SDL and prints it with every level sorted by name:
// definitions, fields, arguments, enum values, union members, interfaces,
// and directives. Unparsable SDL falls back to the trimmed source so the
// checksum still detects resubmissions of invalid documents.
func printSorted(sdl string) string {
	doc, err := parser.ParseSchema(&ast.Source{Name: "schema", Input: sdl})
	if err != nil {
		return strings.TrimSpace(sdl)
	}

	sortDefinitions(doc.Definitions)
	sortDefinitions(doc.Extensions)
	sort.SliceStable(doc.Directives, func(i, j int) bool {
		return doc.Directives[i].Name < doc.Directives[j].Name
	})
	for _, d := range doc.Directives {
		sortArgumentDefinitions(d.Arguments)
	}

	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatSchemaDocument(doc)
	return buf.String()
}

func sortDefinitions(defs ast.DefinitionList) {
	sort.SliceStable(defs, func(i, j int) bool {
		return defs[i].Name < defs[j].Name
	})
	for _, def := range defs {
		sortDefinition(def)
	}
}

func sortDefinition(def *ast.Definition) {
	sort.SliceStable(def.Fields, func(i, j int) bool {
		return def.Fields[i].Name < def.Fields[j].Name
	})
	for _, f := range def.Fields {
		sortArgumentDefinitions(f.Arguments)
		sortAppliedDirectives(f.Directives)
	}
	sort.SliceStable(def.EnumValues, func(i, j int) bool {
		return def.EnumValues[i].Name < def.EnumValues[j].Name
	})
	for _, v := range def.EnumValues {
		sortAppliedDirectives(v.Directives)
	}
	sort.Strings(def.Types)
	sort.Strings(def.Interfaces)
	sortAppliedDirectives(def.Directives)
}

func sortArgumentDefinitions(args ast.ArgumentDefinitionList) {
	sort.SliceStable(args, func(i, j int) bool {
		return args[i].Name < args[j].Name
	})
	for _, a := range args {
		sortAppliedDirectives(a.Directives)
	}
}

func sortAppliedDirectives(dirs ast.DirectiveList) {
	sort.SliceStable(dirs, func(i, j int) bool {
		return dirs[i].Name < dirs[j].Name
	})
	for _, d := range dirs {
		sort.SliceStable(d.Arguments, func(i, j int) bool {
			return d.Arguments[i].Name < d.Arguments[j].Name
		})
	}
}

func equalNameSets(a, b []string) bool {
	setA := nameSet(a)
	setB := nameSet(b)
	if len(setA) != len(setB) {
		return false
	}
	for name := range setB {
		if _, ok := setA[name]; !ok {
			return false
		}
	}
	return true
}

func nameSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}
