package inspect

import (
	"fmt"
	"sort"

	"github.com/vektah/gqlparser/v2/ast"
)

// Inspector computes the raw change list between two schemas. It is a pure
// structural comparison; criticality here is static and ignores traffic.
type Inspector interface {
	Diff(oldSchema, newSchema *ast.Schema) []Change
}

// StructuralInspector is the built-in Inspector.
type StructuralInspector struct{}

// NewStructuralInspector returns the built-in structural inspector.
func NewStructuralInspector() *StructuralInspector {
	return &StructuralInspector{}
}

func (si *StructuralInspector) Diff(oldSchema, newSchema *ast.Schema) []Change {
	var changes []Change

	for _, name := range userTypeNames(oldSchema) {
		oldDef := oldSchema.Types[name]
		newDef, ok := newSchema.Types[name]
		if !ok {
			c := newChange(TypeRemoved, name,
				fmt.Sprintf("Type '%s' was removed", name), Breaking)
			c.BreakingChangeCoordinate = name
			changes = append(changes, c)
			continue
		}

		if oldDef.Kind != newDef.Kind {
			c := newChange(TypeKindChanged, name,
				fmt.Sprintf("Type '%s' changed kind from %s to %s", name, oldDef.Kind, newDef.Kind), Breaking)
			c.BreakingChangeCoordinate = name
			changes = append(changes, c)
			continue
		}

		switch oldDef.Kind {
		case ast.Object, ast.Interface:
			changes = append(changes, diffFields(name, oldDef, newDef)...)
			changes = append(changes, diffInterfaces(name, oldDef, newDef)...)
		case ast.InputObject:
			changes = append(changes, diffInputFields(name, oldDef, newDef)...)
		case ast.Enum:
			changes = append(changes, diffEnumValues(name, oldDef, newDef)...)
		case ast.Union:
			changes = append(changes, diffUnionMembers(name, oldDef, newDef)...)
		}
	}

	for _, name := range userTypeNames(newSchema) {
		if _, ok := oldSchema.Types[name]; !ok {
			changes = append(changes, newChange(TypeAdded, name,
				fmt.Sprintf("Type '%s' was added", name), Safe))
		}
	}

	changes = append(changes, diffDirectives(oldSchema, newSchema)...)

	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].Path < changes[j].Path
	})
	return changes
}

func diffFields(typeName string, oldDef, newDef *ast.Definition) []Change {
	var changes []Change

	newFields := fieldMap(newDef)
	for _, oldField := range oldDef.Fields {
		if isIntrospectionField(oldField.Name) {
			continue
		}
		path := typeName + "." + oldField.Name

		newField, ok := newFields[oldField.Name]
		if !ok {
			c := newChange(FieldRemoved, path,
				fmt.Sprintf("Field '%s' was removed from %s '%s'", oldField.Name, kindNoun(oldDef.Kind), typeName), Breaking)
			c.BreakingChangeCoordinate = path
			changes = append(changes, c)
			continue
		}

		oldType := oldField.Type.String()
		newType := newField.Type.String()
		if oldType != newType {
			crit := Breaking
			// Making an output type non-null only narrows what clients may
			// receive, never what they may send.
			if newType == oldType+"!" {
				crit = Safe
			}
			c := newChange(FieldTypeChanged, path,
				fmt.Sprintf("Field '%s.%s' changed type from '%s' to '%s'", typeName, oldField.Name, oldType, newType), crit)
			if crit == Breaking {
				c.BreakingChangeCoordinate = path
			}
			changes = append(changes, c)
		}

		changes = append(changes, diffArguments(typeName, oldField, newField)...)
	}

	oldFields := fieldMap(oldDef)
	for _, newField := range newDef.Fields {
		if isIntrospectionField(newField.Name) {
			continue
		}
		if _, ok := oldFields[newField.Name]; !ok {
			path := typeName + "." + newField.Name
			changes = append(changes, newChange(FieldAdded, path,
				fmt.Sprintf("Field '%s' was added to %s '%s'", newField.Name, kindNoun(newDef.Kind), typeName), Safe))
		}
	}

	return changes
}

// diffArguments compares the arguments of one field. Breaking argument
// changes carry the parent field as their usage coordinate: usage reports
// attribute argument usage only when the argument is present in the
// operation, so the argument's own coordinate would under-count.
func diffArguments(typeName string, oldField, newField *ast.FieldDefinition) []Change {
	var changes []Change

	fieldCoordinate := typeName + "." + oldField.Name

	newArgs := make(map[string]*ast.ArgumentDefinition, len(newField.Arguments))
	for _, a := range newField.Arguments {
		newArgs[a.Name] = a
	}

	oldArgs := make(map[string]*ast.ArgumentDefinition, len(oldField.Arguments))
	for _, oldArg := range oldField.Arguments {
		oldArgs[oldArg.Name] = oldArg
		path := fieldCoordinate + "." + oldArg.Name

		newArg, ok := newArgs[oldArg.Name]
		if !ok {
			c := newChange(FieldArgumentRemoved, path,
				fmt.Sprintf("Argument '%s' was removed from field '%s'", oldArg.Name, fieldCoordinate), Breaking)
			c.BreakingChangeCoordinate = fieldCoordinate
			changes = append(changes, c)
			continue
		}

		oldType := oldArg.Type.String()
		newType := newArg.Type.String()
		if oldType == newType {
			continue
		}

		c := newChange(FieldArgumentTypeChanged, path,
			fmt.Sprintf("Argument '%s' of field '%s' changed type from '%s' to '%s'", oldArg.Name, fieldCoordinate, oldType, newType), Breaking)
		c.BreakingChangeCoordinate = fieldCoordinate
		c.NullabilityNarrowing = isNullabilityNarrowing(oldArg.Type, newArg.Type)
		changes = append(changes, c)
	}

	for _, newArg := range newField.Arguments {
		if _, ok := oldArgs[newArg.Name]; ok {
			continue
		}
		path := fieldCoordinate + "." + newArg.Name
		if newArg.Type.NonNull && newArg.DefaultValue == nil {
			c := newChange(FieldArgumentAdded, path,
				fmt.Sprintf("Required argument '%s' was added to field '%s'", newArg.Name, fieldCoordinate), Breaking)
			c.BreakingChangeCoordinate = fieldCoordinate
			changes = append(changes, c)
		} else {
			changes = append(changes, newChange(FieldArgumentAdded, path,
				fmt.Sprintf("Optional argument '%s' was added to field '%s'", newArg.Name, fieldCoordinate), Safe))
		}
	}

	return changes
}

func diffInputFields(typeName string, oldDef, newDef *ast.Definition) []Change {
	var changes []Change

	newFields := fieldMap(newDef)
	for _, oldField := range oldDef.Fields {
		path := typeName + "." + oldField.Name

		newField, ok := newFields[oldField.Name]
		if !ok {
			c := newChange(InputFieldRemoved, path,
				fmt.Sprintf("Input field '%s' was removed from input type '%s'", oldField.Name, typeName), Breaking)
			c.BreakingChangeCoordinate = path
			changes = append(changes, c)
			continue
		}

		oldType := oldField.Type.String()
		newType := newField.Type.String()
		if oldType == newType {
			continue
		}

		c := newChange(InputFieldTypeChanged, path,
			fmt.Sprintf("Input field '%s.%s' changed type from '%s' to '%s'", typeName, oldField.Name, oldType, newType), Breaking)
		c.BreakingChangeCoordinate = path
		c.NullabilityNarrowing = isNullabilityNarrowing(oldField.Type, newField.Type)
		changes = append(changes, c)
	}

	oldFields := fieldMap(oldDef)
	for _, newField := range newDef.Fields {
		if _, ok := oldFields[newField.Name]; ok {
			continue
		}
		path := typeName + "." + newField.Name
		if newField.Type.NonNull && newField.DefaultValue == nil {
			c := newChange(InputFieldAdded, path,
				fmt.Sprintf("Required input field '%s' was added to input type '%s'", newField.Name, typeName), Breaking)
			c.BreakingChangeCoordinate = typeName
			changes = append(changes, c)
		} else {
			changes = append(changes, newChange(InputFieldAdded, path,
				fmt.Sprintf("Optional input field '%s' was added to input type '%s'", newField.Name, typeName), Safe))
		}
	}

	return changes
}

func diffEnumValues(typeName string, oldDef, newDef *ast.Definition) []Change {
	var changes []Change

	newValues := make(map[string]bool, len(newDef.EnumValues))
	for _, v := range newDef.EnumValues {
		newValues[v.Name] = true
	}
	oldValues := make(map[string]bool, len(oldDef.EnumValues))
	for _, v := range oldDef.EnumValues {
		oldValues[v.Name] = true
		if !newValues[v.Name] {
			path := typeName + "." + v.Name
			c := newChange(EnumValueRemoved, path,
				fmt.Sprintf("Enum value '%s' was removed from enum '%s'", v.Name, typeName), Breaking)
			c.BreakingChangeCoordinate = path
			changes = append(changes, c)
		}
	}

	for _, v := range newDef.EnumValues {
		if !oldValues[v.Name] {
			changes = append(changes, newChange(EnumValueAdded, typeName+"."+v.Name,
				fmt.Sprintf("Enum value '%s' was added to enum '%s'", v.Name, typeName), Dangerous))
		}
	}

	return changes
}

func diffUnionMembers(typeName string, oldDef, newDef *ast.Definition) []Change {
	var changes []Change

	newMembers := make(map[string]bool, len(newDef.Types))
	for _, m := range newDef.Types {
		newMembers[m] = true
	}
	oldMembers := make(map[string]bool, len(oldDef.Types))
	for _, m := range oldDef.Types {
		oldMembers[m] = true
		if !newMembers[m] {
			c := newChange(UnionMemberRemoved, typeName,
				fmt.Sprintf("Member '%s' was removed from union '%s'", m, typeName), Breaking)
			c.BreakingChangeCoordinate = typeName
			changes = append(changes, c)
		}
	}

	for _, m := range newDef.Types {
		if !oldMembers[m] {
			changes = append(changes, newChange(UnionMemberAdded, typeName,
				fmt.Sprintf("Member '%s' was added to union '%s'", m, typeName), Dangerous))
		}
	}

	return changes
}

func diffInterfaces(typeName string, oldDef, newDef *ast.Definition) []Change {
	var changes []Change

	newIfaces := make(map[string]bool, len(newDef.Interfaces))
	for _, i := range newDef.Interfaces {
		newIfaces[i] = true
	}
	oldIfaces := make(map[string]bool, len(oldDef.Interfaces))
	for _, i := range oldDef.Interfaces {
		oldIfaces[i] = true
		if !newIfaces[i] {
			c := newChange(ObjectInterfaceRemoved, typeName,
				fmt.Sprintf("'%s' no longer implements interface '%s'", typeName, i), Breaking)
			c.BreakingChangeCoordinate = typeName
			changes = append(changes, c)
		}
	}

	for _, i := range newDef.Interfaces {
		if !oldIfaces[i] {
			changes = append(changes, newChange(ObjectInterfaceAdded, typeName,
				fmt.Sprintf("'%s' now implements interface '%s'", typeName, i), Safe))
		}
	}

	return changes
}

func diffDirectives(oldSchema, newSchema *ast.Schema) []Change {
	var changes []Change
	for name, oldDir := range oldSchema.Directives {
		if oldDir == nil || builtinDirectives[name] {
			continue
		}
		if _, ok := newSchema.Directives[name]; !ok {
			changes = append(changes, newChange(DirectiveRemoved, "@"+name,
				fmt.Sprintf("Directive '@%s' was removed", name), Breaking))
		}
	}
	return changes
}

var builtinDirectives = map[string]bool{
	"skip":        true,
	"include":     true,
	"deprecated":  true,
	"specifiedBy": true,
	"oneOf":       true,
}

// isNullabilityNarrowing reports the exact nullable-to-required shape: the
// inner type is unchanged and only a top-level non-null wrapper was added.
// Deliberately not generalized to other type-narrowing changes.
func isNullabilityNarrowing(oldType, newType *ast.Type) bool {
	if oldType.NonNull || !newType.NonNull {
		return false
	}
	unwrapped := *newType
	unwrapped.NonNull = false
	return oldType.String() == unwrapped.String()
}

func userTypeNames(s *ast.Schema) []string {
	names := make([]string, 0, len(s.Types))
	for name, def := range s.Types {
		if def.BuiltIn || isIntrospectionType(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func fieldMap(def *ast.Definition) map[string]*ast.FieldDefinition {
	m := make(map[string]*ast.FieldDefinition, len(def.Fields))
	for _, f := range def.Fields {
		m[f.Name] = f
	}
	return m
}

func kindNoun(kind ast.DefinitionKind) string {
	switch kind {
	case ast.Object:
		return "object type"
	case ast.Interface:
		return "interface"
	default:
		return "type"
	}
}

func isIntrospectionType(name string) bool {
	return len(name) > 2 && name[0] == '_' && name[1] == '_'
}

func isIntrospectionField(name string) bool {
	return len(name) > 2 && name[0] == '_' && name[1] == '_'
}
