package moapi

import (
	"strconv"
)

// Schema declares the shape of a pointer-resolved document: an ordered set
// of field descriptors.  Fields present in a document but not declared in
// its schema pass through as raw values, so schemas stay forward-compatible
// with documents that grow extra fields.
type Schema struct {
	Fields []SchemaField
}

// SchemaField describes one declared field.  When Pointer is non-nil the
// field's raw value is expected to be a URI string and is wrapped as a
// nested storage pointer carrying that sub-schema.
type SchemaField struct {
	Name    string
	Pointer *Schema
}

// Field looks up a declared field by name.
func (s Schema) Field(name string) (SchemaField, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return SchemaField{}, false
}

// SchemaFromDocument builds a Schema from its document form:
//
//	{"fields": [{"name": "owner"},
//	            {"name": "index", "pointer": {"fields": [...]}}]}
//
// This is how collaborators (and the CLI) declare schemas without linking
// against this package's types.
//
// Errors:
//
//    - moorage-error-invalid -- when the document does not have the shape
//      above, or declares a field name twice
func SchemaFromDocument(doc Document) (Schema, error) {
	rawFields, ok := doc["fields"].([]interface{})
	if !ok {
		return Schema{}, ErrorInvalid("schema document must have a \"fields\" list")
	}
	schema := Schema{Fields: make([]SchemaField, 0, len(rawFields))}
	seen := make(map[string]struct{}, len(rawFields))
	for i, rf := range rawFields {
		fieldDoc, ok := rf.(map[string]interface{})
		if !ok {
			return Schema{}, ErrorInvalid("schema field entries must be maps",
				[2]string{"index", strconv.Itoa(i)})
		}
		name, ok := fieldDoc["name"].(string)
		if !ok || name == "" {
			return Schema{}, ErrorInvalid("schema field entries must have a non-empty \"name\"",
				[2]string{"index", strconv.Itoa(i)})
		}
		if _, dup := seen[name]; dup {
			return Schema{}, ErrorInvalid("schema declares a field name twice",
				[2]string{"name", strconv.Quote(name)})
		}
		seen[name] = struct{}{}
		field := SchemaField{Name: name}
		if rawSub, present := fieldDoc["pointer"]; present {
			subDoc, ok := rawSub.(map[string]interface{})
			if !ok {
				return Schema{}, ErrorInvalid("schema field \"pointer\" must be a nested schema document",
					[2]string{"name", strconv.Quote(name)})
			}
			sub, err := SchemaFromDocument(Document(subDoc))
			if err != nil {
				return Schema{}, err
			}
			field.Pointer = &sub
		}
		schema.Fields = append(schema.Fields, field)
	}
	return schema, nil
}
