package store

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// yamlTableDoc is the on-disk shape SchemaFromYAML parses: a table name,
// its key domain, and one entry per field naming the primitive tags it
// accepts ("string", "integer", "boolean", "absent"). This lets an
// embedding application check a schema into a file instead of building
// the Schema map literally in Go.
type yamlTableDoc struct {
	Name    string              `yaml:"name"`
	KeyType string              `yaml:"keyType"`
	Fields  map[string][]string `yaml:"fields"`
}

// SchemaFromYAML parses a single table declaration and returns the
// TableDescriptor NewTable expects. It performs no validation beyond tag
// parsing; ValidateDeclaration (run by NewTable) still rejects malformed
// schemas.
func SchemaFromYAML(doc []byte) (TableDescriptor, error) {
	var parsed yamlTableDoc
	if err := yaml.Unmarshal(doc, &parsed); err != nil {
		return TableDescriptor{}, fmt.Errorf("store: parse schema YAML: %w", err)
	}
	if parsed.Name == "" {
		return TableDescriptor{}, fmt.Errorf("store: schema YAML missing table name")
	}

	kt, err := parseYAMLKeyType(parsed.KeyType)
	if err != nil {
		return TableDescriptor{}, err
	}

	schema := make(Schema, len(parsed.Fields))
	for field, tagNames := range parsed.Fields {
		tags := make([]FieldType, 0, len(tagNames))
		for _, tagName := range tagNames {
			tag, err := parseYAMLFieldType(tagName)
			if err != nil {
				return TableDescriptor{}, fmt.Errorf("store: field %q: %w", field, err)
			}
			tags = append(tags, tag)
		}
		schema[field] = tags
	}

	return TableDescriptor{
		Name:    parsed.Name,
		KeyType: kt,
		Schema:  schema,
	}, nil
}

func parseYAMLKeyType(s string) (KeyType, error) {
	switch s {
	case "", "string":
		return KeyTypeString, nil
	case "integer":
		return KeyTypeInteger, nil
	default:
		return 0, fmt.Errorf("store: schema YAML names unknown key type %q", s)
	}
}

func parseYAMLFieldType(s string) (FieldType, error) {
	switch s {
	case "absent":
		return TypeAbsent, nil
	case "string":
		return TypeString, nil
	case "integer":
		return TypeInteger, nil
	case "boolean":
		return TypeBoolean, nil
	default:
		return 0, fmt.Errorf("store: schema YAML names unknown field type %q", s)
	}
}
