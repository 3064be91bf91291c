package services

import "strings"

// Renderer turns a card template and the note's field values into card text.
type Renderer interface {
	Render(template string, fields map[string]string) (string, error)
}

// PlaceholderRenderer substitutes {{FieldName}} with the field value.
// Unknown placeholders are left as they are.
type PlaceholderRenderer struct{}

func (PlaceholderRenderer) Render(template string, fields map[string]string) (string, error) {
	pairs := make([]string, 0, 2*len(fields))
	for name, value := range fields {
		pairs = append(pairs, "{{"+name+"}}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template), nil
}
