package schema

// Shape builders. The resulting maps are plain JSON Schema (draft 2020-12)
// documents: they are persisted for audit, handed to the model as the output
// contract and compiled to validate what comes back.

func object(props map[string]any) map[string]any {
	return map[string]any{"type": "object", "properties": props}
}

func array(items map[string]any) map[string]any {
	return map[string]any{"type": "array", "items": items}
}

// mapOf is an object with arbitrary keys whose values all share one shape.
func mapOf(values map[string]any) map[string]any {
	return map[string]any{"type": "object", "additionalProperties": values}
}

// scalar accepts a number, a formatted numeric string or null.
func scalar() map[string]any {
	return map[string]any{"type": []any{"number", "string", "null"}}
}

// text accepts free text; numbers and booleans are tolerated and stringified later.
func text() map[string]any {
	return map[string]any{"type": []any{"string", "number", "boolean", "null"}}
}

func str() map[string]any {
	return map[string]any{"type": "string"}
}

func boolean() map[string]any {
	return map[string]any{"type": []any{"boolean", "null"}}
}

func enum(values ...string) map[string]any {
	vs := make([]any, len(values))
	for i, v := range values {
		vs[i] = v
	}
	return map[string]any{"type": "string", "enum": vs}
}

func freeObject() map[string]any {
	return map[string]any{"type": []any{"object", "null"}}
}

// period is the ano/mes pair; the year may be a number or a numeric string,
// the month a number, a numeric string or a month name.
func period() map[string]any {
	return map[string]any{
		"ano": map[string]any{"type": []any{"integer", "string", "null"}},
		"mes": map[string]any{"type": []any{"integer", "string", "null"}},
	}
}

// report builds the top-level shape: the period plus the fund sections.
func report(title string, sections map[string]any) map[string]any {
	props := period()
	for k, v := range sections {
		props[k] = v
	}
	s := object(props)
	s["$schema"] = "https://json-schema.org/draft/2020-12/schema"
	s["title"] = title
	return s
}

// pointRow is a time-series point: its own period plus arbitrary numeric fields.
func pointRow() map[string]any {
	s := object(period())
	s["additionalProperties"] = scalar()
	return s
}
