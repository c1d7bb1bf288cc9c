// Package schema is the validation library behind the engine package. It
// compiles Go struct types or programmatic declarations into immutable
// schemas, checks arbitrary input against them and renders them as JSON
// Schema (draft 2020-12) documents.
//
// # Authoring Modes
//
//	Reflection  Reflect[T](ns) derives a schema from a struct type. Field
//	            names follow `json` tags. `validate` tags are evaluated by
//	            go-playground/validator; `jsonschema` tags (description,
//	            default, enum, minimum, ...) are read by invopop/jsonschema
//	            and enforced while walking the input.
//	Builder     ns.Object(props...).Build() declares an object property by
//	            property with String, Number, Integer, Boolean, Enum, Array
//	            and Nested. Parsed values are map[string]any with int64,
//	            float64, string, bool, []any and map[string]any leaves.
//
// # Parsing
//
// SafeParse never panics on malformed input and returns a Result carrying
// either the parsed value or every Issue found. Parsing proceeds in two
// stages:
//  1. The input is normalized to a generic JSON tree and walked against the
//     JSON Schema form of the schema. Defaults fill absent keys, coercion
//     (when enabled) converts strings from environment-style sources, and
//     type mismatches, missing required keys and unknown keys (in strict
//     mode) are reported.
//  2. Reflected schemas then decode the tree into T and run the validator.
//     Constraint failures below a location already reported as a type
//     mismatch are suppressed so that every problem is reported once.
//
// Issues carry a path of string keys and int indices, a Code naming the
// failure kind, and the offending input where known.
//
// # Namespaces
//
// A Namespace owns the validator instance, custom validations registered on
// it and the reflector settings. DefaultNamespace serves most programs;
// NewNamespace isolates custom registrations.
//
// Example (reflection):
//
//	type Server struct {
//	    Host string `json:"host" validate:"required,hostname_rfc1123"`
//	    Port int    `json:"port" validate:"gte=1,lte=65535" jsonschema:"default=8080"`
//	}
//	s := schema.MustReflect[Server](nil)
//	res := s.SafeParse([]byte(`{"host":"example.com"}`))
//	// res.Data.Port == 8080
//
// Example (builder):
//
//	s := schema.DefaultNamespace().Object(
//	    schema.String("name", schema.Required(), schema.MinLength(1)),
//	    schema.Integer("age", schema.Minimum(0)),
//	).MustBuild()
package schema
