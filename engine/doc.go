// Package engine adapts a schema to the contract a configuration host
// expects: validate a candidate value into a success/failure Outcome, and
// describe the accepted shape as a JSON Schema document.
//
// An engine is built once from either a ready schema or a Factory that
// receives the validation namespace:
//
//	eng, err := engine.New[Config](func(ns *schema.Namespace) (*schema.Schema[Config], error) {
//	    return schema.Reflect[Config](ns, schema.Coerce())
//	})
//
//	out := eng.Validate(raw)
//	if !out.Success {
//	    for _, is := range out.Errors {
//	        fmt.Printf("%s: %s (%s)\n", is.Path, is.Message, is.Details)
//	    }
//	}
//
// Validate never returns an error and never panics on bad input; issues are
// reported one per problem, in the order the schema found them. ToJSONSchema
// returns the schema's own conversion error when the schema contains
// constructs JSON Schema cannot express.
package engine
