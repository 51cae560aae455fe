// Package schema defines the typed memory kinds Keepsake maintains and the
// JSON Schema machinery used to validate extracted values.
//
// Three kinds are built in:
//
//   - profile: one record per owner, optional typed fields, field-overwrite merge
//   - todo: many records per owner, each independently addressable
//   - instructions: one free-text record per owner, whole-document overwrite
//
// Validation failures are field-addressable: Validate returns a
// *ValidationError listing every offending field with a JSON-pointer path, so
// the extractor can ask the model to repair exactly the fields that failed.
//
// The package has no side effects and no dependencies outside the standard
// library.
package schema
