// Package boundary is the only code permitted to index into the raw,
// weakly-typed state container that arrives from outside the kernel.
//
// Every exported view function reads the fields it needs, coerces
// compatible shapes (any 3-element numeric sequence becomes a Vec3), fills
// documented defaults (a missing velocity is the zero vector) and otherwise
// fails with a *ContractViolation naming the entity and field.
//
// Past this package, state travels only as typed views. Code that accepts
// untyped values at a deserialization seam calls GuardRaw, which fails with
// a *ContaminationError when the value still looks like the raw container.
// A contamination error is an architecture bug, not a data bug.
package boundary
