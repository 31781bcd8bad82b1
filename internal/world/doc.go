// Package world owns the keyed state of the simulated world.
//
// A Provider holds one State: per entity, boolean flags, numeric stats, an
// optional location and item counts. The Provider performs no validation;
// inputs are sanitized upstream by the boundary package.
//
// State is only ever snapshotted and restored as a unit. Speculate wraps a
// function in a snapshot/restore pair that always restores, so speculative
// evaluation can never leak partially mutated state.
package world
