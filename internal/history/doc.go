// Package history keeps the append-only records of what happened.
//
// Ledger holds historical events tagged with a mode: CANON events are what
// actually happened, TEST and DREAM events come from experimental or
// sandboxed runs and can be cleared wholesale. ShadowLedger holds rejected
// command attempts and never touches the world.
package history
