// Package gateway is the single entry point for world-mutating commands.
//
// Every command passes the same stages in order:
//
//	edit_mode   the scene's EditPolicy may freeze the world
//	rules       a RuleChecker may veto the command
//	validation  the command must be well formed
//	authority   the authority model's policy hooks
//	execution   the kernel runs and its result is merged
//
// A command stopped at any stage leaves the world untouched and is written
// to the shadow ledger with the stage and reason. An accepted command is
// committed to history when the gateway runs in CANON mode, or in TEST and
// DREAM modes when non-canonical recording is enabled.
//
// Runtime bundles a gateway with the stores, rule engine and authority
// model it drives, built from a config.Config.
package gateway
