// Package authority executes commands against the world state under a
// tiered permission model.
//
// Tiers, low to high: 0 physical law, 1 autonomous actor, 2 soft human
// override, 3 hard human override, 4 debug. Tiers 0, 3 and 4 are always
// allowed; tiers 1 and 2 consult policy hooks that allow by default.
//
// Every successful command is appended to a command log stamped by a
// logical clock. Replaying that log from the initial state must reproduce
// the live state exactly; VerifyReplay checks this by canonical hash.
package authority
