// Package harness runs rule-engine scenarios as executable contract tests.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: door_unlock
//	description: "The key holder's unlock beats the hallway lockdown"
//	state:
//	  player: { flags: { has_key: true }, location: hallway }
//	  door:   { flags: { locked: true } }
//	rules:
//	  - id: unlock_with_key
//	    requires: ['flag(player,"has_key")']
//	    effects: ['set_flag(door,"locked",false)']
//	    priority: 10
//	rules_file: shared/rules.cue   # optional, relative to the scenario
//	ticks:
//	  - tick: 1
//	    scene: hallway
//	    vars: { alarm: true }
//	    expect:
//	      applied: [unlock_with_key]
//	      blocked: [hallway_lockdown]
//	expect:
//	  flags:     { door: { locked: false } }
//	  stats:     { player: { gold: 5 } }
//	  locations: { player: hallway }
//	  inventory: { player: { potion: 1 } }
//
// Every scenario runs on a fresh world with a zero clock, so its trace is
// byte-for-byte reproducible and can be compared against a golden file
// with RunWithGolden.
package harness
