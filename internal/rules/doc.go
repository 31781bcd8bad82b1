// Package rules implements the declarative rule engine.
//
// Rules are loaded once: their requires/conflicts/effects text is tokenized
// into typed predicates and effects, and their read and write key sets are
// derived at that point. Each tick the engine selects eligible rules,
// arbitrates write-key conflicts by priority (ties broken by load order),
// and either reports what would happen (SimulateTick) or applies it to the
// world and appends a ledger record (ExecuteTick).
//
// # Grammar
//
// Predicates:
//
//	flag(E,"F")            not flag(E,"F")   !flag(E,"F")
//	stat(E,"S") OP V       OP is one of > < >= <= == !=
//	location(E)=="L"       location(E)!="L"
//	inventory_has(E,"I") OP N
//
// Effects:
//
//	set_flag(E,"F",true|false)
//	set_stat(E,"S",V)
//	change_stat(E,"S",delta)
//	set_location(E,"L")
//	add_inventory(E,"I",N)
//
// The entity may be bare or quoted. Derived keys are flag.E.F, stat.E.S,
// location.E and inventory.E.I.
//
// Malformed expressions never abort a tick: a predicate evaluates to false,
// an effect does nothing, and a warning is logged.
package rules
