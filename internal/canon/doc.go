// Package canon produces the deterministic byte form used for every hash in
// ngat: envelope content hashes, ledger record ids and replay fingerprints.
//
// Canonical form:
//   - object keys sorted by UTF-16 code units (RFC 8785 ordering)
//   - no insignificant whitespace, separators are "," and ":"
//   - strings NFC normalized, no HTML escaping
//   - integers without exponent, floats in shortest round-trip form
//   - NaN and infinities are rejected
//
// canon imports nothing internal. Every other package may import it.
package canon
