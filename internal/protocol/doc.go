// Package protocol implements the NGAT-RT envelope: the versioned,
// hash-verified wrapper around snapshots, commands and deltas exchanged
// with external consumers.
//
// Wire shape:
//
//	{"protocol":"NGAT-RT","version":"1.0","tick":12,"epoch":"e1",
//	 "type":"snapshot","hash":"sha256:<hex>","payload":{...}}
//
// The hash is SHA-256 over the canonical JSON bytes of the payload (sorted
// keys, no insignificant whitespace, shortest number form). Snapshots and
// deltas carry it; commands instead carry a fixed set of mandatory keys.
// A receiver accepts any minor version of its own major version. Breaking
// payload changes require a major version bump.
package protocol
