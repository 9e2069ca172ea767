// Package ir provides the runtime type and value model shared by every
// dynq package.
//
// Two things live here:
//   - TypeDesc, the element-type descriptor carried by every deferred
//     query handle. A descriptor is immutable once a handle refers to it.
//   - IRValue, a sealed tagged union used as the "dynamic view" of query
//     results. Callers that do not know the element type at compile time
//     recover the concrete shape with a type switch.
//
// This package imports nothing internal. All other internal packages may
// import ir.
//
// Key design constraints:
//   - NO float types anywhere - use int64 for numbers
//   - Object keys are ordered by RFC 8785 rules whenever they are serialized
//   - Canonical JSON (MarshalCanonical) is the only encoding used for
//     fingerprints and golden files
package ir
