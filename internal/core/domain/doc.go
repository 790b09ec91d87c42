// Package domain defines the core business entities for Cartloop.
//
// This package is part of the hexagonal architecture's innermost layer.
// It defines the fundamental types:
//
//   - Document: A shopping-list document (list or item) with its revision token
//   - SaveRequest: Tagged union of the writes the model accepts
//   - Settings: The local-only user settings singleton
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. All other packages depend on
// domain, never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library and the id generator only
//   - Cannot Import: Any internal/ package, any adapter dependency
package domain
