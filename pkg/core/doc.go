// Package core defines the shared language of the leapsheets system.
//
// This package contains:
//   - Value types passed between pipeline stages (ResultSet, UploadResult)
//   - Service interfaces (Store)
//   - Configuration types (AdapterConfig, TargetConfig)
//
// The Golden Rule: pkg/core imports ONLY the standard library.
// All other packages depend on core, not the reverse.
package core
