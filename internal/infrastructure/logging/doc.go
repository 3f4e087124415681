// Package logging provides structured logging for Alnor Core.
//
// It wraps log/slog with configuration-driven level, format, and output
// selection, plus default service/version fields on every record. Domain
// packages do not depend on this package directly; they accept a minimal
// Logger interface which *logging.Logger satisfies.
package logging
