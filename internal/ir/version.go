package ir

const (
	// FormatVersion is stamped on every stored result and snapshot row.
	FormatVersion = "1"

	// EngineVersion is reported by `weft --version`.
	EngineVersion = "0.1.0"
)
