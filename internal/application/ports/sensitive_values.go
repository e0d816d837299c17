package ports

// Scrubber removes sensitive values from text before it is persisted or
// printed.
type Scrubber interface {
	// Track registers a literal value to be scrubbed wherever it appears.
	Track(value string)

	// ScrubString returns input with sensitive values replaced.
	ScrubString(input string) string
}
