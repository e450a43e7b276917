package cmd

// Exit codes for callspec CLI
const (
	// ExitSuccess indicates all assertions passed
	ExitSuccess = 0

	// ExitTestFailure indicates a failed assertion, a failed request or a terminated run
	ExitTestFailure = 1

	// ExitParseError indicates a plan that cannot be read or is invalid
	ExitParseError = 2

	// ExitConfigError indicates a configuration error
	ExitConfigError = 3

	// ExitNetworkError indicates the callback receiver could not listen
	ExitNetworkError = 4

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)
