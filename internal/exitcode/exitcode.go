package exitcode

const (
	Success        = 0
	UsageError     = 1
	ConfigError    = 2
	StoreError     = 3
	RunError       = 4
	PartialSuccess = 5 // Some records quarantined or claims failed
	Cancelled      = 6
)
