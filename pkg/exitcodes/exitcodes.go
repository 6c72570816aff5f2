package exitcodes

// Exit codes for the vigil worker. Graceful termination is a success, not an error.
const (
	Success       = 0 // Unit of work completed
	Terminated    = 0 // Stopped by a termination request
	Crash         = 1 // Crash toggle enabled, or an unrecoverable runtime error
	InvalidConfig = 2 // Configuration could not be loaded or validated
)

// Name returns a human-readable name for an exit code.
// Success and Terminated share a value, so both read as "success".
func Name(code int) string {
	switch code {
	case Success:
		return "success"
	case Crash:
		return "crash"
	case InvalidConfig:
		return "invalid-config"
	default:
		return "unknown"
	}
}

// Personal.AI order the ending
