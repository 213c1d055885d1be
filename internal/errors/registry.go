package errors

import "sort"

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
}

// Config errors.
const (
	CodeConfigRead       = "E101"
	CodeConfigParse      = "E102"
	CodeConfigFormat     = "E103"
	CodeConfigInvalid    = "E104"
	CodeConfigEnv        = "E105"
	CodeConfigUnknownKey = "E106"
)

// Storage errors.
const (
	CodeDataDir       = "E201"
	CodeStorageOpen   = "E202"
	CodeArtifactWrite = "E203"
	CodeS3Setup       = "E204"
	CodeRedisConnect  = "E205"
)

// Transport errors.
const (
	CodeListen      = "E301"
	CodeDial        = "E302"
	CodeServerSetup = "E303"
)

// CLI errors.
const (
	CodeInvalidFlag = "E401"
	CodeNPYRead     = "E402"
)

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// Config errors (E101-E199)

	CodeConfigRead: {
		Category: CategoryConfig,
		Message:  "Cannot read config file",
		Detail:   "The config file could not be opened. Check the path passed with --config.",
	},
	CodeConfigParse: {
		Category: CategoryConfig,
		Message:  "Invalid config syntax",
		Detail:   "The config file is not valid JSON or TOML.",
	},
	CodeConfigFormat: {
		Category: CategoryConfig,
		Message:  "Unsupported config format",
		Detail:   "Config files must end in .json or .toml.",
	},
	CodeConfigInvalid: {
		Category: CategoryConfig,
		Message:  "Invalid config value",
		Detail:   "A config setting is out of range or inconsistent with another setting.",
	},
	CodeConfigEnv: {
		Category: CategoryConfig,
		Message:  "Invalid environment override",
		Detail:   "A TRIALSTREAM_* environment variable could not be parsed.",
	},
	CodeConfigUnknownKey: {
		Category: CategoryConfig,
		Message:  "Unknown config key",
		Detail:   "The config file sets a key that trialstream does not recognize.",
	},

	// Storage errors (E201-E299)

	CodeDataDir: {
		Category: CategoryStorage,
		Message:  "Cannot create data directory",
		Detail:   "The recorder needs a writable directory for event logs and arrays.",
	},
	CodeStorageOpen: {
		Category: CategoryStorage,
		Message:  "Cannot open record log",
		Detail:   "An append-only JSON lines file could not be opened for writing.",
	},
	CodeArtifactWrite: {
		Category: CategoryStorage,
		Message:  "Cannot store array",
		Detail:   "The array artifact could not be written to the configured backend.",
	},
	CodeS3Setup: {
		Category: CategoryStorage,
		Message:  "Invalid S3 settings",
		Detail:   "The s3 backend needs a bucket and a region.",
	},
	CodeRedisConnect: {
		Category: CategoryStorage,
		Message:  "Cannot reach Redis",
		Detail:   "The record mirror is enabled but the Redis server did not answer PING.",
	},

	// Transport errors (E301-E399)

	CodeListen: {
		Category: CategoryTransport,
		Message:  "Cannot listen on address",
		Detail:   "The WebSocket server could not bind its listen address.",
	},
	CodeDial: {
		Category: CategoryTransport,
		Message:  "Cannot connect to server",
		Detail:   "The streaming client could not open a WebSocket connection.",
	},
	CodeServerSetup: {
		Category: CategoryTransport,
		Message:  "Invalid server settings",
		Detail:   "The WebSocket server rejected its configuration.",
	},

	// CLI errors (E401-E499)

	CodeInvalidFlag: {
		Category: CategoryCLI,
		Message:  "Invalid flag value",
		Detail:   "A command line flag has a value out of range.",
	},
	CodeNPYRead: {
		Category: CategoryCLI,
		Message:  "Cannot read .npy file",
		Detail:   "The file is missing or is not a NumPy array file trialstream can decode.",
	},
}

// GetAllCodes returns all registered error codes in ascending order.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
