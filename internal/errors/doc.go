// Package errors provides coded, actionable errors for the trialstream
// command line.
//
// Every error carries a code that maps to a registered template with a
// short message and a longer explanation. Codes are grouped by subsystem:
//   - E1xx: config loading and validation
//   - E2xx: storage (data directory, JSON lines logs, S3, Redis)
//   - E3xx: transport (listen and dial)
//   - E4xx: command line usage
//
// # Usage
//
//	err := errors.New(errors.CodeConfigInvalid).
//	    WithLocation("trialstream.toml").
//	    WithKey("server.heartbeat_interval").
//	    WithSuggestion("Use a heartbeat shorter than server.read_timeout")
//
//	errors.PrintError(err)
//	// ERROR E104: Invalid config value
//	//
//	//   trialstream.toml (server.heartbeat_interval)
//	//
//	//   A config setting is out of range or inconsistent with another setting.
//	//
//	//   Hint: Use a heartbeat shorter than server.read_timeout
package errors
