// Package version provides version information for the oracle.
package version

// Version is the current version of the oracle.
const Version = "0.1.0"

// AgentString returns the full agent string with versioning.
// Format: ssuperusd-oracle/v{version}
func AgentString() string {
	return "ssuperusd-oracle/v" + Version
}
