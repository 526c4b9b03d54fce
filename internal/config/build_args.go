package config

import "fmt"

// ModuleName is the name of the service, used in logs and the CLI.
const ModuleName = "vault-relayer"

// These variables are set at build time via -ldflags.
var (
	Commit    = "unknown"
	BuildDate = "unknown"
)

// GetFormattedBuildArgs returns "<commit> (<build date>)".
func GetFormattedBuildArgs() string {
	return fmt.Sprintf("%v (%v)", Commit, BuildDate)
}
