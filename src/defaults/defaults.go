package defaults

var defaultConfig = ""      // LDFLAGS='-X github.com/yggdrasil-network/rnsmesh/src/defaults.defaultConfig=/path/to/config'
var defaultAdminListen = "" // LDFLAGS='-X github.com/yggdrasil-network/rnsmesh/src/defaults.defaultAdminListen=unix://path/to/sock'

// Defines which parameters are expected by default for configuration on a
// specific platform. These values are populated in the relevant defaults_*.go
// for the platform being targeted. They must be set.
type platformDefaultParameters struct {
	// Admin socket
	DefaultAdminListen string

	// Configuration (used for rnsctl)
	DefaultConfigFile string

	// Where identities, known destinations and path tables are kept
	DefaultStoragePath string
}

func GetDefaults() platformDefaultParameters {
	defaults := getDefaults()
	if defaultConfig != "" {
		defaults.DefaultConfigFile = defaultConfig
	}
	if defaultAdminListen != "" {
		defaults.DefaultAdminListen = defaultAdminListen
	}
	return defaults
}
