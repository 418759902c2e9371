//go:build windows

package defaults

// Sane defaults for the Windows platform. The "default" options
// may be replaced by the running configuration.
func getDefaults() platformDefaultParameters {
	return platformDefaultParameters{
		// Admin
		DefaultAdminListen: "tcp://localhost:9001",

		// Configuration (used for rnsctl)
		DefaultConfigFile: "C:\\Program Files\\rnsd\\rnsd.conf",

		// Storage
		DefaultStoragePath: "C:\\ProgramData\\rnsd",
	}
}
