//go:build !linux && !darwin && !windows && !openbsd && !freebsd

package defaults

// Sane defaults for the other platform. The "default" options
// may be replaced by the running configuration.
func getDefaults() platformDefaultParameters {
	return platformDefaultParameters{
		// Admin
		DefaultAdminListen: "tcp://localhost:9001",

		// Configuration (used for rnsctl)
		DefaultConfigFile: "/etc/rnsd.conf",

		// Storage
		DefaultStoragePath: "/var/lib/rnsd",
	}
}
