//go:build openbsd

package defaults

// Sane defaults for the OpenBSD platform. The "default" options
// may be replaced by the running configuration.
func getDefaults() platformDefaultParameters {
	return platformDefaultParameters{
		// Admin
		DefaultAdminListen: "unix:///var/run/rnsd.sock",

		// Configuration (used for rnsctl)
		DefaultConfigFile: "/etc/rnsd.conf",

		// Storage
		DefaultStoragePath: "/var/db/rnsd",
	}
}
