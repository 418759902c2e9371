//go:build linux

package defaults

// Sane defaults for the Linux platform. The "default" options
// may be replaced by the running configuration.
func getDefaults() platformDefaultParameters {
	return platformDefaultParameters{
		// Admin
		DefaultAdminListen: "unix:///var/run/rnsd.sock",

		// Configuration (used for rnsctl)
		DefaultConfigFile: "/etc/rnsd.conf",

		// Storage
		DefaultStoragePath: "/var/lib/rnsd",
	}
}
