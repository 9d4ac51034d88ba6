package spawnmgr

// Version is the current version of the go-spawnmgr library
const Version = "1.0.0"

// VersionInfo contains detailed version information
type VersionInfo struct {
	// Version is the semantic version
	Version string
	// Protocol is the spawn server protocol spoken by the manager
	Protocol string
}

// GetVersion returns the current version information
func GetVersion() VersionInfo {
	return VersionInfo{
		Version:  Version,
		Protocol: SpawnCommand + "/1",
	}
}
