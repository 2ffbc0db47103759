package config

// GetDefaultManifest returns the manifest appctl starts from before any
// user or project file is layered on top. It carries tuning defaults only;
// components always come from the loaded files.
func GetDefaultManifest() Manifest {
	return Manifest{
		Settings: Settings{
			LogLevel: "info",
		},
	}
}
