package session

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.tgvault.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tgvault")
}

// Dir returns the vault-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "vaults", name)
}

// LockPath returns the lock file path for a vault.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// DBPath returns the vault database path.
func DBPath(name string) string {
	return filepath.Join(Dir(name), "vault.db")
}

// MediaDir returns the directory downloaded attachments are written to.
func MediaDir(name string) string {
	return filepath.Join(Dir(name), "media")
}

// LogDir returns the log directory for a vault.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "tgvaultd.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the vault directory tree with proper permissions.
func EnsureDir(name string) error {
	dirs := []string{
		Dir(name),
		MediaDir(name),
		LogDir(name),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
