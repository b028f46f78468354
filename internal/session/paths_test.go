package session

import (
	"strings"
	"testing"
)

func TestPathsAreVaultScoped(t *testing.T) {
	name := "testvault"

	paths := map[string]string{
		"DBPath":   DBPath(name),
		"LockPath": LockPath(name),
		"MediaDir": MediaDir(name),
		"LogPath":  LogPath(name),
	}
	for label, p := range paths {
		if !strings.Contains(p, name) {
			t.Errorf("%s = %q, want it scoped under vault %q", label, p, name)
		}
		if !strings.HasPrefix(p, BaseDir()) {
			t.Errorf("%s = %q, want it under %q", label, p, BaseDir())
		}
	}
}

func TestConfigPathIsGlobal(t *testing.T) {
	p := ConfigPath()
	if strings.Contains(p, "vaults") {
		t.Errorf("ConfigPath() = %q, want it outside the vaults tree", p)
	}
}
