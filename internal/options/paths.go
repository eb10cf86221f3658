package options

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// Environment variables consulted during path resolution.
const (
	EnvServerExecutable = "SYNTHNODE_SERVER_EXECUTABLE"
	EnvPluginPath       = "SC_PLUGIN_PATH"
)

// ErrExecutableNotFound is returned when no engine binary can be located.
var ErrExecutableNotFound = errors.New("failed to locate engine executable")

// bundleDir returns the directory holding a bundled engine, next to the
// running binary. Replaced in tests.
var bundleDir = func() string {
	self, err := os.Executable()
	if err != nil {
		return ""
	}
	return filepath.Join(filepath.Dir(self), "bin")
}

// FindExecutable locates the engine binary. In priority order it tries the
// explicit override, the bundled binary, $SYNTHNODE_SERVER_EXECUTABLE, the
// user's PATH, and finally the OS default installation directories.
func FindExecutable(override string) (string, error) {
	if override != "" {
		if fileExists(override) {
			return override, nil
		}
	}
	if dir := bundleDir(); dir != "" {
		bundled := filepath.Join(dir, "scsynth")
		if fileExists(bundled) {
			return bundled, nil
		}
	}

	name := override
	if name == "" {
		name = os.Getenv(EnvServerExecutable)
	}
	if name == "" {
		name = "scsynth"
	}
	if found, err := exec.LookPath(name); err == nil {
		return found, nil
	}

	stem := executableStem(name)
	for _, candidate := range defaultExecutablePaths(stem) {
		if fileExists(candidate) {
			return candidate, nil
		}
	}
	return "", ErrExecutableNotFound
}

func defaultExecutablePaths(stem string) []string {
	switch runtime.GOOS {
	case "linux":
		return []string{"/usr/bin/" + stem, "/usr/local/bin/" + stem}
	case "darwin":
		return []string{
			"/Applications/SuperCollider.app/Contents/Resources/" + stem,
			"/Applications/SuperCollider/SuperCollider.app/Contents/Resources/" + stem,
		}
	case "windows":
		matches, _ := filepath.Glob(`C:\Program Files\SuperCollider*\` + stem + ".exe")
		return matches
	default:
		return nil
	}
}

// FindPluginsPath locates the UGen plugin directory for an embedded engine:
// $SC_PLUGIN_PATH, the bundled plugin directory, the plugins next to the
// system engine binary, then the OS default plugin directories.
func FindPluginsPath() (string, bool) {
	if env := os.Getenv(EnvPluginPath); env != "" && dirExists(env) {
		return env, true
	}
	if bundled := bundledPluginsPath(); bundled != "" && dirExists(bundled) {
		return bundled, true
	}
	if executable, err := FindExecutable(""); err == nil {
		plugins := filepath.Join(filepath.Dir(executable), "plugins")
		if dirExists(plugins) {
			return plugins, true
		}
	}

	var candidates []string
	switch runtime.GOOS {
	case "darwin":
		candidates = []string{
			"/Applications/SuperCollider.app/Contents/Resources/plugins",
			"/Applications/SuperCollider/SuperCollider.app/Contents/Resources/plugins",
		}
	case "linux":
		candidates = []string{
			"/usr/lib/SuperCollider/plugins",
			"/usr/local/lib/SuperCollider/plugins",
		}
	}
	for _, candidate := range candidates {
		if dirExists(candidate) {
			return candidate, true
		}
	}
	return "", false
}

func bundledPluginsPath() string {
	dir := bundleDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "plugins")
}

// isBundled reports whether executable is the engine shipped next to us.
func isBundled(executable string) bool {
	dir := bundleDir()
	if dir == "" {
		return false
	}
	want, err := filepath.EvalSymlinks(filepath.Join(dir, "scsynth"))
	if err != nil {
		return false
	}
	got, err := filepath.EvalSymlinks(executable)
	if err != nil {
		return false
	}
	return got == want
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
