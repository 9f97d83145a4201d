// Package native implements haru.Transport on top of the vendor-supplied
// closed-source driver library, loaded at runtime. All device discovery,
// connection and acquisition logic lives inside that binary; this package
// only locates it, binds the call signatures and forwards calls.
package native

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pitaeeg/sensor-server/pkg/haru"
)

// libraryNames returns the platform file names of the vendor library, the
// release build first and the "d"-suffixed debug build second.
func libraryNames() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{"pitaeegsensor.dll", "pitaeegsensord.dll"}
	case "darwin":
		return []string{"libpitaeegsensor.dylib", "libpitaeegsensord.dylib"}
	default:
		return []string{"libpitaeegsensor.so", "libpitaeegsensord.so"}
	}
}

// platformLibsDir returns the subdirectory of libs/ searched for the
// current platform.
func platformLibsDir() string {
	switch runtime.GOOS {
	case "windows":
		return "windows"
	case "darwin":
		return filepath.Join("macos", runtime.GOARCH)
	default:
		return "linux"
	}
}

// withDebugSuffix derives the debug build name from an explicit library
// path: foo.so -> food.so.
func withDebugSuffix(path string) string {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	if ext == "" || strings.HasSuffix(stem, "d") {
		return ""
	}
	return stem + "d" + ext
}

// candidatePaths lists the locations tried for the vendor library, in
// order. An explicit path wins; a directory is searched for the known
// names. Otherwise: libs/<platform>/ next to the executable, the
// executable directory itself, then the working directory.
func candidatePaths(explicit string) []string {
	names := libraryNames()
	var cand []string

	if explicit != "" {
		if fi, err := os.Stat(explicit); err == nil && fi.IsDir() {
			for _, n := range names {
				cand = append(cand, filepath.Join(explicit, n))
			}
			return cand
		}
		cand = append(cand, explicit)
		if d := withDebugSuffix(explicit); d != "" {
			cand = append(cand, d)
		}
		return cand
	}

	var dirs []string
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		dirs = append(dirs, filepath.Join(exeDir, "libs", platformLibsDir()))
		if runtime.GOOS == "darwin" {
			// Also try libs/macos without the machine subdirectory.
			dirs = append(dirs, filepath.Join(exeDir, "libs", "macos"))
		}
		dirs = append(dirs, exeDir)
	}
	dirs = append(dirs, ".")

	seen := make(map[string]bool)
	for _, dir := range dirs {
		if seen[dir] {
			continue
		}
		seen[dir] = true
		for _, n := range names {
			cand = append(cand, filepath.Join(dir, n))
		}
	}
	return cand
}

// Load locates and loads the vendor library and binds its entry points.
// libraryPath may be empty (default search), a file, or a directory. It
// fails with haru.ErrLibraryNotFound when no candidate can be loaded.
func Load(libraryPath string) (haru.Transport, error) {
	cand := candidatePaths(libraryPath)

	var lastErr error
	for _, path := range cand {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		t, err := load(path)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	return nil, haru.NewSensorError(haru.ErrLibraryNotFound,
		fmt.Sprintf("Native lib not found. Tried: %v. Last: %v", cand, lastErr))
}
