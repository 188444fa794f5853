package utils

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/juju/errors"
)

// LoadEnv loads the given .env files, or ".env" when none are named, into
// the process environment. Missing files are not an error; malformed ones
// are. Variables already set are left alone.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return errors.Annotatef(err, "loading %s", f)
		}
	}
	return nil
}

// ExecutableDir returns the directory of the running binary, falling back
// to the working directory when it cannot be determined.
func ExecutableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}

// DefaultPath names a file next to the running binary.
func DefaultPath(name string) string {
	return filepath.Join(ExecutableDir(), name)
}
