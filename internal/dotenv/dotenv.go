package dotenv

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/joho/godotenv"
)

// LoadFiles loads KEY=VALUE pairs from each dotenv file into the process
// environment. Missing files are skipped and variables already set, including
// ones set by an earlier file, are preserved. It returns the keys it set.
func LoadFiles(paths ...string) ([]string, error) {
	var loaded []string
	for _, path := range paths {
		vars, err := godotenv.Read(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return loaded, fmt.Errorf("read env file %q: %w", path, err)
		}

		keys := make([]string, 0, len(vars))
		for key := range vars {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			if _, exists := os.LookupEnv(key); exists {
				continue
			}
			if err := os.Setenv(key, vars[key]); err != nil {
				return loaded, fmt.Errorf("set env %q from %q: %w", key, path, err)
			}
			loaded = append(loaded, key)
		}
	}
	return loaded, nil
}
