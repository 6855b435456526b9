package runtime

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

func Getenv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

// LoadDotEnv loads variables from the given files (default ".env") without
// overriding anything already set in the process environment. Missing files are
// not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}
