package config

import (
	"bufio"
	"os"
	"strings"
)

// LoadEnvFile reads KEY=value pairs from a .env file into the process
// environment. Variables already set in the environment win, so a deployed
// origination service is never overridden by a checked-in dev file.
// Blank lines and lines starting with # are skipped.
// Side effects: writes to the process environment via os.Setenv.
func LoadEnvFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}

	return scanner.Err()
}

// LoadEnvFileIfExists loads a .env file when present and is a no-op otherwise,
// so local runs pick up a dev file without requiring one in production.
func LoadEnvFileIfExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return LoadEnvFile(path)
}
