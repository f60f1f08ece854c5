// Package testutil holds helpers shared by package tests.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
)

// LoadJSON reads and unmarshals a JSON fixture. Relative paths are resolved
// against the directory of the calling test file, so fixtures load the same
// regardless of the working directory. If target is provided, it attempts to
// unmarshal the JSON into the target as well.
func LoadJSON(filename string, target ...any) (map[string]any, error) {
	data, err := ReadFixture(filename, 2)
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	if len(target) > 0 && target[0] != nil {
		if err := json.Unmarshal(data, target[0]); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// ReadFixture reads filename relative to the file skip frames up the stack.
func ReadFixture(filename string, skip int) ([]byte, error) {
	if !filepath.IsAbs(filename) {
		_, callerFile, _, ok := runtime.Caller(skip)
		if ok {
			filename = filepath.Join(filepath.Dir(callerFile), filename)
		}
	}
	return os.ReadFile(filename)
}
