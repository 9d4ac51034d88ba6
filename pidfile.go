package spawnmgr

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/renameio/v2"
)

// writePIDFile atomically replaces path with pid
func writePIDFile(path string, pid int) error {
	if err := renameio.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), PIDFileMode); err != nil {
		return fmt.Errorf("writing pid file: %w", err)
	}
	return nil
}

// removePIDFile removes path, ignoring a file that is already gone
func removePIDFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing pid file: %w", err)
	}
	return nil
}

// ReadPIDFile returns the spawn server pid recorded at path
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("%w in %s: %q", ErrInvalidPID, path, strings.TrimSpace(string(data)))
	}
	return pid, nil
}
