package ui

import (
	"fmt"
	"os/exec"
	"runtime"
)

// OpenFolder shows dir in the platform file manager.
func OpenFolder(dir string) error {
	name, args := openCommand(runtime.GOOS, dir)
	if err := exec.Command(name, args...).Start(); err != nil {
		return fmt.Errorf("open %s: %w", dir, err)
	}
	return nil
}

func openCommand(goos, dir string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{dir}
	case "windows":
		return "explorer", []string{dir}
	default:
		return "xdg-open", []string{dir}
	}
}
