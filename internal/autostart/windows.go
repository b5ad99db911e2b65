package autostart

import (
	"fmt"
	"os/exec"
)

const taskName = "ModsyncDaemon"

type WindowsAutoStarter struct{}

func taskCommand(execPath string) string {
	return fmt.Sprintf(`"%s" %s`, execPath, daemonArg)
}

func (w *WindowsAutoStarter) Install(execPath string) error {
	cmd := exec.Command("schtasks", "/Create",
		"/TN", taskName,
		"/TR", taskCommand(execPath),
		"/SC", "ONLOGON",
		"/RL", "LIMITED",
		"/F")

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to register task: %w\n%s", err, out)
	}

	return nil
}

func (w *WindowsAutoStarter) Uninstall() error {
	cmd := exec.Command("schtasks", "/Delete", "/TN", taskName, "/F")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to remove task: %w\n%s", err, out)
	}

	return nil
}

func (w *WindowsAutoStarter) IsInstalled() (bool, error) {
	if err := exec.Command("schtasks", "/Query", "/TN", taskName).Run(); err != nil {
		return false, nil
	}

	return true, nil
}
