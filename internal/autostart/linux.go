package autostart

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"
)

const unitTemplate = `[Unit]
Description=modsync project sync daemon
After=network-online.target
Wants=network-online.target

[Service]
ExecStart="{{.ExecPath}}" {{.Arg}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`

var unit = template.Must(template.New("unit").Parse(unitTemplate))

type LinuxAutoStarter struct {
	// dir overrides ~/.config/systemd/user.
	dir string
}

func (l *LinuxAutoStarter) unitPath() (string, error) {
	dir := l.dir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".config", "systemd", "user")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	return filepath.Join(dir, serviceName+".service"), nil
}

func writeUnit(w io.Writer, execPath string) error {
	return unit.Execute(w, map[string]string{"ExecPath": execPath, "Arg": daemonArg})
}

func (l *LinuxAutoStarter) Install(execPath string) error {
	path, err := l.unitPath()
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create unit file: %w", err)
	}

	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	if err := writeUnit(f, execPath); err != nil {
		return fmt.Errorf("failed to write unit file: %w", err)
	}

	return systemctl(
		[]string{"daemon-reload"},
		[]string{"enable", "--now", serviceName + ".service"},
	)
}

func (l *LinuxAutoStarter) Uninstall() error {
	_ = systemctl([]string{"disable", "--now", serviceName + ".service"})

	path, err := l.unitPath()
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	return systemctl([]string{"daemon-reload"})
}

func (l *LinuxAutoStarter) IsInstalled() (bool, error) {
	path, err := l.unitPath()
	if err != nil {
		return false, err
	}

	_, err = os.Stat(path)
	return err == nil, nil
}

func systemctl(calls ...[]string) error {
	for _, args := range calls {
		cmd := exec.Command("systemctl", append([]string{"--user"}, args...)...)
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("failed to run systemctl %v: %w\n%s", args, err, out)
		}
	}

	return nil
}
