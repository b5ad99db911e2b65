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

const agentLabel = "io.modsync.daemon"

const plistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>{{.Label}}</string>
	<key>ProgramArguments</key>
	<array>
		<string>{{.ExecPath}}</string>
		<string>{{.Arg}}</string>
	</array>
	<key>RunAtLoad</key>
	<true/>
	<key>KeepAlive</key>
	<dict>
		<key>SuccessfulExit</key>
		<false/>
	</dict>
</dict>
</plist>
`

var plist = template.Must(template.New("plist").Parse(plistTemplate))

type DarwinAutoStarter struct {
	// dir overrides ~/Library/LaunchAgents.
	dir string
}

func (d *DarwinAutoStarter) plistPath() (string, error) {
	dir := d.dir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, "Library", "LaunchAgents")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	return filepath.Join(dir, agentLabel+".plist"), nil
}

func writePlist(w io.Writer, execPath string) error {
	return plist.Execute(w, map[string]string{"Label": agentLabel, "ExecPath": execPath, "Arg": daemonArg})
}

func (d *DarwinAutoStarter) Install(execPath string) error {
	path, err := d.plistPath()
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create launch agent: %w", err)
	}

	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	if err := writePlist(f, execPath); err != nil {
		return fmt.Errorf("failed to write launch agent: %w", err)
	}

	if out, err := exec.Command("launchctl", "load", "-w", path).CombinedOutput(); err != nil {
		return fmt.Errorf("failed to load launch agent: %w\n%s", err, out)
	}

	return nil
}

func (d *DarwinAutoStarter) Uninstall() error {
	path, err := d.plistPath()
	if err != nil {
		return err
	}

	_ = exec.Command("launchctl", "unload", "-w", path).Run()

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	return nil
}

func (d *DarwinAutoStarter) IsInstalled() (bool, error) {
	path, err := d.plistPath()
	if err != nil {
		return false, err
	}

	_, err = os.Stat(path)
	return err == nil, nil
}
