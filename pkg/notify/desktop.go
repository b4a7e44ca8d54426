package notify

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// commandRunner executes an external notifier; replaced in tests
type commandRunner func(ctx context.Context, name string, args ...string) error

func runCommand(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// DesktopChannel shows the summary as a local desktop notification using
// notify-send on Linux, osascript on macOS and PowerShell on Windows.
type DesktopChannel struct {
	goos string
	run  commandRunner
}

// NewDesktopChannel creates a desktop channel for the current platform
func NewDesktopChannel() *DesktopChannel {
	return &DesktopChannel{goos: runtime.GOOS, run: runCommand}
}

// Supported reports whether the platform has a known notifier
func (d *DesktopChannel) Supported() bool {
	switch d.goos {
	case "linux", "darwin", "windows":
		return true
	}
	return false
}

func (d *DesktopChannel) Name() string { return "desktop" }

func (d *DesktopChannel) Send(ctx context.Context, msg Message) error {
	title := msg.Title
	if title == "" {
		title = "mediakeeper"
	}
	name, args, err := desktopCommand(d.goos, title, msg.Body)
	if err != nil {
		return err
	}
	return d.run(ctx, name, args...)
}

func desktopCommand(goos, title, body string) (string, []string, error) {
	switch goos {
	case "linux":
		return "notify-send", []string{title, body}, nil
	case "darwin":
		script := fmt.Sprintf(`display notification %s with title %s`, appleScriptQuote(body), appleScriptQuote(title))
		return "osascript", []string{"-e", script}, nil
	case "windows":
		script := fmt.Sprintf(`
		[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null
		$template = [Windows.UI.Notifications.ToastNotificationManager]::GetTemplateContent([Windows.UI.Notifications.ToastTemplateType]::ToastText02)
		$texts = $template.GetElementsByTagName("text")
		$texts.Item(0).AppendChild($template.CreateTextNode('%s')) | Out-Null
		$texts.Item(1).AppendChild($template.CreateTextNode('%s')) | Out-Null
		$toast = [Windows.UI.Notifications.ToastNotification]::new($template)
		[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier("mediakeeper").Show($toast)
		`, powerShellQuote(title), powerShellQuote(body))
		return "powershell", []string{"-NoProfile", "-NonInteractive", "-Command", script}, nil
	default:
		return "", nil, fmt.Errorf("desktop notifications are not supported on %s", goos)
	}
}

func appleScriptQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func powerShellQuote(s string) string {
	return strings.ReplaceAll(s, `'`, `''`)
}
