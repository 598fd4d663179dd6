package browsertest

import (
	"os/exec"
	"testing"
)

var chromeNames = []string{
	"headless_shell",
	"headless-shell",
	"chromium",
	"chromium-browser",
	"google-chrome",
	"google-chrome-stable",
	"chrome",
}

// RequireChrome skips t unless a Chrome binary chromedp can start is on PATH,
// or when running with -short.
func RequireChrome(t testing.TB) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	for _, name := range chromeNames {
		if _, err := exec.LookPath(name); err == nil {
			return
		}
	}
	t.Skip("no Chrome binary found on PATH")
}
