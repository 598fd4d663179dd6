package observability

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"golang.org/x/term"
)

const (
	colorReset    = "\033[0m"
	colorPurple   = "\033[35m"
	colorNeonCyan = "\033[96m"
	colorNeonMag  = "\033[95m"
)

const banner = `
 _      __             ____
| | /| / /__ ___ __ __/ _/__ ________ ____
| |/ |/ / _ ` + "`" + `/ // / _/ _ ` + "`" + `/ __/ -_) __/
|__/|__/\_,_/\_, /_/ \_,_/_/  \__/_/
            /___/
        >> autonomous browsing agent <<
`

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return w
}

// PrintBanner writes the centred startup banner followed by the listen
// address. Colour is used only when stdout is a terminal.
func PrintBanner(w io.Writer, listen string) {
	color := term.IsTerminal(int(os.Stdout.Fd()))
	width := termWidth()

	for _, l := range strings.Split(banner, "\n") {
		padding := (width - len(l)) / 2
		if padding < 0 {
			padding = 0
		}
		if color {
			fmt.Fprintf(w, "%s%s%s%s\n", strings.Repeat(" ", padding), colorNeonCyan, l, colorReset)
		} else {
			fmt.Fprintf(w, "%s%s\n", strings.Repeat(" ", padding), l)
		}
	}
	if listen != "" {
		fmt.Fprintf(w, "listening on %s\n", listen)
	}
}

// StatusLine renders a one-line health summary for the given snapshot.
func StatusLine(s StatusSnapshot) string {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	memMB := float64(m.Alloc) / 1024 / 1024

	pulse := "HEALTHY"
	pulseColor := colorNeonCyan
	switch delta := time.Since(s.LastHeartbeat); {
	case delta >= 90*time.Second:
		pulse, pulseColor = "OFFLINE", colorNeonMag
	case delta >= 40*time.Second:
		pulse, pulseColor = "LAGGING", colorPurple
	}

	return fmt.Sprintf("%s%-7s%s runs=%d uptime=%s mem=%.1fMB",
		pulseColor, pulse, colorReset, s.ActiveRuns, s.Uptime, memMB)
}
