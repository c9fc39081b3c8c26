package infra

import (
	"fmt"
	"io"
	"strings"
)

// ANSI Color Codes
const (
	ColorReset  = "\033[0m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorCyan   = "\033[36m"
)

// PrintBanner writes the startup banner for role ("client" or "server").
func PrintBanner(w io.Writer, cfg *Config, role string) {
	role = strings.ToUpper(role)

	color := ColorCyan
	target := cfg.Feed.Addr
	detail := fmt.Sprintf("%s, %s records", cfg.Feed.Transport, countLabel(cfg.Feed.Records))
	if role == "SERVER" {
		color = ColorGreen
		target = cfg.Server.Addr
		detail = fmt.Sprintf("%s records/conn, %s", countLabel(cfg.Server.Records), rateLabel(cfg.Server.RatePerSec))
		if cfg.Server.ReplayRun != "" {
			color = ColorYellow
			detail = "replay " + cfg.Server.ReplayRun
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s###########################################################%s\n", color, ColorReset)
	fmt.Fprintf(w, "%s#   %-53s #%s\n", color, "tickfeed "+strings.ToLower(role), ColorReset)
	fmt.Fprintf(w, "%s#   ADDR:    %-44s #%s\n", color, target, ColorReset)
	fmt.Fprintf(w, "%s#   MODE:    %-44s #%s\n", color, detail, ColorReset)
	fmt.Fprintf(w, "%s#   VERSION: %-44s #%s\n", color, cfg.App.Version, ColorReset)
	fmt.Fprintf(w, "%s###########################################################%s\n", color, ColorReset)
	fmt.Fprintln(w)
}

func countLabel(n int) string {
	if n == 0 {
		return "unbounded"
	}
	return fmt.Sprintf("%d", n)
}

func rateLabel(perSec float64) string {
	if perSec == 0 {
		return "unpaced"
	}
	return fmt.Sprintf("%.0f rec/s", perSec)
}
