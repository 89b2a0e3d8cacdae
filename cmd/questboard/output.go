package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

// rankColor tints a rank tier so the hard quests stand out in listings.
func rankColor(rank string) string {
	switch rank {
	case "Warlord":
		return colorize(colorRed, rank)
	case "Knight":
		return colorize(colorYellow, rank)
	case "Adventurer":
		return colorize(colorCyan, rank)
	default:
		return rank
	}
}

type questRow struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Source     string   `json:"source"`
	Reward     string   `json:"reward"`
	Difficulty float64  `json:"difficulty"`
	Rank       string   `json:"rank"`
	Gear       []string `json:"gear_required"`
	URL        string   `json:"url"`
	State      string   `json:"approval_state"`
}

func printQuests(w io.Writer, quests []questRow) {
	if len(quests) == 0 {
		fmt.Fprintln(w, "No quests found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDIFFICULTY\tRANK\tREWARD\tSOURCE\tTITLE")
	for _, q := range quests {
		fmt.Fprintf(tw, "%s\t%.2f\t%s\t%s\t%s\t%s\n",
			q.ID, q.Difficulty, rankColor(q.Rank), q.Reward, q.Source, truncate(q.Title, 60))
	}
	tw.Flush()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
