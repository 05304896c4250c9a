package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

type LogStats struct {
	Lines            int
	Errors           int
	Warnings         int
	Transitions      map[string]int
	NeedsReview      int
	PollsExhausted   int
	PollFailures     int
	WebhooksRejected int
	SweepRuns        int
	SweepSynced      int
	SweepErrors      int
	EffectFailures   int
	ErrorPatterns    map[string]int
}

// fieldRegex matches logrus text formatter key=value pairs
var fieldRegex = regexp.MustCompile(`(\w+)=("(?:[^"\\]|\\.)*"|\S+)`)

// numberRegex replaces ids so that similar errors group together
var numberRegex = regexp.MustCompile(`\b(order_\w+|pay_\w+|\d+)\b`)

func main() {
	// Log file for the given date (default today)
	day := time.Now().Format("2006-01-02")
	if len(os.Args) > 1 {
		day = os.Args[1]
	}
	logDir := "./logs"
	if dir := os.Getenv("LOG_DIR"); dir != "" {
		logDir = dir
	}

	stats := &LogStats{
		Transitions:   make(map[string]int),
		ErrorPatterns: make(map[string]int),
	}

	analyzeLog(filepath.Join(logDir, fmt.Sprintf("paysync-%s.log", day)), stats)

	printReport(day, stats)
}

func analyzeLog(logFile string, stats *LogStats) {
	file, err := os.Open(logFile)
	if err != nil {
		fmt.Printf("Error opening log file %s: %v\n", logFile, err)
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		stats.Lines++
		fields := parseFields(scanner.Text())
		msg := fields["msg"]

		switch fields["level"] {
		case "error":
			stats.Errors++
			extractErrorPattern(msg, stats)
		case "warning":
			stats.Warnings++
		}

		switch {
		case strings.HasPrefix(msg, "Payment reconciled"):
			stats.Transitions[fields["from"]+" -> "+fields["to"]]++
			if strings.Contains(msg, "needs review") {
				stats.NeedsReview++
			}
		case strings.Contains(msg, "flagged for review"):
			stats.NeedsReview++
		case strings.Contains(msg, "still pending after"):
			stats.PollsExhausted++
		case strings.HasPrefix(msg, "Poll ") && strings.Contains(msg, " failed: "):
			stats.PollFailures++
		case strings.HasPrefix(msg, "Webhook rejected"):
			stats.WebhooksRejected++
		case strings.HasPrefix(msg, "Effect "):
			stats.EffectFailures++
		case msg == "Payment sweep finished":
			stats.SweepRuns++
			stats.SweepSynced += atoi(fields["synced"])
			stats.SweepErrors += atoi(fields["errors"])
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Printf("Error reading log file %s: %v\n", logFile, err)
	}
}

func parseFields(line string) map[string]string {
	fields := make(map[string]string)
	for _, m := range fieldRegex.FindAllStringSubmatch(line, -1) {
		value := m[2]
		if unquoted, err := strconv.Unquote(value); err == nil {
			value = unquoted
		}
		fields[m[1]] = value
	}
	return fields
}

func extractErrorPattern(msg string, stats *LogStats) {
	// Keep the message up to the wrapped cause
	if i := strings.Index(msg, ":"); i > 0 {
		msg = msg[:i]
	}
	stats.ErrorPatterns[numberRegex.ReplaceAllString(strings.TrimSpace(msg), "#")]++
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func printReport(day string, stats *LogStats) {
	fmt.Println("\n=== Reconciliation Log Report ===")
	fmt.Println("Log date:", day)
	fmt.Println("Generated:", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Printf("Lines read: %d (errors %d, warnings %d)\n", stats.Lines, stats.Errors, stats.Warnings)

	fmt.Println("\n1. Payment Transitions:")
	printTop(stats.Transitions, 10)
	fmt.Printf("   Needing review: %d\n", stats.NeedsReview)

	fmt.Println("\n2. Polling:")
	fmt.Printf("   Exhausted (still pending): %d\n", stats.PollsExhausted)
	fmt.Printf("   Failed: %d\n", stats.PollFailures)

	fmt.Println("\n3. Webhooks:")
	fmt.Printf("   Rejected: %d\n", stats.WebhooksRejected)

	fmt.Println("\n4. Sweeps:")
	fmt.Printf("   Runs: %d, payments synced: %d, item errors: %d\n", stats.SweepRuns, stats.SweepSynced, stats.SweepErrors)

	fmt.Println("\n5. Post-commit effect failures:", stats.EffectFailures)

	fmt.Println("\n6. Most Common Errors:")
	printTop(stats.ErrorPatterns, 5)
}

func printTop(counts map[string]int, limit int) {
	type entry struct {
		key   string
		count int
	}
	var entries []entry
	for k, v := range counts {
		entries = append(entries, entry{k, v})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count == entries[j].count {
			return entries[i].key < entries[j].key
		}
		return entries[i].count > entries[j].count
	})

	if len(entries) == 0 {
		fmt.Println("   (none)")
		return
	}
	for i := 0; i < limit && i < len(entries); i++ {
		fmt.Printf("   %s: %d\n", entries[i].key, entries[i].count)
	}
}
