package main

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"gemcraft.ai/internal/gems/ability"
	"gemcraft.ai/internal/gems/engine"
	persistlog "gemcraft.ai/internal/persistence/log"
)

type journalSummary struct {
	Total    int
	Accepted int
	ByReason map[string]int
}

// journalCmd prints activation journal entries, oldest first.
func journalCmd(out io.Writer, args []string) error {
	fs := flag.NewFlagSet("journal", flag.ContinueOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	actor := fs.String("actor", "", "actor id filter")
	gem := fs.String("gem", "", "gem filter")
	since := fs.String("since", "", "RFC3339 lower bound (inclusive)")
	limit := fs.Int("limit", 0, "print at most this many entries (0: all)")
	summary := fs.Bool("summary", false, "print counts instead of entries")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var from time.Time
	if *since != "" {
		t, err := time.Parse(time.RFC3339, *since)
		if err != nil {
			return fmt.Errorf("bad -since: %w", err)
		}
		from = t
	}

	files, err := persistlog.Files(persistlog.ActivationDir(*dataDir), "activations")
	if err != nil {
		return err
	}
	sum := journalSummary{ByReason: map[string]int{}}
	printed := 0
	for _, path := range files {
		err := persistlog.ReadJSONL(path, func(e engine.ActivationEntry) error {
			if *actor != "" && e.Actor != strings.ToLower(*actor) {
				return nil
			}
			if *gem != "" && e.Gem != *gem {
				return nil
			}
			if !from.IsZero() && e.Time.Before(from) {
				return nil
			}
			sum.Total++
			if e.Accepted {
				sum.Accepted++
			} else {
				sum.ByReason[e.Reason]++
			}
			if *summary || (*limit > 0 && printed >= *limit) {
				return nil
			}
			printed++
			fmt.Fprintln(out, formatEntry(e))
			return nil
		})
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	if *summary {
		fmt.Fprintf(out, "total=%d accepted=%d", sum.Total, sum.Accepted)
		for _, r := range []ability.Reason{ability.ReasonCooldown, ability.ReasonDisabled, ability.ReasonNoGem, ability.ReasonInvalidTarget, ability.ReasonInvalidConfig} {
			if n := sum.ByReason[string(r)]; n > 0 {
				fmt.Fprintf(out, " %s=%d", r, n)
			}
		}
		fmt.Fprintln(out)
	}
	return nil
}

func formatEntry(e engine.ActivationEntry) string {
	status := "accepted"
	if !e.Accepted {
		status = "rejected:" + e.Reason
		if e.Remaining > 0 {
			status += fmt.Sprintf("(%ds)", e.Remaining)
		}
	}
	gem := e.Gem
	if gem == "" {
		gem = "-"
	}
	return fmt.Sprintf("%s %s %s %s", e.Time.UTC().Format(time.RFC3339), e.Actor, gem, status)
}
