package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fatih/color"

	"github.com/e7canasta/filtershow/modules/notifybus"
)

var (
	headerColor = color.New(color.Bold).SprintfFunc()
	okColor     = color.New(color.FgGreen).SprintfFunc()
	warnColor   = color.New(color.FgYellow).SprintfFunc()
	errColor    = color.New(color.FgRed).SprintfFunc()
)

// reportStats periodically prints statistics from all components
func reportStats(ctx context.Context, interval time.Duration, d *daemon) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			printLiveStats(time.Since(startTime), d)
		}
	}
}

// printLiveStats prints current statistics from all components
func printLiveStats(uptime time.Duration, d *daemon) {
	ps := d.pipeline.Stats()
	preview := d.pipeline.Preview().Stats()
	saver := d.saver.Status()
	bus := d.bus.Stats()

	fmt.Println()
	fmt.Println("╭─────────────────────────────────────────────────────────────────╮")
	fmt.Printf("│ %s (Uptime: %v)\n", headerColor("Service Statistics"), uptime.Round(time.Second))
	fmt.Println("├─────────────────────────────────────────────────────────────────┤")

	// Preview render path
	fmt.Println("│ Preview Pipeline:")
	fmt.Printf("│   Renders:            %6d (%s)\n", ps.Renders, countColor(ps.RenderErrors, "errors"))
	fmt.Printf("│   Requests Replaced:  %6d\n", ps.RequestDrops)
	fmt.Printf("│   Frames Produced:    %6d\n", ps.Buffer.Produced)
	fmt.Printf("│   Frames Displayed:   %6d\n", ps.Displayed)
	fmt.Printf("│   Frames Superseded:  %6d (%.1f%%)\n", ps.Buffer.Dropped, percent(ps.Buffer.Dropped, ps.Buffer.Produced))
	fmt.Printf("│   Pool Hits/Misses:   %6d / %d (%d held)\n", ps.Pool.Hits, ps.Pool.Misses, ps.Pool.Held)

	// Viewers
	fmt.Println("│")
	fmt.Println("│ Preview Viewers:")
	fmt.Printf("│   Inbox Drops:        %6d\n", preview.InboxDrops)
	fmt.Printf("│   Active Viewers:     %6d\n", len(preview.Viewers))
	var idle []string
	for id, v := range preview.Viewers {
		if v.IsIdle {
			idle = append(idle, id)
		}
	}
	if len(idle) > 0 {
		sort.Strings(idle)
		fmt.Printf("│   Idle Viewers:       %s\n", warnColor("%v", idle))
	}
	if len(preview.Viewers) >= 8 {
		fmt.Printf("│   Distribution:       Batched (threshold=8)\n")
	} else {
		fmt.Printf("│   Distribution:       Sequential (<%d viewers)\n", 8)
	}

	// Save service
	fmt.Println("│")
	fmt.Println("│ Save Service:")
	active := "idle"
	if saver.Active != "" {
		active = saver.Active
	}
	fmt.Printf("│   Active:             %s\n", active)
	fmt.Printf("│   Queued:             %6d\n", saver.Queued)
	fmt.Printf("│   Saved:              %6s\n", okColor("%d", saver.Saved))
	fmt.Printf("│   Failed:             %6s\n", countColor(saver.Failed, ""))
	fmt.Printf("│   Interrupted:        %6s\n", warnColor("%d", saver.Interrupted))

	// Notification sinks
	fmt.Println("│")
	fmt.Println("│ Notification Sinks:")
	fmt.Printf("│   Events Published:   %6d\n", bus.TotalPublished)
	ids := make([]string, 0, len(bus.Subscribers))
	for id := range bus.Subscribers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		s := bus.Subscribers[id]
		fmt.Printf("│   %-18s  sent=%d dropped=%d (%.1f%%) timed_out=%d\n",
			id, s.Sent, s.Dropped, notifybus.DropRate(bus, id)*100, s.TimedOut)
	}
	if d.emitter != nil {
		es := d.emitter.Stats()
		state := okColor("connected")
		if !es.Connected {
			state = errColor("disconnected")
		}
		fmt.Printf("│   MQTT:               %s (%d errors)\n", state, es.Errors)
	}

	fmt.Println("╰─────────────────────────────────────────────────────────────────╯")
}

// printFinalStats prints a summary at shutdown
func printFinalStats(d *daemon) {
	ps := d.pipeline.Stats()
	saver := d.saver.Status()

	fmt.Println()
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println(headerColor("Final Statistics"))
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Printf("  Preview renders:   %d (%d displayed, %d superseded)\n",
		ps.Renders, ps.Displayed, ps.Buffer.Dropped)
	fmt.Printf("  Saves completed:   %s\n", okColor("%d", saver.Saved))
	fmt.Printf("  Saves failed:      %s\n", countColor(saver.Failed, ""))
	fmt.Printf("  Saves interrupted: %d (spooled for next start)\n", saver.Interrupted)
	fmt.Println("═══════════════════════════════════════════════════════════════")
}

func countColor(n uint64, suffix string) string {
	s := fmt.Sprintf("%d", n)
	if suffix != "" {
		s += " " + suffix
	}
	if n > 0 {
		return errColor("%s", s)
	}
	return s
}

func percent(part, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
