package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"text/tabwriter"

	"github.com/platinummonkey/ruckstats/pkg/analytics"
	"github.com/platinummonkey/ruckstats/pkg/httpapi"
	"github.com/platinummonkey/ruckstats/pkg/period"
)

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func km(meters float64) string {
	return strconv.FormatFloat(meters/1000, 'f', 2, 64) + " km"
}

func newSummaryCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "summary",
		Description: "Show the summary of a period",
		Flags:       flag.NewFlagSet("summary", flag.ContinueOnError),
	}
	server, timeout, asJSON := serverFlags(cmd.Flags)
	p := cmd.Flags.String("period", string(period.Weekly), "period: weekly, monthly, last-3-months, last-year, all-time, last-week, last-month")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		parsed, err := period.Parse(*p)
		if err != nil {
			return err
		}

		var snap analytics.Snapshot
		client := newAPIClient(*server, *timeout)
		if err := client.get(context.Background(), "/api/v1/analytics/"+string(parsed), nil, &snap); err != nil {
			return err
		}
		if *asJSON {
			return printJSON(out, snap)
		}
		return printSnapshot(out, snap)
	}
	return cmd
}

func printSnapshot(out io.Writer, s analytics.Snapshot) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Period:\t%s\n", s.Period)
	fmt.Fprintf(tw, "Sessions:\t%d\n", s.SessionCount)
	fmt.Fprintf(tw, "Distance:\t%s\n", km(s.TotalDistance))
	fmt.Fprintf(tw, "Weight moved:\t%.1f kg·km\n", s.TotalWeightMoved)
	fmt.Fprintf(tw, "Calories:\t%.0f\n", s.TotalCalories)
	fmt.Fprintf(tw, "Average pace:\t%.2f min/km\n", s.AveragePace)
	if s.FastestPaceValid {
		fmt.Fprintf(tw, "Fastest pace:\t%.2f min/km\n", s.FastestPace)
	}
	fmt.Fprintf(tw, "Longest:\t%s\n", km(s.LongestDistance))
	fmt.Fprintf(tw, "Heaviest load:\t%.1f kg\n", s.HeaviestLoad)
	fmt.Fprintf(tw, "Streak:\t%d weeks\n", s.TrainingStreak)
	if s.Anomalies > 0 {
		fmt.Fprintf(tw, "Anomalies:\t%d\n", s.Anomalies)
	}
	for _, kind := range analytics.TrendKinds() {
		if t, ok := s.Trends[kind]; ok {
			fmt.Fprintf(tw, "Trend %s:\t%+.1f%% (%s)\n", kind, t.PercentageChange, t.Direction)
		}
	}
	return tw.Flush()
}

func newRecordsCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "records",
		Description: "Show all-time personal records",
		Flags:       flag.NewFlagSet("records", flag.ContinueOnError),
	}
	server, timeout, asJSON := serverFlags(cmd.Flags)

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}

		var pr analytics.PersonalRecords
		if err := newAPIClient(*server, *timeout).get(context.Background(), "/api/v1/records", nil, &pr); err != nil {
			return err
		}
		if *asJSON {
			return printJSON(out, pr)
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, row := range []struct {
			name  string
			entry analytics.RecordEntry
			unit  string
		}{
			{"Longest distance", pr.LongestDistance, "m"},
			{"Fastest pace", pr.FastestPace, "min/km"},
			{"Heaviest load", pr.HeaviestLoad, "kg"},
			{"Most calories", pr.HighestCalories, "kcal"},
			{"Longest duration", pr.LongestDuration, "s"},
			{"Most elevation", pr.GreatestElevationGain, "m"},
		} {
			if !row.entry.Valid {
				fmt.Fprintf(tw, "%s:\t-\n", row.name)
				continue
			}
			fmt.Fprintf(tw, "%s:\t%.2f %s\t%s\n", row.name, row.entry.Value, row.unit, row.entry.AchievedAt.Format("2006-01-02"))
		}
		return tw.Flush()
	}
	return cmd
}

func newWeeklyCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "weekly",
		Description: "Show weekly totals and goal progress",
		Flags:       flag.NewFlagSet("weekly", flag.ContinueOnError),
	}
	server, timeout, asJSON := serverFlags(cmd.Flags)
	weeks := cmd.Flags.Int("weeks", analytics.DefaultWeeks, "number of weeks, the current one included")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *weeks < 1 || *weeks > analytics.MaxWeeks {
			return fmt.Errorf("weeks must be between 1 and %d", analytics.MaxWeeks)
		}

		var buckets []analytics.WeeklyBucket
		query := url.Values{"weeks": {strconv.Itoa(*weeks)}}
		if err := newAPIClient(*server, *timeout).get(context.Background(), "/api/v1/weekly", query, &buckets); err != nil {
			return err
		}
		if *asJSON {
			return printJSON(out, buckets)
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "WEEK\tSESSIONS\tDISTANCE\tWEIGHT MOVED\tGOAL")
		for _, b := range buckets {
			goal := ""
			if b.MeetsGoal {
				goal = "✓"
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\t%.1f\t%s\n",
				b.WeekStart.Format("2006-01-02"), b.SessionCount, km(b.TotalDistance), b.TotalWeightMoved, goal)
		}
		return tw.Flush()
	}
	return cmd
}

func newCompareCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "compare",
		Description: "Compare a period with an earlier one",
		Flags:       flag.NewFlagSet("compare", flag.ContinueOnError),
	}
	server, timeout, asJSON := serverFlags(cmd.Flags)
	current := cmd.Flags.String("current", string(period.Weekly), "current period")
	comparison := cmd.Flags.String("comparison", "", "comparison period (default: the one before current)")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}

		query := url.Values{"current": {*current}}
		if *comparison != "" {
			query.Set("comparison", *comparison)
		}

		var resp httpapi.CompareResponse
		if err := newAPIClient(*server, *timeout).get(context.Background(), "/api/v1/compare", query, &resp); err != nil {
			return err
		}
		if *asJSON {
			return printJSON(out, resp)
		}
		if resp.Current == nil || resp.Comparison == nil {
			return fmt.Errorf("incomplete comparison response")
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "METRIC\t%s\t%s\tCHANGE\n", resp.Current.Period, resp.Comparison.Period)
		for _, kind := range analytics.TrendKinds() {
			t, ok := resp.Current.Trends[kind]
			if !ok {
				continue
			}
			fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%+.1f%% %s\n", kind, t.Current, t.Previous, t.PercentageChange, t.Direction)
		}
		return tw.Flush()
	}
	return cmd
}

func newDetailedCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "detailed",
		Description: "Show pace, distance, load, terrain and weather distributions",
		Flags:       flag.NewFlagSet("detailed", flag.ContinueOnError),
	}
	server, timeout, _ := serverFlags(cmd.Flags)
	p := cmd.Flags.String("period", string(period.Monthly), "period")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		parsed, err := period.Parse(*p)
		if err != nil {
			return err
		}

		var dm analytics.DetailedMetrics
		if err := newAPIClient(*server, *timeout).get(context.Background(), "/api/v1/detailed/"+string(parsed), nil, &dm); err != nil {
			return err
		}
		return printJSON(out, dm)
	}
	return cmd
}
