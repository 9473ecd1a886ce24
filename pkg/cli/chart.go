package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/guptarohit/asciigraph"

	"github.com/platinummonkey/ruckstats/pkg/analytics"
	"github.com/platinummonkey/ruckstats/pkg/chart"
	"github.com/platinummonkey/ruckstats/pkg/httpapi"
	"github.com/platinummonkey/ruckstats/pkg/period"
)

func newChartCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "chart",
		Description: "Plot a downsampled metric series in the terminal",
		Flags:       flag.NewFlagSet("chart", flag.ContinueOnError),
	}
	server, timeout, asJSON := serverFlags(cmd.Flags)
	p := cmd.Flags.String("period", string(period.LastThreeMonths), "period")
	metric := cmd.Flags.String("metric", string(analytics.SeriesDistance), "metric: distance, pace, load, calories, duration, elevation, weight-moved")
	strategy := cmd.Flags.String("strategy", string(chart.StrategyAdaptive), "sampling strategy: simplify, peaks, adaptive")
	width := cmd.Flags.Int("width", 72, "plot width in columns, also the display point budget")
	height := cmd.Flags.Int("height", 12, "plot height in rows")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		parsedPeriod, err := period.Parse(*p)
		if err != nil {
			return err
		}
		parsedMetric, err := analytics.ParseSeriesMetric(*metric)
		if err != nil {
			return err
		}
		if _, err := chart.ParseStrategy(*strategy); err != nil {
			return err
		}
		if *width < 2 || *height < 1 {
			return fmt.Errorf("width must be at least 2 and height at least 1")
		}

		var resp httpapi.SeriesResponse
		query := url.Values{
			"max":      {strconv.Itoa(*width)},
			"strategy": {*strategy},
		}
		path := "/api/v1/series/" + string(parsedPeriod) + "/" + string(parsedMetric)
		if err := newAPIClient(*server, *timeout).get(context.Background(), path, query, &resp); err != nil {
			return err
		}
		if *asJSON {
			return printJSON(out, resp)
		}

		_, err = fmt.Fprintln(out, render(resp, *width, *height))
		return err
	}
	return cmd
}

// render plots the display series; fewer than two points give a message
func render(resp httpapi.SeriesResponse, width, height int) string {
	caption := fmt.Sprintf("%s over %s (%d of %d points, %s)",
		resp.Metric, resp.Period, len(resp.Display), resp.SourcePoints, resp.Applied)
	if len(resp.Display) < 2 {
		return "not enough sessions to plot: " + caption
	}

	ys := make([]float64, len(resp.Display))
	for i, pt := range resp.Display {
		ys[i] = pt.Y
	}
	return asciigraph.Plot(ys,
		asciigraph.Width(width),
		asciigraph.Height(height),
		asciigraph.Caption(caption),
	)
}
