// Package cli provides the ruckstats command-line interface.
//
// # Overview
//
// "ruckstats serve" runs the analytics API over a record store. The other
// commands are thin clients of that API and print its answers as text, or
// as JSON with -json.
//
// # Commands
//
// serve: Run the HTTP API
//
//	ruckstats serve --config /etc/ruckstats.yaml
//
// summary: Totals, averages, extremes and the training streak of a period
//
//	ruckstats summary --period monthly
//
// records: All-time personal records
//
//	ruckstats records
//
// weekly: Weekly buckets with the two-sessions-a-week goal
//
//	ruckstats weekly --weeks 26
//
// compare: Trends of one period against another
//
//	ruckstats compare --current monthly --comparison last-month
//
// detailed: Histograms, terrain mix and weather impact as JSON
//
//	ruckstats detailed --period last-3-months
//
// chart: A downsampled series plotted in the terminal
//
//	ruckstats chart --metric pace --period last-year --strategy peaks --width 80
//
// Every client command accepts --server (default http://localhost:8080)
// and --timeout.
package cli
