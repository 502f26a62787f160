// Command feeddump decodes a GTFS-Realtime trip-updates or alerts feed, or a
// CTA Train Tracker arrivals response, from a file or URL and prints the
// records, the decode report and, optionally, the arrivals derived for one
// route and stop.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"

	"github.com/transitboard/transitboard/internal/appconf"
	"github.com/transitboard/transitboard/internal/arrivals"
	"github.com/transitboard/transitboard/internal/cta"
	"github.com/transitboard/transitboard/internal/feed"
	"github.com/transitboard/transitboard/internal/logging"
	"github.com/transitboard/transitboard/internal/realtime"
	"github.com/transitboard/transitboard/internal/wire"
)

type options struct {
	source string
	kind   string
	schema string
	token  string
	route  string
	stop   string
	at     string
}

func main() {
	var opts options
	flag.StringVar(&opts.kind, "feed", "trip_updates", "feed kind: trip_updates, alerts or cta")
	flag.StringVar(&opts.schema, "schema", "legacy", "alert schema: legacy or standard")
	flag.StringVar(&opts.token, "token", os.Getenv(appconf.EnvAPIToken), "API token sent as the api_token query parameter (key for cta)")
	flag.StringVar(&opts.route, "route", "", "derive arrivals for this route (needs -stop)")
	flag.StringVar(&opts.stop, "stop", "", "derive arrivals at this stop (needs -route)")
	flag.StringVar(&opts.at, "at", "", "reference time for -route/-stop, RFC 3339 (default: now)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: feeddump [flags] <file|url>\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	opts.source = flag.Arg(0)

	if err := run(context.Background(), os.Stdout, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, out io.Writer, opts options) error {
	buf, err := load(ctx, opts)
	if err != nil {
		return err
	}

	dumper := &spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, SortKeys: true}

	switch opts.kind {
	case realtime.TripUpdatesFeed:
		f := feed.DecodeTripUpdates(buf)
		dumper.Fdump(out, f.Header, f.TripUpdates)
		printReport(out, len(buf), f.Stats, &f.Report, f.Failed())
		if opts.route != "" || opts.stop != "" {
			return printArrivals(out, dumper, f.TripUpdates, opts)
		}
	case realtime.AlertsFeed:
		schema, err := feed.ParseAlertSchema(opts.schema)
		if err != nil {
			return err
		}
		f := feed.DecodeAlerts(buf, schema)
		dumper.Fdump(out, f.Header, f.Alerts)
		printReport(out, len(buf), f.Stats, &f.Report, f.Failed())
	case realtime.CTAFeed:
		resp, err := cta.Decode(buf)
		if err != nil {
			return err
		}
		dumper.Fdump(out, resp)
		q := cta.Arrivals(resp.Predictions, arrivals.Target{Route: opts.route, Stop: opts.stop}, cta.DefaultMaxMinutes)
		fmt.Fprintf(out, "\n%d bytes, %d predictions, %d inbound, %d outbound\n",
			len(buf), len(resp.Predictions), len(q.Inbound), len(q.Outbound))
		dumper.Fdump(out, q)
	default:
		return fmt.Errorf("unknown feed kind %q", opts.kind)
	}
	return nil
}

func load(ctx context.Context, opts options) ([]byte, error) {
	if strings.HasPrefix(opts.source, "http://") || strings.HasPrefix(opts.source, "https://") {
		ctx, cancel := context.WithTimeout(ctx, appconf.DefaultTimeout)
		defer cancel()
		cfg := appconf.FeedConfig{APIToken: opts.token}
		if opts.kind == realtime.CTAFeed {
			cfg.TokenParam = cta.KeyParam
		}
		client := realtime.NewClient(cfg, logging.New(os.Stderr, false, false))
		if opts.kind == realtime.CTAFeed {
			client = client.WithAccept("application/json")
		}
		return client.Fetch(ctx, opts.source)
	}
	return os.ReadFile(opts.source)
}

func printReport(out io.Writer, size int, stats feed.Stats, rep *wire.Report, failed bool) {
	fmt.Fprintf(out, "\n%d bytes, %d entities, %d dropped, failed=%t\n", size, stats.Entities, stats.Dropped, failed)
	for _, k := range wire.Kinds() {
		if n := rep.Count(k); n > 0 {
			fmt.Fprintf(out, "  %s: %d\n", k, n)
		}
	}
	for _, e := range rep.Errors() {
		fmt.Fprintf(out, "  %v\n", e)
	}
}

func printArrivals(out io.Writer, dumper *spew.ConfigState, trips []feed.TripUpdate, opts options) error {
	if opts.route == "" || opts.stop == "" {
		return errors.New("-route and -stop must be given together")
	}
	ref := time.Now()
	if opts.at != "" {
		t, err := time.Parse(time.RFC3339, opts.at)
		if err != nil {
			return fmt.Errorf("invalid -at: %w", err)
		}
		ref = t
	}

	q := arrivals.NewEngine(arrivals.DefaultConfig()).Derive(trips, arrivals.Target{Route: opts.route, Stop: opts.stop}, ref)
	fmt.Fprintf(out, "\narrivals for %s at %s, %s\n", opts.route, opts.stop, ref.Format(time.RFC3339))
	dumper.Fdump(out, q)
	return nil
}
