package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/ndewijer/depotsync/internal/api/request"
	"github.com/ndewijer/depotsync/internal/report"
	"github.com/ndewijer/depotsync/internal/service"
	"github.com/ndewijer/depotsync/internal/validation"
)

type dividendsCmd struct {
	query  request.DividendQuery
	asJSON bool
}

func (*dividendsCmd) Name() string     { return "dividends" }
func (*dividendsCmd) Synopsis() string { return "list stored dividends" }
func (*dividendsCmd) Usage() string {
	return `depotsync dividends [-account <name>] [-from YYYY-MM-DD] [-to YYYY-MM-DD] [-asset <ISIN|WKN>] [-json]

  Lists stored dividend events ordered by payment date, followed by totals
  per year and currency.
`
}

func (c *dividendsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.query.Account, "account", "", "only this account")
	f.StringVar(&c.query.From, "from", "", "earliest payment date")
	f.StringVar(&c.query.To, "to", "", "latest payment date")
	f.StringVar(&c.query.Asset, "asset", "", "only this ISIN or WKN")
	f.BoolVar(&c.asJSON, "json", false, "print JSON instead of a table")
}

func (c *dividendsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	filter, err := validation.ValidateDividendQuery(c.query, accountRefs(a.cfg.Accounts))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}

	events, err := a.dividends.GetDividends(ctx, filter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	if c.asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(events); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	}

	printMarkdown(report.DividendsMarkdown(events, service.Totals(events)))
	return subcommands.ExitSuccess
}
