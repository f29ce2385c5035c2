package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/ndewijer/depotsync/internal/api/request"
	"github.com/ndewijer/depotsync/internal/config"
	"github.com/ndewijer/depotsync/internal/report"
	"github.com/ndewijer/depotsync/internal/validation"
)

type ingestCmd struct {
	account string
	from    string
	to      string
	stored  bool
}

func (*ingestCmd) Name() string     { return "ingest" }
func (*ingestCmd) Synopsis() string { return "run one ingestion and print its summary" }
func (*ingestCmd) Usage() string {
	return `depotsync ingest [-account <name>] [-from YYYY-MM-DD] [-to YYYY-MM-DD] [-stored]

  Authenticates every configured account, fetches statements for the range
  (default: the lookback window), extracts dividends and stores new ones.
  Exits with status 1 when every account failed.
`
}

func (c *ingestCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "account", "", "only ingest this account")
	f.StringVar(&c.from, "from", "", "start of the range")
	f.StringVar(&c.to, "to", "", "end of the range")
	f.BoolVar(&c.stored, "stored", false, "replay archived statements instead of contacting the broker")
}

func (c *ingestCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	c.configure(cfg)

	a, err := newApp(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	ref, r, err := validation.ValidateIngestRequest(
		request.IngestRequest{Account: c.account, From: c.from, To: c.to},
		accountRefs(a.cfg.Accounts),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}

	summary, err := a.ingestion.TryRunRange(ctx, ref, r)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	printMarkdown(report.RunMarkdown(summary))

	if summary.Failed() || errors.Is(ctx.Err(), context.Canceled) {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// configure applies the command's flags on top of the loaded configuration.
func (c *ingestCmd) configure(cfg *config.Config) {
	if c.stored {
		cfg.Ingest.UseStoredData = true
	}
}

// printMarkdown renders md for the terminal, falling back to the raw text.
func printMarkdown(md string) {
	out, err := report.Render(md)
	if err != nil {
		fmt.Print(md)
		return
	}
	fmt.Print(out)
}
