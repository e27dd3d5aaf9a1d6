package commands

import (
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/oktsec/signdata/internal/address"
	"github.com/oktsec/signdata/internal/audit"
)

func newLogsCmd() *cobra.Command {
	var decision, addr, domain, since string
	var unverified, asJSON bool
	var limit int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Query the verification audit log",
		Example: `  signdata logs
  signdata logs --decision replayed
  signdata logs --address EQ...
  signdata logs --unverified --since 1h
  signdata logs --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := audit.NewStore(cfg.Audit.DBPath, slog.New(slog.DiscardHandler), 0)
			if err != nil {
				return fmt.Errorf("opening audit db: %w", err)
			}
			defer store.Close() //nolint:errcheck // best-effort cleanup

			if addr != "" {
				acct, err := address.Parse(addr)
				if err != nil {
					return fmt.Errorf("invalid --address: %w", err)
				}
				addr = acct.Raw()
			}

			var sinceTime string
			if since != "" {
				dur, err := time.ParseDuration(since)
				if err != nil {
					return fmt.Errorf("invalid duration %q: %w", since, err)
				}
				sinceTime = time.Now().Add(-dur).UTC().Format(time.RFC3339)
			}

			entries, err := store.Query(audit.QueryOpts{
				Decision:   decision,
				Address:    addr,
				Domain:     domain,
				Unverified: unverified,
				Since:      sinceTime,
				Limit:      limit,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				for _, e := range entries {
					fmt.Fprintln(out, string(audit.EntryJSON(e))) //nolint:errcheck // CLI output
				}
				return nil
			}

			if len(entries) == 0 {
				fmt.Fprintln(out, "No audit entries found.") //nolint:errcheck // CLI output
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "TIME\tADDRESS\tDOMAIN\tTYPE\tDECISION\tVERIFIED\tLATENCY\n") //nolint:errcheck // CLI output
			for _, e := range entries {
				verified := "no"
				if e.Verified {
					verified = "yes"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%dms\n", //nolint:errcheck // CLI output
					e.Timestamp, shortAddr(e.Address), e.Domain, e.PayloadType, e.Decision, verified, e.LatencyMs)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&decision, "decision", "", "filter by decision (verified, replayed, stale, ...)")
	cmd.Flags().StringVar(&addr, "address", "", "filter by wallet address, any spelling")
	cmd.Flags().StringVar(&domain, "domain", "", "filter by application domain")
	cmd.Flags().BoolVar(&unverified, "unverified", false, "show only rejected results")
	cmd.Flags().StringVar(&since, "since", "", "show entries newer than this duration (e.g. 1h, 30m)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print one JSON object per line")
	return cmd
}

// shortAddr abbreviates a raw address to workchain and the hash ends.
func shortAddr(raw string) string {
	if len(raw) <= 20 {
		return raw
	}
	return raw[:10] + "…" + raw[len(raw)-6:]
}
