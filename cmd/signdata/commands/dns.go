package commands

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oktsec/signdata/internal/dnsname"
)

func newDNSCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dns <domain>",
		Short: "Show the canonical wire form of an application domain",
		Example: `  signdata dns tonkeeper.com
  signdata dns münchen.de`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			enc, err := dnsname.Encode(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Domain:  %s\n", args[0])                 //nolint:errcheck // CLI output
			fmt.Fprintf(out, "Hex:     %s\n", hex.EncodeToString(enc)) //nolint:errcheck // CLI output
			fmt.Fprintf(out, "Length:  %d\n", len(enc))                //nolint:errcheck // CLI output
			fmt.Fprintf(out, "Labels:  %s\n", escapeLabels(enc))       //nolint:errcheck // CLI output
			return nil
		},
	}
}

// escapeLabels renders enc with each NUL terminator shown as \0.
func escapeLabels(enc []byte) string {
	var b strings.Builder
	for _, c := range enc {
		if c == 0 {
			b.WriteString(`\0`)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
