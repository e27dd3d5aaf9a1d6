package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/oktsec/signdata/internal/identity"
)

func newKeygenCmd() *cobra.Command {
	var names []string
	var addr, outDir string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate Ed25519 wallet keypairs",
		Example: `  signdata keygen --name alice --out ./keys/
  signdata keygen --name alice --address 0:83df...31a8
  signdata keygen --name a --name b`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(names) == 0 {
				return fmt.Errorf("at least one --name is required")
			}
			if addr != "" && len(names) > 1 {
				return fmt.Errorf("--address binds a single key; pass one --name")
			}

			out := cmd.OutOrStdout()
			for _, name := range names {
				kp, err := identity.GenerateKeypair(name, addr)
				if err != nil {
					return fmt.Errorf("generating keypair for %s: %w", name, err)
				}
				if err := kp.Save(outDir); err != nil {
					return fmt.Errorf("saving keypair for %s: %w", name, err)
				}
				fp := identity.Fingerprint(kp.PublicKey)
				fmt.Fprintf(out, "Generated keypair for %s\n", name)
				fmt.Fprintf(out, "  Private: %s\n", filepath.Join(outDir, name+".key"))
				fmt.Fprintf(out, "  Public:  %s\n", filepath.Join(outDir, name+".pub"))
				if addr != "" {
					fmt.Fprintf(out, "  Address: %s\n", addr)
				}
				fmt.Fprintf(out, "  Fingerprint: %s\n\n", fp[:16]+"...")
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&names, "name", nil, "key name(s) to generate")
	cmd.Flags().StringVar(&addr, "address", "", "wallet address the key controls")
	cmd.Flags().StringVar(&outDir, "out", "./keys", "output directory for keys")
	return cmd
}
