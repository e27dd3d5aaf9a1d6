package commands

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/oktsec/signdata/internal/audit"
	"github.com/oktsec/signdata/internal/identity"
)

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage wallet keys",
		Long:  "List wallet public keys and revoke keys the verifier should no longer accept.",
	}

	cmd.AddCommand(
		newKeysListCmd(),
		newKeysRevokeCmd(),
	)
	return cmd
}

func newKeysListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List wallet public keys in the keys directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			keys, err := identity.LoadPublicKeys(cfg.Identity.KeysDir)
			if err != nil {
				return fmt.Errorf("loading keys: %w", err)
			}
			if len(keys) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No keys found.") //nolint:errcheck // CLI output
				return nil
			}

			revoked := map[string]bool{}
			if store, err := audit.NewStore(cfg.Audit.DBPath, slog.New(slog.DiscardHandler), 0); err == nil {
				if list, err := store.ListRevoked(); err == nil {
					for _, k := range list {
						revoked[k.Fingerprint] = true
					}
				}
				_ = store.Close()
			}

			ks := identity.NewKeyStore()
			if err := ks.LoadFromDir(cfg.Identity.KeysDir); err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "NAME\tFINGERPRINT\tADDRESS\tSTATUS\n") //nolint:errcheck // CLI output
			for _, name := range ks.Names() {
				pk := keys[name]
				fp := identity.Fingerprint(pk.Key)
				status := "active"
				if revoked[fp] {
					status = "revoked"
				}
				addr := pk.Address
				if addr == "" {
					addr = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, fp[:16], addr, status) //nolint:errcheck // CLI output
			}
			return tw.Flush()
		},
	}
}

func newKeysRevokeCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "revoke <name>",
		Short: "Revoke a wallet key so the verifier rejects its signatures",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			name := args[0]

			pk, err := identity.LoadPublicKey(cfg.Identity.KeysDir, name)
			if err != nil {
				return err
			}

			store, err := audit.NewStore(cfg.Audit.DBPath, slog.New(slog.DiscardHandler), 0)
			if err != nil {
				return fmt.Errorf("opening audit db: %w", err)
			}
			defer store.Close() //nolint:errcheck // best-effort cleanup

			fp := identity.Fingerprint(pk.Key)
			if err := store.RevokeKey(fp, name, reason); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Revoked %s (%s)\n", name, fp[:16]) //nolint:errcheck // CLI output
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded with the revocation")
	return cmd
}
