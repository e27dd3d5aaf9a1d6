package commands

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/oktsec/signdata/internal/identity"
	"github.com/oktsec/signdata/internal/safefile"
	"github.com/oktsec/signdata/internal/signdata"
)

var errNotVerified = errors.New("signature did not verify")

func newVerifyCmd() *cobra.Command {
	var file, pubkey, keysDir, name string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a signed result",
		Example: `  signdata verify --file result.json --pubkey <base64>
  signdata verify --file result.json --name alice
  signdata sign --name alice --domain a.com --text hi | signdata verify`,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := readResult(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}

			pub, source, err := resolveVerifyKey(res, pubkey, keysDir, name)
			if err != nil {
				return err
			}

			svc := signdata.New()
			d, derr := svc.Digest(res)
			ok := svc.VerifySignData(res, pub)

			out := cmd.OutOrStdout()
			if ok {
				color.New(color.FgGreen, color.Bold).Fprintln(out, "VERIFIED") //nolint:errcheck // CLI output
			} else {
				color.New(color.FgRed, color.Bold).Fprintln(out, "INVALID") //nolint:errcheck // CLI output
			}
			fmt.Fprintf(out, "  Key:       %s (%s)\n", identity.Fingerprint(pub)[:16], source)            //nolint:errcheck // CLI output
			fmt.Fprintf(out, "  Address:   %s\n", res.Address)                                            //nolint:errcheck // CLI output
			fmt.Fprintf(out, "  Domain:    %s\n", res.Domain)                                             //nolint:errcheck // CLI output
			fmt.Fprintf(out, "  Signed at: %s\n", time.Unix(res.Timestamp, 0).UTC().Format(time.RFC3339)) //nolint:errcheck // CLI output
			if res.Payload != nil {
				fmt.Fprintf(out, "  Payload:   %s\n", res.Payload.Kind()) //nolint:errcheck // CLI output
			}
			if derr == nil {
				fmt.Fprintf(out, "  Digest:    %s\n", hex.EncodeToString(d[:])) //nolint:errcheck // CLI output
			} else {
				color.New(color.FgYellow).Fprintf(out, "  Malformed: %v\n", derr) //nolint:errcheck // CLI output
			}

			if !ok {
				return errNotVerified
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "result JSON file, - for stdin")
	cmd.Flags().StringVar(&pubkey, "pubkey", "", "signer public key as base64")
	cmd.Flags().StringVar(&keysDir, "key-dir", "", "keys directory (default: identity.keys_dir from config)")
	cmd.Flags().StringVar(&name, "name", "", "name of the signer's key in the keys directory")
	cmd.MarkFlagsMutuallyExclusive("pubkey", "name")
	return cmd
}

func readResult(stdin io.Reader, file string) (*signdata.Result, error) {
	var res signdata.Result
	if file == "-" {
		data, err := io.ReadAll(io.LimitReader(stdin, safefile.MaxDocument))
		if err != nil {
			return nil, fmt.Errorf("reading result: %w", err)
		}
		if err := json.Unmarshal(data, &res); err != nil {
			return nil, fmt.Errorf("decoding result: %w", err)
		}
		return &res, nil
	}
	if err := safefile.ReadJSON(file, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// resolveVerifyKey returns the public key to verify with and a label for
// where it came from.
func resolveVerifyKey(res *signdata.Result, pubkey, keysDir, name string) (ed25519.PublicKey, string, error) {
	if pubkey != "" {
		raw, err := base64.StdEncoding.DecodeString(pubkey)
		if err != nil || len(raw) != ed25519.PublicKeySize {
			return nil, "", fmt.Errorf("--pubkey must be 32 bytes of base64")
		}
		return ed25519.PublicKey(raw), "--pubkey", nil
	}

	if keysDir == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, "", err
		}
		keysDir = cfg.Identity.KeysDir
	}

	if name != "" {
		pk, err := identity.LoadPublicKey(keysDir, name)
		if err != nil {
			return nil, "", err
		}
		return pk.Key, name, nil
	}

	ks := identity.NewKeyStore()
	if err := ks.LoadFromDir(keysDir); err != nil {
		return nil, "", err
	}
	pub, ok := ks.ForAddress(res.Address)
	if !ok {
		return nil, "", fmt.Errorf("no key in %s is bound to %s; pass --pubkey or --name", keysDir, res.Address)
	}
	return pub, "bound to address", nil
}
