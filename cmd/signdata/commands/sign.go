package commands

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/oktsec/signdata/internal/identity"
	"github.com/oktsec/signdata/internal/payload"
	"github.com/oktsec/signdata/internal/safefile"
	"github.com/oktsec/signdata/internal/signdata"
)

type signOpts struct {
	keysDir    string
	name       string
	seedPrompt bool
	addr       string
	domain     string
	text       string
	binary     string
	cellB64    string
	schema     string
	timestamp  int64
	out        string

	textSet bool
}

func newSignCmd() *cobra.Command {
	var o signOpts

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign a payload for a domain on behalf of a wallet",
		Example: `  signdata sign --name alice --domain tonkeeper.com --text "Confirm login"
  signdata sign --name alice --domain app.example --binary 3q2+7w== --out result.json
  signdata sign --name alice --domain app.example --schema "msg#_ v:uint64 = Msg;" --cell te6cckEB...
  signdata sign --seed-prompt --address 0:83df...31a8 --domain app.example --text hi`,
		RunE: func(cmd *cobra.Command, args []string) error {
			o.textSet = cmd.Flags().Changed("text")
			p, err := o.payload()
			if err != nil {
				return err
			}

			secret, addr, err := o.secret(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			svc := signdata.New()
			if cmd.Flags().Changed("timestamp") {
				svc = signdata.New(signdata.WithClock(signdata.FixedClock(o.timestamp)))
			}

			res, err := svc.Sign(signdata.Request{
				Payload:   p,
				Domain:    o.domain,
				SecretKey: secret,
				Address:   addr,
			})
			if err != nil {
				return err
			}

			if o.out != "" {
				if err := safefile.WriteJSON(o.out, res, 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", o.out) //nolint:errcheck // CLI output
				return nil
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.keysDir, "key-dir", "", "keys directory (default: identity.keys_dir from config)")
	f.StringVar(&o.name, "name", "", "name of the signing key")
	f.BoolVar(&o.seedPrompt, "seed-prompt", false, "read a hex Ed25519 seed from the terminal instead of a key file")
	f.StringVar(&o.addr, "address", "", "signing account address (default: the address bound to the key)")
	f.StringVar(&o.domain, "domain", "", "application domain the signature is bound to")
	f.StringVar(&o.text, "text", "", "sign a text payload")
	f.StringVar(&o.binary, "binary", "", "sign a binary payload given as base64")
	f.StringVar(&o.cellB64, "cell", "", "sign a cell payload given as base64 bag-of-cells")
	f.StringVar(&o.schema, "schema", "", "TL-B schema for --cell")
	f.Int64Var(&o.timestamp, "timestamp", 0, "unix seconds to sign at (default: now)")
	f.StringVarP(&o.out, "out", "o", "", "write the result to a file instead of stdout")
	_ = cmd.MarkFlagRequired("domain")
	cmd.MarkFlagsMutuallyExclusive("text", "binary", "cell")
	cmd.MarkFlagsMutuallyExclusive("name", "seed-prompt")
	return cmd
}

func (o *signOpts) payload() (payload.Payload, error) {
	switch {
	case o.cellB64 != "":
		if o.schema == "" {
			return nil, fmt.Errorf("--schema is required with --cell")
		}
		return payload.Cell{Schema: o.schema, Cell: o.cellB64}, nil
	case o.binary != "":
		return payload.BinaryFromBase64(o.binary)
	case o.textSet:
		return payload.Text{Text: o.text}, nil
	default:
		return nil, fmt.Errorf("one of --text, --binary or --cell is required")
	}
}

// secret returns the signing key and the address to sign for.
func (o *signOpts) secret(in io.Reader, prompt io.Writer) ([]byte, string, error) {
	if o.seedPrompt {
		if o.addr == "" {
			return nil, "", fmt.Errorf("--address is required with --seed-prompt")
		}
		seed, err := readSeed(in, prompt)
		if err != nil {
			return nil, "", err
		}
		return seed, o.addr, nil
	}

	if o.name == "" {
		return nil, "", fmt.Errorf("--name or --seed-prompt is required")
	}
	dir := o.keysDir
	if dir == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, "", err
		}
		dir = cfg.Identity.KeysDir
	}
	kp, err := identity.LoadKeypair(dir, o.name)
	if err != nil {
		return nil, "", err
	}
	addr := o.addr
	if addr == "" {
		addr = kp.Address
	}
	if addr == "" {
		return nil, "", fmt.Errorf("key %s has no bound address; pass --address", o.name)
	}
	return kp.PrivateKey, addr, nil
}

// readSeed reads a 32-byte hex seed. On a terminal the input is not echoed.
func readSeed(in io.Reader, prompt io.Writer) ([]byte, error) {
	var line string
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Ed25519 seed (hex): ") //nolint:errcheck // CLI output
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt) //nolint:errcheck // CLI output
		if err != nil {
			return nil, fmt.Errorf("reading seed: %w", err)
		}
		line = string(b)
	} else {
		b, err := io.ReadAll(io.LimitReader(in, 1024))
		if err != nil {
			return nil, fmt.Errorf("reading seed: %w", err)
		}
		line = string(b)
	}

	seed, err := hex.DecodeString(strings.TrimSpace(line))
	if err != nil {
		return nil, fmt.Errorf("seed is not hex: %w", err)
	}
	if len(seed) != 32 {
		return nil, fmt.Errorf("seed is %d bytes, want 32", len(seed))
	}
	return seed, nil
}
