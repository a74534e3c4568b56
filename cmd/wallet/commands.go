package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/ssi-wallet/config"
	"github.com/tbd54566975/ssi-wallet/pkg/credential"
	"github.com/tbd54566975/ssi-wallet/pkg/credentialstore"
	"github.com/tbd54566975/ssi-wallet/pkg/localkms"
	"github.com/tbd54566975/ssi-wallet/pkg/openid4ci"
	"github.com/tbd54566975/ssi-wallet/pkg/presexch"
	"github.com/tbd54566975/ssi-wallet/pkg/verifier"
	"github.com/tbd54566975/ssi-wallet/pkg/wallet"
)

// commands runs one CLI command against an open wallet, writing results as JSON to out.
type commands struct {
	wallet *wallet.Wallet
	cfg    *config.WalletConfig
	out    io.Writer
	in     io.Reader
}

func (c *commands) dispatch(ctx context.Context, args []string) error {
	switch args[0] {
	case "verify":
		if len(args) != 2 {
			return errors.New("usage: verify <file>")
		}
		data, err := readInput(args[1])
		if err != nil {
			return err
		}
		opts := verifier.VerifyOpts{RawCredential: data}
		if credential.IsPresentation(data) {
			opts = verifier.VerifyOpts{RawPresentation: data}
		}
		return c.verify(ctx, opts)
	case "match":
		if len(args) < 2 || len(args) > 3 {
			return errors.New("usage: match <definition> [candidates]")
		}
		return c.match(ctx, args[1], args[2:])
	case "present":
		if len(args) < 2 || len(args) > 4 {
			return errors.New("usage: present <definition> [audience] [nonce]")
		}
		return c.present(ctx, args[1], arg(args, 2), arg(args, 3))
	case "issue":
		if len(args) < 2 || len(args) > 4 {
			return errors.New("usage: issue <offer> [format] [pin]")
		}
		return c.issue(ctx, args[1], arg(args, 2), arg(args, 3))
	case "keys":
		return c.keys(ctx, args[1:])
	case "credentials":
		return c.credentials(ctx, args[1:])
	}
	return errors.Errorf("unknown command: %s", args[0])
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

// readInput returns the contents of the named file, or stdin for "-".
func readInput(name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", name)
	}
	return data, nil
}

func (c *commands) print(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *commands) verify(ctx context.Context, opts verifier.VerifyOpts) error {
	report, err := c.wallet.Verifier().Verify(ctx, opts)
	if report != nil {
		if printErr := c.print(report); printErr != nil {
			return printErr
		}
	}
	return err
}

func (c *commands) match(ctx context.Context, definitionFile string, candidates []string) error {
	definition, err := readInput(definitionFile)
	if err != nil {
		return err
	}
	var selected [][]byte
	if len(candidates) == 1 {
		data, err := readInput(candidates[0])
		if err != nil {
			return err
		}
		selected, err = c.wallet.Matcher().MatchBytes(definition, data, presexch.MatchOptions{})
		if err != nil {
			return err
		}
	} else {
		stored, err := c.wallet.Credentials().Raw(ctx, credentialstore.Filter{})
		if err != nil {
			return err
		}
		all, err := json.Marshal(rawList(stored))
		if err != nil {
			return err
		}
		if selected, err = c.wallet.Matcher().MatchBytes(definition, all, presexch.MatchOptions{}); err != nil {
			return err
		}
	}
	return c.print(rawList(selected))
}

// rawList renders credentials for JSON output: VC-JWTs as strings, JSON credentials as objects.
func rawList(creds [][]byte) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(creds))
	for _, raw := range creds {
		if credential.IsJWT(raw) {
			quoted, _ := json.Marshal(string(raw))
			out = append(out, quoted)
			continue
		}
		out = append(out, raw)
	}
	return out
}

func (c *commands) present(ctx context.Context, definitionFile, audience, nonce string) error {
	definition, err := readInput(definitionFile)
	if err != nil {
		return err
	}
	vp, err := c.wallet.Present(ctx, definition, audience, nonce)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.out, string(vp))
	return err
}

func (c *commands) issue(ctx context.Context, offerArg, format, pin string) error {
	offer, err := c.loadOffer(ctx, offerArg)
	if err != nil {
		return err
	}
	parsed, err := openid4ci.ParseOffer(offer)
	if err != nil {
		return err
	}
	if format == "" {
		format = parsed.Credentials[0].Format
	}

	var stored *credentialstore.StoredCredential
	if parsed.PreAuthorizedCodeGrant() != nil {
		stored, err = c.wallet.AcceptOffer(ctx, offer, format, pin)
	} else {
		stored, err = c.authorizationCodeIssuance(ctx, offer, format)
	}
	if err != nil {
		return err
	}
	stored.Credential = nil
	return c.print(stored)
}

// authorizationCodeIssuance prints the authorization URL and reads back the redirect the browser ended on.
func (c *commands) authorizationCodeIssuance(ctx context.Context, offer []byte, format string) (*credentialstore.StoredCredential, error) {
	session, err := c.wallet.NewIssuanceSession(offer, format)
	if err != nil {
		return nil, err
	}
	result, err := session.Authorize(ctx, "", c.cfg.Wallet.RedirectURI)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(os.Stderr, "open this URL to authorize:\n%s\npaste the redirect URL: ", result.AuthorizationURL)
	line, err := bufio.NewReader(c.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "reading redirect")
	}
	if _, err = session.ParseRedirect(strings.TrimSpace(line)); err != nil {
		return nil, err
	}
	keyID, err := c.wallet.BindingKey(ctx)
	if err != nil {
		return nil, err
	}
	if _, err = session.RequestCredential(ctx, "", keyID); err != nil && !session.State().Terminal() {
		return nil, err
	}
	return c.wallet.CompleteIssuance(ctx, session)
}

// loadOffer accepts an offer as JSON, an openid-credential-offer URI, a credential_offer_uri or a file.
func (c *commands) loadOffer(ctx context.Context, offerArg string) ([]byte, error) {
	trimmed := strings.TrimSpace(offerArg)
	switch {
	case strings.HasPrefix(trimmed, "{"):
		return []byte(trimmed), nil
	case strings.HasPrefix(trimmed, openid4ci.OfferScheme+":"), strings.HasPrefix(trimmed, "https://"), strings.HasPrefix(trimmed, "http://"):
		return openid4ci.FetchOffer(ctx, c.wallet.HTTPClient(), trimmed)
	}
	return readInput(trimmed)
}

func (c *commands) keys(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: keys list | create [Ed25519|P-256]")
	}
	switch args[0] {
	case "list":
		keys, err := c.wallet.KMS().ListKeys(ctx)
		if err != nil {
			return err
		}
		return c.print(keys)
	case "create":
		kt := localkms.P256
		if t := arg(args, 1); t != "" {
			kt = localkms.KeyType(t)
		}
		created, err := c.wallet.KMS().CreateKey(ctx, kt)
		if err != nil {
			return err
		}
		logrus.WithContext(ctx).Infof("created key %s", created.ID)
		return c.print(created.KeyDetails)
	}
	return errors.Errorf("unknown keys command: %s", args[0])
}

func (c *commands) credentials(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: credentials list | show <id> | add <file> | delete <id> | verify <id>")
	}
	store := c.wallet.Credentials()
	switch args[0] {
	case "list":
		creds, err := store.List(ctx, credentialstore.Filter{})
		if err != nil {
			return err
		}
		summaries := make([]credentialstore.StoredCredential, 0, len(creds))
		for _, cred := range creds {
			cred.Credential = nil
			summaries = append(summaries, cred)
		}
		return c.print(summaries)
	case "show", "delete", "verify":
		id := arg(args, 1)
		if id == "" {
			return errors.Errorf("usage: credentials %s <id>", args[0])
		}
		switch args[0] {
		case "show":
			raw, err := store.Get(ctx, id)
			if err != nil {
				return err
			}
			return c.print(rawList([][]byte{raw})[0])
		case "delete":
			return store.Delete(ctx, id)
		}
		return c.verify(ctx, verifier.VerifyOpts{CredentialID: id})
	case "add":
		data, err := readInput(arg(args, 1))
		if err != nil {
			return err
		}
		stored, err := store.Add(ctx, []byte(strings.TrimSpace(string(data))))
		if err != nil {
			return err
		}
		stored.Credential = nil
		return c.print(stored)
	}
	return errors.Errorf("unknown credentials command: %s", args[0])
}
