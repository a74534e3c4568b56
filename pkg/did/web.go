package did

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/ssi-wallet/internal/util"
)

const (
	WebMethod         = "web"
	webPrefix         = "did:web:"
	wellKnownLocation = ".well-known"
	didDocumentFile   = "did.json"
	maxDocumentSize   = 1 << 20
)

// WebResolver fetches did:web documents over HTTPS https://w3c-ccg.github.io/did-method-web/
type WebResolver struct {
	Client *http.Client
}

func (WebResolver) Method() string {
	return WebMethod
}

// DocumentURL maps a did:web to the location of its document.
//
//	did:web:example.com            -> https://example.com/.well-known/did.json
//	did:web:example.com:user:alice -> https://example.com/user/alice/did.json
//	did:web:localhost%3A8443       -> https://localhost:8443/.well-known/did.json
func DocumentURL(id string) (string, error) {
	if !strings.HasPrefix(id, webPrefix) {
		return "", errors.Errorf("not a did:web: %s", id)
	}
	parts := strings.Split(strings.TrimPrefix(id, webPrefix), ":")
	if parts[0] == "" {
		return "", errors.Errorf("did:web %s has no domain", id)
	}
	for i, p := range parts {
		unescaped, err := url.PathUnescape(p)
		if err != nil {
			return "", errors.Wrapf(err, "unescaping did:web segment %q", p)
		}
		parts[i] = unescaped
	}
	path := wellKnownLocation
	if len(parts) > 1 {
		path = strings.Join(parts[1:], "/")
	}
	return fmt.Sprintf("https://%s/%s/%s", parts[0], path, didDocumentFile), nil
}

func (r WebResolver) Resolve(ctx context.Context, id string) (*Document, error) {
	docURL, err := DocumentURL(id)
	if err != nil {
		return nil, err
	}
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, docURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building did:web request")
	}
	req.Header.Set("Accept", "application/did+json, application/json")

	logrus.WithContext(ctx).WithField("url", docURL).Debug("fetching did:web document")
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %s", docURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.Wrapf(ErrNotFound, "%s", id)
	}
	if !util.Is2xxResponse(resp.StatusCode) {
		return nil, errors.Errorf("fetching %s: unexpected status %d", docURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, errors.Wrap(err, "reading did:web document")
	}
	var doc Document
	if err = json.Unmarshal(body, &doc); err != nil {
		return nil, errors.Wrap(err, "decoding did:web document")
	}
	if doc.ID != id {
		return nil, errors.Errorf("did:web document id %q does not match %q", doc.ID, id)
	}
	return &doc, nil
}
