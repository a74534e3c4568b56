package verifier

import (
	"context"
	"io"
	"net/http"

	credsdk "github.com/TBD54566975/ssi-sdk/credential"
	statussdk "github.com/TBD54566975/ssi-sdk/credential/status"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbd54566975/ssi-wallet/internal/util"
	"github.com/tbd54566975/ssi-wallet/pkg/credential"
	"github.com/tbd54566975/ssi-wallet/pkg/walleterror"
)

// statusListEntry is the part of a credentialStatus entry needed to find the status list.
type statusListEntry struct {
	Type                 string `json:"type"`
	StatusPurpose        string `json:"statusPurpose"`
	StatusListCredential string `json:"statusListCredential"`
}

// checkStatus looks the credential up in the StatusList2021 credential its credentialStatus entry points to. It
// reports false when the credential carries no status entry of a supported type.
func (v *Verifier) checkStatus(ctx context.Context, cred *credential.Credential) (bool, *walleterror.Error) {
	if cred.Status == nil {
		return false, nil
	}
	var entry statusListEntry
	if err := remarshal(cred.Status, &entry); err != nil {
		return true, walleterror.Wrap(walleterror.MalformedInput, err, "reading credentialStatus")
	}
	if entry.Type != statussdk.StatusList2021EntryType {
		logrus.WithContext(ctx).Debugf("credential %s has status of unsupported type %q, not checked", cred.ID, entry.Type)
		return false, nil
	}
	if entry.StatusListCredential == "" {
		return true, walleterror.New(walleterror.MalformedInput, "credentialStatus has no statusListCredential")
	}

	list, werr := v.fetchStatusList(ctx, entry.StatusListCredential)
	if werr != nil {
		return true, werr
	}
	if werr = v.checkCredentialProof(ctx, list); werr != nil {
		return true, walleterror.Wrapf(werr.Kind, werr, "status list credential %s", entry.StatusListCredential)
	}

	var target, statusList credsdk.VerifiableCredential
	if err := remarshal(cred.Document(), &target); err != nil {
		return true, walleterror.Wrap(walleterror.MalformedInput, err, "reading credential")
	}
	if err := remarshal(list.Document(), &statusList); err != nil {
		return true, walleterror.Wrap(walleterror.MalformedInput, err, "reading status list credential")
	}
	set, err := statussdk.ValidateCredentialInStatusList(target, statusList)
	if err != nil {
		return true, walleterror.Wrapf(walleterror.MalformedInput, err, "checking status list %s", entry.StatusListCredential)
	}
	if set {
		return true, walleterror.Newf(walleterror.Revoked, "credential %s has status %s", cred.ID, entry.StatusPurpose)
	}
	return true, nil
}

func (v *Verifier) fetchStatusList(ctx context.Context, target string) (*credential.Credential, *walleterror.Error) {
	ctx, span := v.tracer.Start(ctx, "StatusList.Get", trace.WithAttributes(attribute.String("http.url", target)))
	defer span.End()

	logrus.WithContext(ctx).WithField("url", util.SanitizeLog(target)).Debug("fetching status list")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, walleterror.Wrapf(walleterror.MalformedInput, err, "status list url %s", target)
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, walleterror.Collaborator("StatusList.Get", target, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, walleterror.Collaborator("StatusList.Get", target, err)
	}
	if !util.Is2xxResponse(resp.StatusCode) {
		span.SetStatus(codes.Error, resp.Status)
		return nil, walleterror.Collaborator("StatusList.Get", target, errors.Errorf("status %d", resp.StatusCode))
	}

	list, err := credential.ParseCredential(body)
	if err != nil {
		return nil, walleterror.Wrapf(walleterror.MalformedInput, err, "parsing status list credential %s", target)
	}
	return list, nil
}

func remarshal(in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
