// Package presexch selects, from the credentials a holder has, those that satisfy a DIF Presentation Exchange
// presentation definition. Matching is purely structural: no signatures are checked and nothing is fetched.
package presexch

import (
	"bytes"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/ssi-wallet/pkg/credential"
	"github.com/tbd54566975/ssi-wallet/pkg/walleterror"
)

// MatchOptions tunes a match.
type MatchOptions struct {
	// SelectAll collects every satisfying candidate per descriptor instead of the first.
	SelectAll bool
}

// DescriptorMatch is the set of candidates selected for one input descriptor.
type DescriptorMatch struct {
	DescriptorID string
	Credentials  []*credential.Credential
}

// Matcher evaluates presentation definitions. It holds no state and is safe for concurrent use.
type Matcher struct{}

func NewMatcher() *Matcher {
	return &Matcher{}
}

// MatchDescriptors returns, in declared order, the candidates selected for every descriptor that has at least
// one. A required descriptor with no candidate fails the match with Unsatisfiable.
func (m *Matcher) MatchDescriptors(def *PresentationDefinition, candidates []*credential.Credential, opts MatchOptions) ([]DescriptorMatch, error) {
	compiled, err := compile(def)
	if err != nil {
		return nil, walleterror.Wrap(walleterror.MalformedInput, err, "invalid presentation definition")
	}

	var matches []DescriptorMatch
	for _, descriptor := range compiled.descriptors {
		selected := descriptor.selectFrom(candidates, opts.SelectAll)
		if len(selected) == 0 {
			if descriptor.Optional {
				logrus.Debugf("skipping unmet optional input descriptor<%s>", descriptor.ID)
				continue
			}
			return nil, walleterror.Newf(walleterror.Unsatisfiable, "no credential satisfies input descriptor %s", descriptor.ID)
		}
		matches = append(matches, DescriptorMatch{DescriptorID: descriptor.ID, Credentials: selected})
	}
	return matches, nil
}

// Match returns the selected credentials in descriptor order. A credential selected by several descriptors
// appears once, at its first position.
func (m *Matcher) Match(def *PresentationDefinition, candidates []*credential.Credential, opts MatchOptions) ([]*credential.Credential, error) {
	matches, err := m.MatchDescriptors(def, candidates, opts)
	if err != nil {
		return nil, err
	}
	seen := make(map[*credential.Credential]bool)
	var result []*credential.Credential
	for _, match := range matches {
		for _, cred := range match.Credentials {
			if seen[cred] {
				continue
			}
			seen[cred] = true
			result = append(result, cred)
		}
	}
	return result, nil
}

// MatchBytes matches serialized inputs. candidates is either a presentation (JWT or JSON) or a JSON array of
// credentials; the raw bytes of the selected credentials are returned.
func (m *Matcher) MatchBytes(definition, candidates []byte, opts MatchOptions) ([][]byte, error) {
	def, err := ParseDefinition(definition)
	if err != nil {
		return nil, walleterror.Wrap(walleterror.MalformedInput, err, "parsing presentation definition")
	}
	creds, err := parseCandidates(candidates)
	if err != nil {
		return nil, walleterror.Wrap(walleterror.MalformedInput, err, "parsing candidate credentials")
	}
	selected, err := m.Match(def, creds, opts)
	if err != nil {
		return nil, err
	}
	result := make([][]byte, 0, len(selected))
	for _, cred := range selected {
		result = append(result, cred.Raw)
	}
	return result, nil
}

func parseCandidates(data []byte) ([]*credential.Credential, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		pres, err := credential.ParsePresentation(data)
		if err != nil {
			return nil, err
		}
		return pres.Credentials, nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errors.Wrap(err, "decoding credential array")
	}
	creds := make([]*credential.Credential, 0, len(entries))
	for i, entry := range entries {
		cred, err := credential.ParseCredential(entry)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing credential[%d]", i)
		}
		creds = append(creds, cred)
	}
	return creds, nil
}

func (d compiledDescriptor) selectFrom(candidates []*credential.Credential, all bool) []*credential.Credential {
	var selected []*credential.Credential
	for _, cred := range candidates {
		if !d.satisfiedBy(cred) {
			continue
		}
		selected = append(selected, cred)
		if !all {
			break
		}
	}
	return selected
}

func (d compiledDescriptor) satisfiedBy(cred *credential.Credential) bool {
	if cred == nil || !d.format.allows(cred) {
		return false
	}
	if len(d.Issuers) > 0 && !contains(d.Issuers, cred.Issuer) {
		return false
	}
	for _, field := range d.fields {
		if !field.matches(cred.Document(), cred.JWTClaims()) {
			return false
		}
	}
	return true
}
