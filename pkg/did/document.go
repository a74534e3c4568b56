package did

import (
	"strings"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

const (
	KnownDIDContext = "https://www.w3.org/ns/did/v1"

	JSONWebKey2020Type                    = "JsonWebKey2020"
	Ed25519VerificationKey2018Type        = "Ed25519VerificationKey2018"
	Ed25519VerificationKey2020Type        = "Ed25519VerificationKey2020"
	ECDSASECP256R1VerificationKey2019Type = "EcdsaSecp256r1VerificationKey2019"
	MultikeyType                          = "Multikey"
)

var (
	// ErrNotFound is returned when a DID cannot be resolved to a document.
	ErrNotFound = errors.New("did not found")
	// ErrKeyNotFound is returned when a document has no verification method with the requested id.
	ErrKeyNotFound = errors.New("verification method not found")
	// ErrUnsupportedMethod is returned when no resolver handles a DID's method.
	ErrUnsupportedMethod = errors.New("unsupported did method")
)

// Document is a DID Document https://www.w3.org/TR/did-core/#did-documents
type Document struct {
	Context            any                     `json:"@context,omitempty"`
	ID                 string                  `json:"id" validate:"required"`
	Controller         any                     `json:"controller,omitempty"`
	AlsoKnownAs        []string                `json:"alsoKnownAs,omitempty"`
	VerificationMethod []VerificationMethod    `json:"verificationMethod,omitempty"`
	Authentication     []VerificationMethodRef `json:"authentication,omitempty"`
	AssertionMethod    []VerificationMethodRef `json:"assertionMethod,omitempty"`
	Service            []Service               `json:"service,omitempty"`
}

// VerificationMethod holds key material in one of the JWK, multibase or base58 representations.
type VerificationMethod struct {
	ID                 string         `json:"id" validate:"required"`
	Type               string         `json:"type" validate:"required"`
	Controller         string         `json:"controller,omitempty"`
	PublicKeyJWK       map[string]any `json:"publicKeyJwk,omitempty"`
	PublicKeyMultibase string         `json:"publicKeyMultibase,omitempty"`
	PublicKeyBase58    string         `json:"publicKeyBase58,omitempty"`
}

type Service struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	ServiceEndpoint any    `json:"serviceEndpoint"`
}

// VerificationMethodRef is an entry of a verification relationship. It is either a reference to a
// verification method by id or an embedded verification method.
type VerificationMethodRef struct {
	ID       string
	Embedded *VerificationMethod
}

func (r VerificationMethodRef) MarshalJSON() ([]byte, error) {
	if r.Embedded != nil {
		return json.Marshal(r.Embedded)
	}
	return json.Marshal(r.ID)
}

func (r *VerificationMethodRef) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		r.ID = id
		return nil
	}
	var vm VerificationMethod
	if err := json.Unmarshal(data, &vm); err != nil {
		return errors.Wrap(err, "verification relationship must be a string or a verification method")
	}
	r.ID = vm.ID
	r.Embedded = &vm
	return nil
}

// IsEmpty reports whether the document has no id.
func (d *Document) IsEmpty() bool {
	return d == nil || d.ID == ""
}

// VerificationMethodByID finds a verification method by absolute DID URL or by relative fragment (#key-1).
// Embedded methods in verification relationships are searched too.
func (d *Document) VerificationMethodByID(id string) (*VerificationMethod, error) {
	if d.IsEmpty() {
		return nil, errors.New("empty did document")
	}
	candidates := make([]VerificationMethod, 0, len(d.VerificationMethod))
	candidates = append(candidates, d.VerificationMethod...)
	for _, refs := range [][]VerificationMethodRef{d.Authentication, d.AssertionMethod} {
		for _, ref := range refs {
			if ref.Embedded != nil {
				candidates = append(candidates, *ref.Embedded)
			}
		}
	}

	want := d.absoluteID(id)
	for i := range candidates {
		if d.absoluteID(candidates[i].ID) == want {
			return &candidates[i], nil
		}
	}
	return nil, errors.Wrapf(ErrKeyNotFound, "%s in document %s", id, d.ID)
}

func (d *Document) absoluteID(id string) string {
	if strings.HasPrefix(id, "#") {
		return d.ID + id
	}
	return id
}

// VerificationMethodIDs returns the ids of all verification methods in the document
func (d *Document) VerificationMethodIDs() []string {
	ids := make([]string, 0, len(d.VerificationMethod))
	for _, vm := range d.VerificationMethod {
		ids = append(ids, d.absoluteID(vm.ID))
	}
	return ids
}

func singleKeyDocument(id string, vm VerificationMethod) *Document {
	ref := []VerificationMethodRef{{ID: vm.ID}}
	return &Document{
		Context:            []string{KnownDIDContext, "https://w3id.org/security/suites/jws-2020/v1"},
		ID:                 id,
		VerificationMethod: []VerificationMethod{vm},
		Authentication:     ref,
		AssertionMethod:    ref,
	}
}
