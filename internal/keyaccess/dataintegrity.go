package keyaccess

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gowebpki/jcs"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/pkg/errors"
)

const (
	JSONWebSignature2020 = "JsonWebSignature2020"

	AssertionMethod = "assertionMethod"
	Authentication  = "authentication"

	proofKey = "proof"
	jwsKey   = "jws"
)

// LDProof is a JsonWebSignature2020 proof https://w3c.github.io/vc-jws-2020/
type LDProof struct {
	Type               string `json:"type"`
	Created            string `json:"created,omitempty"`
	VerificationMethod string `json:"verificationMethod"`
	ProofPurpose       string `json:"proofPurpose"`
	Challenge          string `json:"challenge,omitempty"`
	Domain             string `json:"domain,omitempty"`
	JWS                string `json:"jws,omitempty"`
}

// DataIntegrityProof is a parsed, unverified data integrity proof.
type DataIntegrityProof struct {
	Proof        LDProof
	Algorithm    jwa.SignatureAlgorithm
	Signature    []byte
	SigningInput []byte
}

type detachedHeader struct {
	Alg  string   `json:"alg"`
	B64  *bool    `json:"b64"`
	Crit []string `json:"crit"`
}

// ProofOptions control the proof added by SignDataIntegrity.
type ProofOptions struct {
	Purpose   string
	Challenge string
	Domain    string
	Created   time.Time
}

// SignDataIntegrity adds a JsonWebSignature2020 proof to a JSON document and returns the signed document.
// Any existing proof is replaced.
func (ka CryptoKeyAccess) SignDataIntegrity(ctx context.Context, document []byte, opts ProofOptions) ([]byte, error) {
	var doc map[string]any
	if err := json.Unmarshal(document, &doc); err != nil {
		return nil, errors.Wrap(err, "document must be a json object")
	}
	delete(doc, proofKey)

	purpose := opts.Purpose
	if purpose == "" {
		purpose = AssertionMethod
	}
	created := opts.Created
	if created.IsZero() {
		created = time.Now()
	}
	proof := LDProof{
		Type:               JSONWebSignature2020,
		Created:            created.UTC().Format(time.RFC3339),
		VerificationMethod: ka.key.ID,
		ProofPurpose:       purpose,
		Challenge:          opts.Challenge,
		Domain:             opts.Domain,
	}

	headerBytes, err := json.Marshal(map[string]any{
		"alg":  ka.key.Algorithm.String(),
		"b64":  false,
		"crit": []string{"b64"},
	})
	if err != nil {
		return nil, err
	}
	encodedHeader := b64(headerBytes)

	payload, err := dataIntegrityPayload(proof, doc)
	if err != nil {
		return nil, err
	}
	signature, err := ka.sign(ctx, append([]byte(encodedHeader+"."), payload...))
	if err != nil {
		return nil, err
	}
	proof.JWS = encodedHeader + ".." + b64(signature)

	doc[proofKey] = proof
	signed, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling signed document")
	}
	return signed, nil
}

// ParseDataIntegrityProof extracts the proof from a signed JSON document and reconstructs the bytes its detached
// JWS was computed over. The proof is not verified.
func ParseDataIntegrityProof(document []byte) (*DataIntegrityProof, error) {
	var doc map[string]any
	if err := json.Unmarshal(document, &doc); err != nil {
		return nil, errors.Wrap(err, "document must be a json object")
	}
	rawProof, ok := doc[proofKey]
	if !ok {
		return nil, errors.New("document has no proof")
	}
	if proofs, isArray := rawProof.([]any); isArray {
		if len(proofs) != 1 {
			return nil, errors.Errorf("expected 1 proof, got %d", len(proofs))
		}
		rawProof = proofs[0]
	}
	proofBytes, err := json.Marshal(rawProof)
	if err != nil {
		return nil, err
	}
	var proof LDProof
	if err = json.Unmarshal(proofBytes, &proof); err != nil {
		return nil, errors.Wrap(err, "decoding proof")
	}
	if proof.Type != JSONWebSignature2020 {
		return nil, errors.Errorf("unsupported proof type: %q", proof.Type)
	}
	if proof.VerificationMethod == "" {
		return nil, errors.New("proof has no verificationMethod")
	}

	parts := strings.Split(proof.JWS, ".")
	if len(parts) != 3 || parts[1] != "" {
		return nil, errors.New("proof jws must be a detached compact jws")
	}
	headerBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, errors.Wrap(err, "decoding jws header")
	}
	var header detachedHeader
	if err = json.Unmarshal(headerBytes, &header); err != nil {
		return nil, errors.Wrap(err, "decoding jws header")
	}
	if header.Alg == "" {
		return nil, errors.New("jws header has no alg")
	}
	if header.B64 == nil || *header.B64 {
		return nil, errors.New("jws header must set b64 to false")
	}
	signature, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, errors.Wrap(err, "decoding jws signature")
	}

	delete(doc, proofKey)
	payload, err := dataIntegrityPayload(proof, doc)
	if err != nil {
		return nil, err
	}
	return &DataIntegrityProof{
		Proof:        proof,
		Algorithm:    jwa.SignatureAlgorithm(header.Alg),
		Signature:    signature,
		SigningInput: append([]byte(parts[0]+"."), payload...),
	}, nil
}

// dataIntegrityPayload is SHA-256(JCS(proof options)) || SHA-256(JCS(document without proof)).
func dataIntegrityPayload(proof LDProof, doc map[string]any) ([]byte, error) {
	proof.JWS = ""
	proofHash, err := canonicalHash(proof)
	if err != nil {
		return nil, errors.Wrap(err, "canonicalizing proof options")
	}
	docHash, err := canonicalHash(doc)
	if err != nil {
		return nil, errors.Wrap(err, "canonicalizing document")
	}
	return append(proofHash, docHash...), nil
}

func canonicalHash(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	canonical, err := jcs.Transform(data)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(canonical)
	return sum[:], nil
}
