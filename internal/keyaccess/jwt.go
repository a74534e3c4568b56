package keyaccess

import (
	"context"
	"strings"

	"github.com/goccy/go-json"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/pkg/errors"
)

type JWT string

func (j JWT) String() string {
	return string(j)
}

func (j JWT) Ptr() *JWT {
	return &j
}

// IsCompactJWS reports whether data looks like a compact serialized JWS (three dot separated segments).
func IsCompactJWS(data []byte) bool {
	s := strings.TrimSpace(string(data))
	return strings.Count(s, ".") == 2 && !strings.ContainsAny(s, "{ \n")
}

// CompactJWS is a parsed compact serialized JWS. Nothing about it has been verified.
type CompactJWS struct {
	Headers      jws.Headers
	Payload      []byte
	Signature    []byte
	SigningInput []byte
}

// ParseCompactJWS splits a compact JWS into its protected header, payload and signature. The signing input is
// BASE64URL(header) "." BASE64URL(payload) exactly as it appears in the token.
func ParseCompactJWS(token string) (*CompactJWS, error) {
	token = strings.TrimSpace(token)
	if strings.Count(token, ".") != 2 {
		return nil, errors.New("compact jws must have three segments")
	}
	msg, err := jws.Parse([]byte(token))
	if err != nil {
		return nil, errors.Wrap(err, "parsing compact jws")
	}
	signatures := msg.Signatures()
	if len(signatures) != 1 {
		return nil, errors.Errorf("expected 1 signature, got %d", len(signatures))
	}
	sig := signatures[0]
	if sig.ProtectedHeaders().Algorithm() == "" {
		return nil, errors.New("jws protected header has no alg")
	}
	return &CompactJWS{
		Headers:      sig.ProtectedHeaders(),
		Payload:      msg.Payload(),
		Signature:    sig.Signature(),
		SigningInput: []byte(token[:strings.LastIndex(token, ".")]),
	}, nil
}

// SignJWS produces a compact JWS over payload. The protected header carries alg and kid from the key handle, the
// given typ when non-empty, and any extra headers.
func (ka CryptoKeyAccess) SignJWS(ctx context.Context, typ string, extraHeaders map[string]any, payload []byte) (*JWT, error) {
	if payload == nil {
		return nil, errors.New("payload cannot be nil")
	}
	headers := make(map[string]any, len(extraHeaders)+3)
	for k, v := range extraHeaders {
		headers[k] = v
	}
	headers[jws.AlgorithmKey] = ka.key.Algorithm.String()
	headers[jws.KeyIDKey] = ka.key.ID
	if typ != "" {
		headers[jws.TypeKey] = typ
	}
	headerBytes, err := json.Marshal(headers)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling jws header")
	}

	signingInput := b64(headerBytes) + "." + b64(payload)
	signature, err := ka.sign(ctx, []byte(signingInput))
	if err != nil {
		return nil, err
	}
	return JWT(signingInput + "." + b64(signature)).Ptr(), nil
}

// SignJSON serializes data and signs it as a JWT.
func (ka CryptoKeyAccess) SignJSON(ctx context.Context, typ string, data any) (*JWT, error) {
	if data == nil {
		return nil, errors.New("data cannot be nil")
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling jwt claims")
	}
	return ka.SignJWS(ctx, typ, nil, payload)
}
