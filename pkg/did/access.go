package did

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"

	"github.com/goccy/go-json"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/mr-tron/base58"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-varint"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// multicodec identifiers https://github.com/multiformats/multicodec/blob/master/table.csv
const (
	Ed25519MultiCodec uint64 = 0xed
	P256MultiCodec    uint64 = 0x1200
)

// PublicKeyJWK returns the public key of the verification method identified by keyID as a JWK, with its kid set
// to the absolute verification method id.
func (d *Document) PublicKeyJWK(keyID string) (jwk.Key, error) {
	vm, err := d.VerificationMethodByID(keyID)
	if err != nil {
		return nil, err
	}
	key, err := vm.PublicKeyJWKKey()
	if err != nil {
		return nil, errors.Wrapf(err, "extracting key from verification method %s", vm.ID)
	}
	if err = key.Set(jwk.KeyIDKey, d.absoluteID(vm.ID)); err != nil {
		return nil, errors.Wrap(err, "setting kid")
	}
	return key, nil
}

// PublicKeyJWKKey decodes the verification method's key material, whatever its representation.
func (vm VerificationMethod) PublicKeyJWKKey() (jwk.Key, error) {
	switch {
	case vm.PublicKeyJWK != nil:
		jwkBytes, err := json.Marshal(vm.PublicKeyJWK)
		if err != nil {
			return nil, err
		}
		key, err := jwk.ParseKey(jwkBytes)
		if err != nil {
			return nil, errors.Wrap(err, "parsing publicKeyJwk")
		}
		if _, ok := key.(jwk.SymmetricKey); ok {
			return nil, errors.New("symmetric keys cannot be verification methods")
		}
		return jwk.PublicKeyOf(key)
	case vm.PublicKeyMultibase != "":
		codec, keyBytes, err := decodeMultibaseKey(vm.PublicKeyMultibase)
		if err != nil {
			return nil, err
		}
		return keyFromBytes(codec, vm.Type, keyBytes)
	case vm.PublicKeyBase58 != "":
		keyBytes, err := base58.Decode(vm.PublicKeyBase58)
		if err != nil {
			return nil, errors.Wrap(err, "decoding publicKeyBase58")
		}
		return keyFromBytes(0, vm.Type, keyBytes)
	}
	return nil, errors.New("no public key found in verification method")
}

// decodeMultibaseKey decodes a base58btc multibase value. If the value carries a known multicodec prefix the codec
// is returned alongside the stripped key bytes, otherwise codec is 0 and the bytes are returned as-is.
func decodeMultibaseKey(mb string) (uint64, []byte, error) {
	encoding, decoded, err := multibase.Decode(mb)
	if err != nil {
		logrus.WithError(err).Error("could not decode multibase key")
		return 0, nil, errors.Wrap(err, "decoding multibase key")
	}
	if encoding != multibase.Base58BTC {
		return 0, nil, errors.Errorf("expected base58btc multibase encoding but found %d", encoding)
	}

	codec, n, err := varint.FromUvarint(decoded)
	if err == nil && (codec == Ed25519MultiCodec || codec == P256MultiCodec) {
		return codec, decoded[n:], nil
	}
	return 0, decoded, nil
}

func keyFromBytes(codec uint64, vmType string, keyBytes []byte) (jwk.Key, error) {
	switch {
	case codec == Ed25519MultiCodec,
		codec == 0 && (vmType == Ed25519VerificationKey2018Type || vmType == Ed25519VerificationKey2020Type):
		if len(keyBytes) != ed25519.PublicKeySize {
			return nil, errors.Errorf("invalid ed25519 public key length: %d", len(keyBytes))
		}
		return jwk.FromRaw(ed25519.PublicKey(keyBytes))
	case codec == P256MultiCodec, codec == 0 && vmType == ECDSASECP256R1VerificationKey2019Type:
		pub, err := unmarshalP256(keyBytes)
		if err != nil {
			return nil, err
		}
		return jwk.FromRaw(pub)
	}
	return nil, errors.Errorf("unsupported key encoding for verification method type %q", vmType)
}

func unmarshalP256(keyBytes []byte) (*ecdsa.PublicKey, error) {
	curve := elliptic.P256()
	x, y := elliptic.UnmarshalCompressed(curve, keyBytes)
	if x == nil {
		x, y = elliptic.Unmarshal(curve, keyBytes) //nolint:staticcheck
	}
	if x == nil {
		return nil, errors.New("invalid P-256 public key")
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}

// AlgorithmForKey returns the JWS algorithm a public key verifies. An explicit alg on the key wins.
func AlgorithmForKey(key jwk.Key) (jwa.SignatureAlgorithm, error) {
	if alg := key.Algorithm(); alg != nil && alg.String() != "" {
		return jwa.SignatureAlgorithm(alg.String()), nil
	}
	switch k := key.(type) {
	case jwk.OKPPublicKey:
		if k.Crv() == jwa.Ed25519 {
			return jwa.EdDSA, nil
		}
	case jwk.ECDSAPublicKey:
		switch k.Crv() {
		case jwa.P256:
			return jwa.ES256, nil
		case jwa.P384:
			return jwa.ES384, nil
		case jwa.P521:
			return jwa.ES512, nil
		}
	case jwk.RSAPublicKey:
		return jwa.RS256, nil
	}
	return "", errors.Errorf("no signature algorithm for key type %s", key.KeyType())
}
