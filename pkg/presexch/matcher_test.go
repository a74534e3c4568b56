package presexch

import (
	"encoding/base64"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbd54566975/ssi-wallet/pkg/credential"
	"github.com/tbd54566975/ssi-wallet/pkg/walleterror"
)

func ldCredential(t *testing.T, id, issuer string, subject map[string]any) *credential.Credential {
	doc := map[string]any{
		"@context":          []any{credential.CredentialsContext},
		"id":                id,
		"type":              []any{credential.VerifiableCredentialType, "DriversLicense"},
		"issuer":            issuer,
		"credentialSubject": subject,
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	cred, err := credential.ParseCredential(raw)
	require.NoError(t, err)
	return cred
}

// jwtCredential builds a VC-JWT with a placeholder signature; matching never checks it.
func jwtCredential(t *testing.T, id, issuer string, subject map[string]any) *credential.Credential {
	header, err := json.Marshal(map[string]any{"alg": "EdDSA", "kid": issuer + "#key-1", "typ": "JWT"})
	require.NoError(t, err)
	payload, err := json.Marshal(map[string]any{
		"iss": issuer,
		"jti": id,
		"vc": map[string]any{
			"@context":          []any{credential.CredentialsContext},
			"type":              []any{credential.VerifiableCredentialType, "DriversLicense"},
			"credentialSubject": subject,
		},
	})
	require.NoError(t, err)
	enc := base64.RawURLEncoding
	raw := enc.EncodeToString(header) + "." + enc.EncodeToString(payload) + "." + enc.EncodeToString([]byte("sig"))
	cred, err := credential.ParseCredential([]byte(raw))
	require.NoError(t, err)
	return cred
}

func definition(t *testing.T, raw string) *PresentationDefinition {
	def, err := ParseDefinition([]byte(raw))
	require.NoError(t, err)
	return def
}

const licenseDefinition = `{
	"id": "license-check",
	"input_descriptors": [{
		"id": "license",
		"constraints": {
			"fields": [
				{"path": ["$.credentialSubject.licenseClass", "$.vc.credentialSubject.licenseClass"], "filter": {"type": "string", "enum": ["B", "C"]}},
				{"path": ["$.credentialSubject.age"], "filter": {"type": "number", "minimum": 18}}
			]
		}
	}]
}`

func TestMatch(t *testing.T) {
	m := NewMatcher()
	def := definition(t, licenseDefinition)

	minor := ldCredential(t, "urn:uuid:minor", "did:example:dmv", map[string]any{"licenseClass": "B", "age": 16})
	truck := ldCredential(t, "urn:uuid:truck", "did:example:dmv", map[string]any{"licenseClass": "C", "age": 40})
	car := ldCredential(t, "urn:uuid:car", "did:example:dmv", map[string]any{"licenseClass": "B", "age": 30})
	boat := ldCredential(t, "urn:uuid:boat", "did:example:dmv", map[string]any{"licenseClass": "Boat", "age": 50})

	t.Run("no qualifying candidate", func(tt *testing.T) {
		_, err := m.Match(def, []*credential.Credential{minor, boat}, MatchOptions{})
		require.Error(tt, err)
		assert.True(tt, walleterror.IsKind(err, walleterror.Unsatisfiable))
		assert.Contains(tt, err.Error(), "license")
	})

	t.Run("no candidates", func(tt *testing.T) {
		_, err := m.Match(def, nil, MatchOptions{})
		assert.True(tt, walleterror.IsKind(err, walleterror.Unsatisfiable))
	})

	t.Run("single qualifying candidate", func(tt *testing.T) {
		got, err := m.Match(def, []*credential.Credential{minor, car, boat}, MatchOptions{})
		require.NoError(tt, err)
		assert.Equal(tt, []*credential.Credential{car}, got)
	})

	t.Run("first qualifying candidate wins", func(tt *testing.T) {
		got, err := m.Match(def, []*credential.Credential{truck, car}, MatchOptions{})
		require.NoError(tt, err)
		assert.Equal(tt, []*credential.Credential{truck}, got)
	})

	t.Run("select all keeps candidate order", func(tt *testing.T) {
		got, err := m.Match(def, []*credential.Credential{car, minor, truck}, MatchOptions{SelectAll: true})
		require.NoError(tt, err)
		assert.Equal(tt, []*credential.Credential{car, truck}, got)
	})

	t.Run("jwt credentials match on vc paths", func(tt *testing.T) {
		jwtCar := jwtCredential(tt, "urn:uuid:jwt-car", "did:example:dmv", map[string]any{"licenseClass": "B", "age": 30})
		got, err := m.Match(def, []*credential.Credential{jwtCar}, MatchOptions{})
		require.NoError(tt, err)
		assert.Equal(tt, []*credential.Credential{jwtCar}, got)
	})
}

func TestMatchPathSelection(t *testing.T) {
	m := NewMatcher()
	graded := ldCredential(t, "urn:uuid:graded", "did:example:school", map[string]any{
		"urn:example:grade": "A",
		"scores":            []any{95, 10},
	})

	t.Run("colon in a key selects one value", func(tt *testing.T) {
		def := definition(tt, `{"id": "grade", "input_descriptors": [{"id": "grade", "constraints": {"fields": [
			{"path": ["$.credentialSubject.urn:example:grade"], "filter": {"type": "string", "const": "A"}}
		]}}]}`)
		got, err := m.Match(def, []*credential.Credential{graded}, MatchOptions{})
		require.NoError(tt, err)
		assert.Equal(tt, []*credential.Credential{graded}, got)
	})

	t.Run("range selects several values", func(tt *testing.T) {
		def := definition(tt, `{"id": "scores", "input_descriptors": [{"id": "scores", "constraints": {"fields": [
			{"path": ["$.credentialSubject.scores[0:1]"], "filter": {"type": "number", "minimum": 90}}
		]}}]}`)
		got, err := m.Match(def, []*credential.Credential{graded}, MatchOptions{})
		require.NoError(tt, err)
		assert.Equal(tt, []*credential.Credential{graded}, got)
	})

	tests := map[string]bool{
		"$.credentialSubject.urn:example:grade": false,
		"$.credentialSubject.age":               false,
		"$.credentialSubject.scores[0]":         false,
		"$.credentialSubject.scores[0:2]":       true,
		"$.credentialSubject.scores[0,1]":       true,
		"$.credentialSubject.scores[*]":         true,
		"$.type[?(@ == 'DriversLicense')]":      true,
		"$..id":                                 true,
	}
	for path, want := range tests {
		assert.Equal(t, want, selectsMany(path), path)
	}
}

func TestMatchDescriptors(t *testing.T) {
	m := NewMatcher()
	def := definition(t, `{
		"id": "kyc",
		"input_descriptors": [
			{"id": "name", "constraints": {"fields": [{"path": ["$.credentialSubject.name"]}]}},
			{"id": "address", "optional": true, "constraints": {"fields": [{"path": ["$.credentialSubject.address"]}]}},
			{"id": "age", "constraints": {"fields": [{"path": ["$.credentialSubject.age"], "filter": {"type": "number", "minimum": 21}}]}}
		]
	}`)
	both := ldCredential(t, "urn:uuid:both", "did:example:gov", map[string]any{"name": "Alice", "age": 30})
	nameOnly := ldCredential(t, "urn:uuid:name", "did:example:gov", map[string]any{"name": "Alice"})

	t.Run("optional unmet descriptor is absent", func(tt *testing.T) {
		matches, err := m.MatchDescriptors(def, []*credential.Credential{nameOnly, both}, MatchOptions{SelectAll: true})
		require.NoError(tt, err)
		require.Len(tt, matches, 2)
		assert.Equal(tt, "name", matches[0].DescriptorID)
		assert.Equal(tt, []*credential.Credential{nameOnly, both}, matches[0].Credentials)
		assert.Equal(tt, "age", matches[1].DescriptorID)
		assert.Equal(tt, []*credential.Credential{both}, matches[1].Credentials)
	})

	t.Run("credential selected twice appears once", func(tt *testing.T) {
		got, err := m.Match(def, []*credential.Credential{both}, MatchOptions{})
		require.NoError(tt, err)
		assert.Equal(tt, []*credential.Credential{both}, got)
	})

	t.Run("result follows descriptor order", func(tt *testing.T) {
		got, err := m.Match(def, []*credential.Credential{both, nameOnly}, MatchOptions{SelectAll: true})
		require.NoError(tt, err)
		assert.Equal(tt, []*credential.Credential{both, nameOnly}, got)
	})

	t.Run("unmet required descriptor", func(tt *testing.T) {
		_, err := m.MatchDescriptors(def, []*credential.Credential{nameOnly}, MatchOptions{})
		require.Error(tt, err)
		assert.True(tt, walleterror.IsKind(err, walleterror.Unsatisfiable))
		assert.Contains(tt, err.Error(), "age")
	})
}

func TestMatchFormatAndIssuer(t *testing.T) {
	m := NewMatcher()
	subject := map[string]any{"licenseClass": "B"}
	ld := ldCredential(t, "urn:uuid:ld", "did:example:dmv", subject)
	jwtCred := jwtCredential(t, "urn:uuid:jwt", "did:example:dmv", subject)
	other := ldCredential(t, "urn:uuid:other", "did:example:forger", subject)

	tests := []struct {
		name       string
		definition string
		want       []*credential.Credential
	}{
		{
			name:       "format allow-list",
			definition: `{"id":"d","input_descriptors":[{"id":"a","format":{"jwt_vc_json":{"alg":["EdDSA"]}},"constraints":{}}]}`,
			want:       []*credential.Credential{jwtCred},
		},
		{
			name:       "definition level format",
			definition: `{"id":"d","format":{"ldp_vc":{}},"input_descriptors":[{"id":"a","constraints":{}}]}`,
			want:       []*credential.Credential{ld, other},
		},
		{
			name:       "algorithm not allowed",
			definition: `{"id":"d","input_descriptors":[{"id":"a","optional":true,"format":{"jwt_vc_json":{"alg":["ES256"]}},"constraints":{}}]}`,
			want:       nil,
		},
		{
			name:       "issuer allow-list",
			definition: `{"id":"d","input_descriptors":[{"id":"a","issuers":["did:example:dmv"],"constraints":{}}]}`,
			want:       []*credential.Credential{ld, jwtCred},
		},
		{
			name:       "optional field ignored",
			definition: `{"id":"d","input_descriptors":[{"id":"a","issuers":["did:example:forger"],"constraints":{"fields":[{"path":["$.credentialSubject.missing"],"optional":true}]}}]}`,
			want:       []*credential.Credential{other},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(tt *testing.T) {
			got, err := m.Match(definition(tt, test.definition), []*credential.Credential{ld, jwtCred, other}, MatchOptions{SelectAll: true})
			require.NoError(tt, err)
			assert.Equal(tt, test.want, got)
		})
	}
}

func TestMatchMalformedDefinition(t *testing.T) {
	m := NewMatcher()
	cred := ldCredential(t, "urn:uuid:1", "did:example:dmv", map[string]any{"name": "Alice"})

	tests := map[string]string{
		"no descriptors":     `{"id":"d","input_descriptors":[]}`,
		"no id":              `{"input_descriptors":[{"id":"a","constraints":{}}]}`,
		"descriptor no id":   `{"id":"d","input_descriptors":[{"constraints":{}}]}`,
		"duplicate ids":      `{"id":"d","input_descriptors":[{"id":"a","constraints":{}},{"id":"a","constraints":{}}]}`,
		"field without path": `{"id":"d","input_descriptors":[{"id":"a","constraints":{"fields":[{"path":[]}]}}]}`,
		"bad path":           `{"id":"d","input_descriptors":[{"id":"a","constraints":{"fields":[{"path":["credentialSubject"]}]}}]}`,
		"bad filter":         `{"id":"d","input_descriptors":[{"id":"a","constraints":{"fields":[{"path":["$.id"],"filter":{"type":12}}]}}]}`,
	}
	for name, raw := range tests {
		t.Run(name, func(tt *testing.T) {
			_, err := m.Match(definition(tt, raw), []*credential.Credential{cred}, MatchOptions{})
			require.Error(tt, err)
			assert.True(tt, walleterror.IsKind(err, walleterror.MalformedInput), err)
		})
	}

	_, err := m.Match(nil, []*credential.Credential{cred}, MatchOptions{})
	assert.True(t, walleterror.IsKind(err, walleterror.MalformedInput))
}

func TestMatchBytes(t *testing.T) {
	m := NewMatcher()
	car := ldCredential(t, "urn:uuid:car", "did:example:dmv", map[string]any{"licenseClass": "B", "age": 30})
	minor := ldCredential(t, "urn:uuid:minor", "did:example:dmv", map[string]any{"licenseClass": "B", "age": 15})
	jwtCar := jwtCredential(t, "urn:uuid:jwt-car", "did:example:dmv", map[string]any{"licenseClass": "C", "age": 33})

	t.Run("credential array", func(tt *testing.T) {
		jwtString, err := json.Marshal(string(jwtCar.Raw))
		require.NoError(tt, err)
		candidates := "[" + string(minor.Raw) + "," + string(jwtString) + "," + string(car.Raw) + "]"

		got, err := m.MatchBytes([]byte(licenseDefinition), []byte(candidates), MatchOptions{SelectAll: true})
		require.NoError(tt, err)
		assert.Equal(tt, [][]byte{jwtCar.Raw, car.Raw}, got)
	})

	t.Run("presentation", func(tt *testing.T) {
		pres := `{"type":["VerifiablePresentation"],"holder":"did:example:holder","verifiableCredential":[` +
			string(minor.Raw) + `,` + string(car.Raw) + `]}`
		wrapped := `{"presentation_definition":` + licenseDefinition + `}`

		got, err := m.MatchBytes([]byte(wrapped), []byte(pres), MatchOptions{})
		require.NoError(tt, err)
		require.Len(tt, got, 1)
		again, err := credential.ParseCredential(got[0])
		require.NoError(tt, err)
		assert.Equal(tt, "urn:uuid:car", again.ID)
	})

	t.Run("malformed", func(tt *testing.T) {
		_, err := m.MatchBytes([]byte("{"), []byte("[]"), MatchOptions{})
		assert.True(tt, walleterror.IsKind(err, walleterror.MalformedInput))

		_, err = m.MatchBytes([]byte(licenseDefinition), []byte("[1]"), MatchOptions{})
		assert.True(tt, walleterror.IsKind(err, walleterror.MalformedInput))
	})

	t.Run("unsatisfiable", func(tt *testing.T) {
		_, err := m.MatchBytes([]byte(licenseDefinition), []byte("["+string(minor.Raw)+"]"), MatchOptions{})
		assert.True(tt, walleterror.IsKind(err, walleterror.Unsatisfiable))
	})
}
