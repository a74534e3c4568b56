package presexch

import (
	"bytes"
	"strings"

	"github.com/goccy/go-json"
	"github.com/oliveagle/jsonpath"
	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/tbd54566975/ssi-wallet/internal/util"
	"github.com/tbd54566975/ssi-wallet/pkg/credential"
)

// PresentationDefinition is a DIF Presentation Exchange v2 presentation definition.
type PresentationDefinition struct {
	ID               string            `json:"id" validate:"required"`
	Name             string            `json:"name,omitempty"`
	Purpose          string            `json:"purpose,omitempty"`
	Format           ClaimFormat       `json:"format,omitempty"`
	InputDescriptors []InputDescriptor `json:"input_descriptors" validate:"required,min=1,dive"`
}

// InputDescriptor describes one credential the verifier asks for. Optional and Issuers are wallet extensions: an
// optional descriptor may go unmet and a non-empty Issuers restricts which issuers may satisfy it.
type InputDescriptor struct {
	ID          string      `json:"id" validate:"required"`
	Name        string      `json:"name,omitempty"`
	Purpose     string      `json:"purpose,omitempty"`
	Format      ClaimFormat `json:"format,omitempty"`
	Constraints Constraints `json:"constraints"`
	Optional    bool        `json:"optional,omitempty"`
	Issuers     []string    `json:"issuers,omitempty"`
}

type Constraints struct {
	Fields []Field `json:"fields,omitempty" validate:"dive"`
}

// Field is a set of alternative JSONPath expressions; the first that resolves is checked against Filter.
type Field struct {
	ID       string          `json:"id,omitempty"`
	Path     []string        `json:"path" validate:"required,min=1"`
	Purpose  string          `json:"purpose,omitempty"`
	Filter   json.RawMessage `json:"filter,omitempty"`
	Optional bool            `json:"optional,omitempty"`
}

// ClaimFormat maps an accepted format to its allowed algorithms or proof types. An empty map accepts any format.
type ClaimFormat map[string]FormatConstraint

type FormatConstraint struct {
	Alg       []string `json:"alg,omitempty"`
	ProofType []string `json:"proof_type,omitempty"`
}

// ParseDefinition decodes and validates a presentation definition. A bare definition and one wrapped in a
// presentation_definition member are both accepted.
func ParseDefinition(data []byte) (*PresentationDefinition, error) {
	var wrapper struct {
		Definition *PresentationDefinition `json:"presentation_definition"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, errors.Wrap(err, "decoding presentation definition")
	}
	def := wrapper.Definition
	if def == nil {
		def = new(PresentationDefinition)
		if err := json.Unmarshal(data, def); err != nil {
			return nil, errors.Wrap(err, "decoding presentation definition")
		}
	}
	return def, nil
}

// formatAliases lists the format identifiers accepted for each credential format.
var formatAliases = map[credential.Format][]string{
	credential.JWTVCJSON: {string(credential.JWTVCJSON), "jwt_vc", "jwt"},
	credential.LDPVC:     {string(credential.LDPVC), "ldp"},
}

func (f ClaimFormat) allows(cred *credential.Credential) bool {
	if len(f) == 0 {
		return true
	}
	for _, alias := range formatAliases[cred.Format] {
		constraint, ok := f[alias]
		if !ok {
			continue
		}
		if len(constraint.Alg) > 0 && (cred.Proof == nil || !contains(constraint.Alg, cred.Proof.Algorithm.String())) {
			continue
		}
		if len(constraint.ProofType) > 0 && (cred.Proof == nil || !contains(constraint.ProofType, cred.Proof.Type)) {
			continue
		}
		return true
	}
	return false
}

// compiledDefinition is a definition whose paths and filters have been compiled.
type compiledDefinition struct {
	def         *PresentationDefinition
	descriptors []compiledDescriptor
}

type compiledDescriptor struct {
	*InputDescriptor
	format ClaimFormat
	fields []compiledField
}

type compiledField struct {
	paths  []compiledPath
	filter *jsonschema.Schema
}

type compiledPath struct {
	expr     string
	lookup   *jsonpath.Compiled
	multiple bool
}

func compile(def *PresentationDefinition) (*compiledDefinition, error) {
	if def == nil {
		return nil, errors.New("presentation definition is required")
	}
	if err := util.IsValidStruct(def); err != nil {
		return nil, errors.Wrap(err, "invalid presentation definition")
	}
	compiled := &compiledDefinition{def: def, descriptors: make([]compiledDescriptor, 0, len(def.InputDescriptors))}
	seen := make(map[string]bool, len(def.InputDescriptors))
	for i := range def.InputDescriptors {
		descriptor := &def.InputDescriptors[i]
		if seen[descriptor.ID] {
			return nil, errors.Errorf("duplicate input descriptor id<%s>", descriptor.ID)
		}
		seen[descriptor.ID] = true

		cd := compiledDescriptor{InputDescriptor: descriptor, format: descriptor.Format}
		if len(cd.format) == 0 {
			cd.format = def.Format
		}
		for j, field := range descriptor.Constraints.Fields {
			if field.Optional {
				continue
			}
			cf, err := compileField(field)
			if err != nil {
				return nil, errors.Wrapf(err, "input descriptor<%s> field[%d]", descriptor.ID, j)
			}
			cd.fields = append(cd.fields, *cf)
		}
		compiled.descriptors = append(compiled.descriptors, cd)
	}
	return compiled, nil
}

func compileField(field Field) (*compiledField, error) {
	cf := new(compiledField)
	for _, p := range field.Path {
		lookup, err := jsonpath.Compile(p)
		if err != nil {
			return nil, errors.Wrapf(err, "compiling path %q", p)
		}
		cf.paths = append(cf.paths, compiledPath{
			expr:     p,
			lookup:   lookup,
			multiple: selectsMany(p),
		})
	}
	if len(bytes.TrimSpace(field.Filter)) > 0 {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft7
		const url = "filter.json"
		if err := compiler.AddResource(url, bytes.NewReader(field.Filter)); err != nil {
			return nil, errors.Wrap(err, "reading filter")
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			return nil, errors.Wrap(err, "compiling filter")
		}
		cf.filter = schema
	}
	return cf, nil
}

// selectsMany reports whether path can select several values: a wildcard, a recursive descent, or a filter, index
// list or range in brackets. A colon outside brackets is part of a key.
func selectsMany(path string) bool {
	if strings.Contains(path, "*") || strings.Contains(path, "..") {
		return true
	}
	for rest := path; ; {
		open := strings.IndexByte(rest, '[')
		if open < 0 {
			return false
		}
		end := strings.IndexByte(rest[open:], ']')
		if end < 0 {
			return false
		}
		if segment := rest[open+1 : open+end]; strings.HasPrefix(segment, "?") || strings.ContainsAny(segment, ":,") {
			return true
		}
		rest = rest[open+end+1:]
	}
}

// matches reports whether any of the field's paths resolves in one of the documents to a value that passes the
// filter. The first path that resolves decides.
func (f compiledField) matches(docs ...map[string]any) bool {
	for _, p := range f.paths {
		for _, doc := range docs {
			if doc == nil {
				continue
			}
			value, err := p.lookup.Lookup(doc)
			if err != nil {
				continue
			}
			values := []any{value}
			if p.multiple {
				arr, ok := value.([]any)
				if !ok || len(arr) == 0 {
					continue
				}
				values = arr
			}
			return f.accepts(values)
		}
	}
	return false
}

func (f compiledField) accepts(values []any) bool {
	if f.filter == nil {
		return true
	}
	for _, v := range values {
		if err := f.filter.Validate(v); err == nil {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
