package did

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/ssi-wallet/internal/util"
)

// Resolver resolves a DID to its document
type Resolver interface {
	Resolve(ctx context.Context, id string) (*Document, error)
}

// MethodResolver is a Resolver bound to a single DID method
type MethodResolver interface {
	Resolver
	Method() string
}

// MultiMethodResolver dispatches resolution on the DID method.
type MultiMethodResolver struct {
	resolvers map[string]MethodResolver
}

func NewMultiMethodResolver(resolvers ...MethodResolver) (*MultiMethodResolver, error) {
	if len(resolvers) == 0 {
		return nil, errors.New("no resolvers provided")
	}
	m := &MultiMethodResolver{resolvers: make(map[string]MethodResolver, len(resolvers))}
	for _, r := range resolvers {
		if _, ok := m.resolvers[r.Method()]; ok {
			return nil, errors.Errorf("duplicate resolver for method %s", r.Method())
		}
		m.resolvers[r.Method()] = r
	}
	return m, nil
}

// Methods returns the methods this resolver supports
func (m *MultiMethodResolver) Methods() []string {
	methods := make([]string, 0, len(m.resolvers))
	for method := range m.resolvers {
		methods = append(methods, method)
	}
	return methods
}

func (m *MultiMethodResolver) Resolve(ctx context.Context, id string) (*Document, error) {
	method, err := util.GetMethodForDID(id)
	if err != nil {
		return nil, err
	}
	r, ok := m.resolvers[method]
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedMethod, "%s", method)
	}
	return r.Resolve(ctx, util.DIDFromKeyID(id))
}

// BuildMultiMethodResolver builds a multi method DID resolver from a list of methods to support resolution for.
// client is used by methods that resolve over the network.
func BuildMultiMethodResolver(methods []string, client *http.Client) (*MultiMethodResolver, error) {
	if len(methods) == 0 {
		return nil, errors.New("no methods provided")
	}
	resolvers := make([]MethodResolver, 0, len(methods))
	for _, method := range methods {
		resolver, err := getKnownResolver(method, client)
		if err != nil {
			// not all methods are supported locally
			logrus.WithError(err).Errorf("failed to create resolver for method %s", method)
			continue
		}
		resolvers = append(resolvers, resolver)
	}
	if len(resolvers) == 0 {
		return nil, errors.New("no resolvers created")
	}
	return NewMultiMethodResolver(resolvers...)
}

func getKnownResolver(method string, client *http.Client) (MethodResolver, error) {
	switch method {
	case KeyMethod:
		return KeyResolver{}, nil
	case JWKMethod:
		return JWKResolver{}, nil
	case WebMethod:
		return WebResolver{Client: client}, nil
	}
	return nil, errors.Errorf("unsupported method: %s", method)
}
