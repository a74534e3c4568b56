package util

import (
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/pkg/errors"
)

// ParseUnverifiedJWT reads the protected header and claims of a single-signature compact JWT. Neither the signature
// nor the registered claims are checked.
func ParseUnverifiedJWT(token string) (jws.Headers, jwt.Token, error) {
	msg, err := jws.Parse([]byte(token), jws.WithCompact())
	if err != nil {
		return nil, nil, errors.Wrap(err, "parsing jws")
	}
	if n := len(msg.Signatures()); n != 1 {
		return nil, nil, errors.Errorf("expected one signature, found %d", n)
	}
	claims, err := jwt.Parse([]byte(token), jwt.WithVerify(false), jwt.WithValidate(false))
	if err != nil {
		return nil, nil, errors.Wrap(err, "parsing jwt claims")
	}
	return msg.Signatures()[0].ProtectedHeaders(), claims, nil
}
