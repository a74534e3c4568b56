package util

import (
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

// IsStructPtr checks if the given object is a pointer to a struct
func IsStructPtr(obj any) bool {
	if obj == nil {
		return false
	}
	outVal := reflect.ValueOf(obj)
	if outVal.Kind() != reflect.Ptr {
		return false
	}
	return outVal.Elem().Kind() == reflect.Struct
}

// GetMethodForDID gets a DID method from a did, the second part of the did (e.g. did:test:abcd, the method is 'test')
func GetMethodForDID(did string) (string, error) {
	split := strings.Split(did, ":")
	if len(split) < 3 {
		return "", errors.New("malformed did: did has fewer than three parts")
	}
	if split[0] != "did" {
		return "", errors.New("malformed did: did must start with `did`")
	}
	if split[1] == "" {
		return "", errors.New("malformed did: empty method")
	}
	return split[1], nil
}

// DIDFromKeyID returns the DID part of a DID URL, dropping any fragment, query or path.
// did:key:z6Mk...#z6Mk... -> did:key:z6Mk...
func DIDFromKeyID(keyID string) string {
	if i := strings.IndexAny(keyID, "#?/"); i >= 0 {
		return keyID[:i]
	}
	return keyID
}

// SanitizeLog prevents certain classes of injection attacks before logging
// https://codeql.github.com/codeql-query-help/go/go-log-injection/
func SanitizeLog(log string) string {
	escapedLog := strings.ReplaceAll(log, "\n", "")
	return strings.ReplaceAll(escapedLog, "\r", "")
}

// Is2xxResponse returns true if the given status code is a 2xx response
func Is2xxResponse(statusCode int) bool {
	return statusCode/100 == 2
}

// Is4xxResponse returns true if the given status code is a 4xx response
func Is4xxResponse(statusCode int) bool {
	return statusCode/100 == 4
}
