package eventsub

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"

	goerrors "github.com/goliatone/go-errors"
)

// stateBytes is the entropy of one OAuth state value.
const stateBytes = 16

// newState returns a URL-safe random value for the authorize URL state parameter.
func newState() (string, error) {
	buf := make([]byte, stateBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", newError(ErrAuthorisation, err, goerrors.CategoryInternal, TextCodeAuthorisation,
			"generate oauth state")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// VerifyState checks the state echoed by an authorization redirect against the
// one put in the authorize URL. An empty returned state is a mismatch.
func VerifyState(expected, returned string) error {
	if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(returned)) != 1 {
		return newError(ErrUnhandled, nil, goerrors.CategoryAuth, TextCodeUnhandled,
			"authorization state mismatch")
	}
	return nil
}

// registrationKey identifies a subscription by tag, version and condition.
func registrationKey(sub Subscription, condition Condition) string {
	// Condition has only string fields, so encoding cannot fail
	encoded, _ := json.Marshal(condition)
	sum := sha256.Sum256([]byte(sub.Tag() + "\x00" + sub.Version() + "\x00" + string(encoded)))
	return hex.EncodeToString(sum[:])
}
