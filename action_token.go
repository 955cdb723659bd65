package edutrack

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/goliatone/go-errors"
)

// ActionTokenTTL is how long verification and reset links stay valid.
var ActionTokenTTL = time.Hour

const actionTokenBytes = 20

// NewActionToken mints an opaque single-use token and its expiry. The caller
// persists both on the user record; tokens are never derived from user data.
func NewActionToken() (string, time.Time, error) {
	buf := make([]byte, actionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", time.Time{}, errors.Wrap(err, errors.CategoryInternal, "failed to generate action token")
	}
	return hex.EncodeToString(buf), time.Now().Add(ActionTokenTTL), nil
}
