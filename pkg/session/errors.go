package session

import (
	"errors"
	"fmt"

	"github.com/thibo-redpepper/convoflow/pkg/models"
)

// IdentityError reports that a lead lacks the identity a channel requires:
// a normalizable phone for SMS, a normalizable email or external contact id
// for EMAIL. Callers treat it as a hard failure, never retried.
type IdentityError struct {
	Channel models.Channel
	Message string
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("missing lead identity for %s session: %s", e.Channel, e.Message)
}

// IsIdentityError checks whether err is a lead identity failure.
func IsIdentityError(err error) bool {
	var identityErr *IdentityError

	return errors.As(err, &identityErr)
}
