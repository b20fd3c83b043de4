package validation

import (
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmail(t *testing.T) {
	assert.NoError(t, Email("a@x.com"))
	assert.NoError(t, Email("  Mixed.Case@Example.org "))
	assert.Error(t, Email(""))
	assert.Error(t, Email("not-an-email"))
	assert.Error(t, Email(strings.Repeat("a", 250)+"@x.com"))
}

func TestPasswordHash(t *testing.T) {
	b, err := PasswordHash(strings.Repeat("ab", 32), 32)
	require.NoError(t, err)
	assert.Len(t, b, 32)

	_, err = PasswordHash("abcd", 32)
	assert.Error(t, err)
	_, err = PasswordHash(strings.Repeat("zz", 32), 32)
	assert.Error(t, err)
}

func TestToDetails_UsesJSONNames(t *testing.T) {
	type payload struct {
		Email string `json:"email" validate:"required,account_email"`
		Hash  string `json:"password_hash" validate:"required,pwhash"`
	}
	err := engine().Struct(payload{Email: "nope", Hash: "12"})
	require.Error(t, err)

	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	details := ToDetails(err)
	assert.Equal(t, "must be a valid email address", details["email"])
	assert.Contains(t, details, "password_hash")
}
