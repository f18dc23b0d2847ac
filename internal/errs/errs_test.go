package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{NotFound, "NotFound"},
		{InvalidInput, "InvalidInput"},
		{DatabaseUnavailable, "DatabaseUnavailable"},
		{RemoteServiceError, "RemoteServiceError"},
		{RemoteTimeout, "RemoteTimeout"},
		{GeometryError, "GeometryError"},
		{ConfigurationError, "ConfigurationError"},
		{NotAcceptable, "NotAcceptable"},
		{Internal, "Internal"},
		{Kind(99), "Internal"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.kind.String())
	}
}

func TestKindOf(t *testing.T) {
	err := NotFoundf("source not found: %s", "wqp")
	assert.Equal(t, NotFound, KindOf(err))
	assert.Equal(t, "source not found: wqp", err.Error())

	// Kind survives fmt wrapping.
	wrapped := fmt.Errorf("lookup failed: %w", err)
	assert.Equal(t, NotFound, KindOf(wrapped))
	assert.True(t, Is(wrapped, NotFound))
	assert.False(t, Is(wrapped, InvalidInput))

	// Unclassified errors are Internal.
	assert.Equal(t, Internal, KindOf(errors.New("boom")))
	assert.False(t, Is(nil, Internal))
}

func TestWrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(DatabaseUnavailable, cause, "acquiring session")
	require.Error(t, err)
	assert.Equal(t, DatabaseUnavailable, KindOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "acquiring session: connection refused", err.Error())

	assert.NoError(t, Wrap(Internal, nil, "ignored"))
}

func TestErrorMessageForms(t *testing.T) {
	cause := errors.New("row scan failed")
	withBoth := &Error{Kind: Internal, Message: "reading feature", Err: cause}
	assert.Equal(t, "reading feature: row scan failed", withBoth.Error())

	onlyCause := &Error{Kind: Internal, Err: cause}
	assert.Equal(t, "row scan failed", onlyCause.Error())

	onlyMessage := &Error{Kind: InvalidInput, Message: "distance must be positive"}
	assert.Equal(t, "distance must be positive", onlyMessage.Error())
}
