package replication

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("wrapped: %w", newError(TransportError, "send", cause))

	assert.True(t, IsKind(err, TransportError))
	assert.False(t, IsKind(err, StoreUnavailable))
	assert.Equal(t, TransportError, KindOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "wrapped: replication send: transport error: connection refused", err.Error())

	var rerr *Error
	assert.ErrorAs(t, err, &rerr)
	assert.Equal(t, "send", rerr.Op)

	assert.Equal(t, Kind(0), KindOf(cause))
	assert.False(t, IsKind(nil, ParseError))
	assert.Equal(t, "replication x: method error", (&Error{Kind: UnsupportedMethod, Op: "x"}).Error())
}

func TestKindString(t *testing.T) {
	for k, s := range map[Kind]string{
		TransportError:     "transport",
		StoreUnavailable:   "store",
		ParseError:         "parse",
		UnsupportedMethod:  "method",
		InvalidDestination: "destination",
		Kind(0):            "unknown",
	} {
		assert.Equal(t, s, k.String())
	}
}
