package gateway

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntentIDFromSecret(t *testing.T) {
	id, err := IntentIDFromSecret("pi_3Mtw_secret_YrKJUKribcBjcG8HVhfZluoGH")
	require.NoError(t, err)
	assert.Equal(t, "pi_3Mtw", id)

	_, err = IntentIDFromSecret("garbage")
	assert.ErrorIs(t, err, ErrInvalidClientSecret)

	_, err = IntentIDFromSecret("_secret_abc")
	assert.ErrorIs(t, err, ErrInvalidClientSecret)
}

func TestGatewayError_UserMessage(t *testing.T) {
	declined := &GatewayError{Op: "confirm", Err: &DeclineError{Code: "card_declined", Message: "Your card was declined."}}
	assert.Equal(t, "Your card was declined.", declined.UserMessage())
	assert.ErrorIs(t, declined, ErrGateway)

	var d *DeclineError
	assert.True(t, errors.As(declined, &d))

	transport := &GatewayError{Op: "create intent", Err: errors.New("connection reset")}
	assert.NotEqual(t, "connection reset", transport.UserMessage())
	assert.ErrorContains(t, transport, "connection reset")
}

func TestConfirmation_Captured(t *testing.T) {
	var nilConf *Confirmation
	assert.False(t, nilConf.Captured())
	assert.False(t, (&Confirmation{Status: StatusProcessing}).Captured())
	assert.True(t, (&Confirmation{Status: StatusSucceeded}).Captured())
}
