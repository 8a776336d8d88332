package protoo

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRequestRoundTrip(t *testing.T) {
	payload, err := encodeRequest(7, "join", map[string]string{"displayName": "A"})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(payload, &env))

	assert.True(t, env.Request)
	assert.False(t, env.Response)
	assert.False(t, env.Notification)
	assert.EqualValues(t, 7, env.Id)
	assert.Equal(t, "join", env.Method)

	var data map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "A", data["displayName"])
}

func TestEncodeNotificationRoundTrip(t *testing.T) {
	payload, err := encodeNotification("peerClosed", map[string]string{"peerId": "b"})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(payload, &env))

	assert.True(t, env.Notification)
	assert.False(t, env.Request)
	assert.Equal(t, "peerClosed", env.Method)
}

func TestEncodeAcceptAndReject(t *testing.T) {
	accept, err := encodeAccept(3, map[string]int{"ok": 1})
	require.NoError(t, err)
	var acceptEnv Envelope
	require.NoError(t, json.Unmarshal(accept, &acceptEnv))
	assert.True(t, acceptEnv.Response)
	assert.True(t, acceptEnv.Ok)
	assert.EqualValues(t, 3, acceptEnv.Id)

	reject, err := encodeReject(3, 500, "unknown request.method nope")
	require.NoError(t, err)
	var rejectEnv Envelope
	require.NoError(t, json.Unmarshal(reject, &rejectEnv))
	assert.True(t, rejectEnv.Response)
	assert.False(t, rejectEnv.Ok)
	assert.Equal(t, 500, rejectEnv.ErrorCode)
	assert.Equal(t, "unknown request.method nope", rejectEnv.ErrorReason)
}

func TestMarshalDataNil(t *testing.T) {
	raw, err := marshalData(nil)
	require.NoError(t, err)
	assert.JSONEq(t, "{}", string(raw))
}
