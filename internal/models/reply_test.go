package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReplyTarget(t *testing.T) {
	_, err := NewReplyTarget("c1", "t1")
	assert.ErrorIs(t, err, ErrReplyTargetAmbiguous)

	_, err = NewReplyTarget("", "  ")
	assert.ErrorIs(t, err, ErrReplyTargetMissing)

	target, err := NewReplyTarget("c1", "")
	require.NoError(t, err)
	assert.Equal(t, ReplyTargetChat, target.Kind())
	require.NotNil(t, target.ChatRef())
	assert.Equal(t, "c1", *target.ChatRef())
	assert.Nil(t, target.TransferRef())

	target, err = NewReplyTarget("", "t1")
	require.NoError(t, err)
	assert.Equal(t, ReplyTargetTransfer, target.Kind())
	assert.Nil(t, target.ChatRef())
	require.NotNil(t, target.TransferRef())
}

func TestReplyTargetRoundTrip(t *testing.T) {
	target := TransferTarget("t9")
	reply := Reply{ChatID: target.ChatRef(), TransferID: target.TransferRef()}

	assert.Equal(t, target, reply.Target())
	assert.False(t, Reply{}.Target().Valid())
}

func TestRoleMarshalJSON(t *testing.T) {
	out, err := json.Marshal(map[string]Role{"a": RoleNone, "b": RoleSender})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":null,"b":"sender"}`, string(out))
}
