package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserKeepsUnknownFields(t *testing.T) {
	var u User
	require.NoError(t, json.Unmarshal([]byte(`{"username":"al","_id":"42","role":"admin"}`), &u))
	assert.Equal(t, "al", u.Username)

	out, err := json.Marshal(u)
	require.NoError(t, err)
	assert.JSONEq(t, `{"username":"al","_id":"42","role":"admin"}`, string(out))
}

func TestNewUserMarshalsUsernameOnly(t *testing.T) {
	out, err := json.Marshal(NewUser("bo"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"username":"bo"}`, string(out))
}

func TestSession(t *testing.T) {
	anon := Anonymous()
	assert.False(t, anon.Present())
	assert.Empty(t, anon.Username())
	_, ok := anon.Identity()
	assert.False(t, ok)

	s := Authenticated(NewUser("al"))
	assert.True(t, s.Present())
	assert.Equal(t, "al", s.Username())
	u, ok := s.Identity()
	require.True(t, ok)
	assert.Equal(t, "al", u.Username)
}
