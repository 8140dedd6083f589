package proto

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/accountsync/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestRecordStruct_RoundTrip(t *testing.T) {
	in := &identity.Record{
		ID:                "8c1d",
		Email:             "alice@example.com",
		Username:          "alice",
		Phone:             "+15551234567",
		FirstName:         "Alice",
		LastName:          "Smith",
		Credential:        identity.CredentialRef{Kind: identity.CredentialInlineHash, Value: "$argon2id$..."},
		AuthMethod:        identity.AuthGoogle,
		LinkedAuthMethods: []identity.AuthMethod{identity.AuthPassword, identity.AuthGoogle},
		Profile:           map[string]string{"name": "Alice"},
		UpdatedAt:         time.Date(2024, 5, 1, 10, 0, 0, 123000000, time.UTC),
	}

	out, err := RecordFromStruct(RecordToStruct(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestRecordFromStruct_Errors(t *testing.T) {
	bad := []map[string]any{
		{KeyCredentialKind: "vault"},
		{KeyAuthMethod: "telepathy"},
		{KeyLinkedAuthMethods: []any{"password", "telepathy"}},
		{KeyUpdatedAt: "yesterday"},
	}
	for _, m := range bad {
		s, err := structpb.NewStruct(m)
		require.NoError(t, err)
		_, err = RecordFromStruct(s)
		assert.Error(t, err, m)
	}
}

func TestRecordFromStruct_Empty(t *testing.T) {
	r, err := RecordFromStruct(&structpb.Struct{})
	require.NoError(t, err)
	assert.Equal(t, identity.CredentialNone, r.Credential.Kind)
	assert.True(t, r.UpdatedAt.IsZero())
	assert.Nil(t, r.Profile)
}

func TestLookup(t *testing.T) {
	m, v, err := ParseLookup(NewLookup(identity.LoginPhone, "+15551234567"))
	require.NoError(t, err)
	assert.Equal(t, identity.LoginPhone, m)
	assert.Equal(t, "+15551234567", v)

	_, _, err = ParseLookup(&structpb.Struct{})
	require.Error(t, err)
}
