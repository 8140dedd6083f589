package proto

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/accountsync/internal/identity"
	"google.golang.org/protobuf/types/known/structpb"
)

// Wire keys of a record struct.
const (
	KeyID                = "id"
	KeyEmail             = "email"
	KeyUsername          = "username"
	KeyPhone             = "phone"
	KeyFirstName         = "first_name"
	KeyLastName          = "last_name"
	KeyCredentialKind    = "credential_kind"
	KeyCredentialValue   = "credential_value"
	KeyAuthMethod        = "auth_method"
	KeyLinkedAuthMethods = "linked_auth_methods"
	KeyProfile           = "profile"
	KeyUpdatedAt         = "updated_at"

	KeyLookupMethod = "method"
	KeyLookupValue  = "value"
)

// PingOK is the status string returned by a healthy server.
const PingOK = "OK"

// NewLookup builds a FindByCredential request.
func NewLookup(method identity.LoginMethod, value string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		KeyLookupMethod: structpb.NewStringValue(method.String()),
		KeyLookupValue:  structpb.NewStringValue(value),
	}}
}

// ParseLookup is the server side of NewLookup.
func ParseLookup(s *structpb.Struct) (identity.LoginMethod, string, error) {
	f := s.GetFields()
	v := f[KeyLookupValue].GetStringValue()
	if v == "" {
		return 0, "", fmt.Errorf("lookup value is required")
	}
	return identity.ParseLoginMethod(f[KeyLookupMethod].GetStringValue()), v, nil
}

// RecordToStruct encodes r for the wire.
func RecordToStruct(r *identity.Record) *structpb.Struct {
	linked := make([]*structpb.Value, 0, len(r.LinkedAuthMethods))
	for _, m := range r.LinkedAuthMethods {
		linked = append(linked, structpb.NewStringValue(m.String()))
	}
	profile := make(map[string]*structpb.Value, len(r.Profile))
	for k, v := range r.Profile {
		profile[k] = structpb.NewStringValue(v)
	}

	fields := map[string]*structpb.Value{
		KeyID:                structpb.NewStringValue(r.ID),
		KeyEmail:             structpb.NewStringValue(r.Email),
		KeyUsername:          structpb.NewStringValue(r.Username),
		KeyPhone:             structpb.NewStringValue(r.Phone),
		KeyFirstName:         structpb.NewStringValue(r.FirstName),
		KeyLastName:          structpb.NewStringValue(r.LastName),
		KeyCredentialKind:    structpb.NewStringValue(r.Credential.Kind.String()),
		KeyCredentialValue:   structpb.NewStringValue(r.Credential.Value),
		KeyAuthMethod:        structpb.NewStringValue(r.AuthMethod.String()),
		KeyLinkedAuthMethods: structpb.NewListValue(&structpb.ListValue{Values: linked}),
		KeyProfile:           structpb.NewStructValue(&structpb.Struct{Fields: profile}),
	}
	if !r.UpdatedAt.IsZero() {
		fields[KeyUpdatedAt] = structpb.NewStringValue(r.UpdatedAt.UTC().Format(time.RFC3339Nano))
	}
	return &structpb.Struct{Fields: fields}
}

// RecordFromStruct decodes a wire record. Unknown keys are ignored; unknown
// enum values are errors.
func RecordFromStruct(s *structpb.Struct) (*identity.Record, error) {
	f := s.GetFields()
	str := func(k string) string { return f[k].GetStringValue() }

	r := &identity.Record{
		ID:        str(KeyID),
		Email:     str(KeyEmail),
		Username:  str(KeyUsername),
		Phone:     str(KeyPhone),
		FirstName: str(KeyFirstName),
		LastName:  str(KeyLastName),
	}

	kind, err := identity.ParseCredentialKind(str(KeyCredentialKind))
	if err != nil {
		return nil, err
	}
	r.Credential = identity.CredentialRef{Kind: kind, Value: str(KeyCredentialValue)}

	if m := str(KeyAuthMethod); m != "" {
		if r.AuthMethod, err = identity.ParseAuthMethod(m); err != nil {
			return nil, err
		}
	}

	for _, v := range f[KeyLinkedAuthMethods].GetListValue().GetValues() {
		m, err := identity.ParseAuthMethod(v.GetStringValue())
		if err != nil {
			return nil, err
		}
		r.LinkedAuthMethods = append(r.LinkedAuthMethods, m)
	}

	if p := f[KeyProfile].GetStructValue().GetFields(); len(p) > 0 {
		r.Profile = make(map[string]string, len(p))
		for k, v := range p {
			r.Profile[k] = v.GetStringValue()
		}
	}

	if ts := str(KeyUpdatedAt); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("bad %s: %w", KeyUpdatedAt, err)
		}
		r.UpdatedAt = t.UTC()
	}

	return r, nil
}
