package metadata

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/accountsync/internal/common"
	"github.com/dmitrijs2005/accountsync/internal/identity"
)

// SessionStore keeps the current session as JSON under
// common.SessionMetadataKey.
type SessionStore struct {
	repo Repository
}

func NewSessionStore(repo Repository) *SessionStore {
	return &SessionStore{repo: repo}
}

// LoadSession returns (nil, nil) when nobody is logged in.
func (s *SessionStore) LoadSession(ctx context.Context) (*identity.Session, error) {
	b, err := s.repo.Get(ctx, common.SessionMetadataKey)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, nil
	}

	var sess identity.Session
	if err := json.Unmarshal(b, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &sess, nil
}

func (s *SessionStore) SaveSession(ctx context.Context, sess *identity.Session) error {
	b, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	return s.repo.Set(ctx, common.SessionMetadataKey, b)
}

func (s *SessionStore) ClearSession(ctx context.Context) error {
	return s.repo.Delete(ctx, common.SessionMetadataKey)
}
