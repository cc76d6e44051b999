package memory

import (
	"context"
	"strings"
	"time"

	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var err error
	s.locked(func(st *state) {
		u.Email = strings.ToLower(strings.TrimSpace(u.Email))
		for _, other := range st.users {
			if other.Email == u.Email {
				err = repository.ErrEmailExists
				return
			}
		}
		u.ID = st.id()
		if u.CreatedAt.IsZero() {
			u.CreatedAt = time.Now().UTC()
		}
		u.UpdatedAt = u.CreatedAt
		st.users[u.ID] = *u
	})
	return err
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var out *model.User
	s.locked(func(st *state) {
		for _, id := range sortedKeys(st.users) {
			if u := st.users[id]; u.Email == email {
				out = &u
				return
			}
		}
	})
	if out == nil {
		return nil, repository.ErrNotFound
	}
	return out, nil
}

func (s *Store) GetUserByID(_ context.Context, id uint64) (*model.User, error) {
	var (
		u  model.User
		ok bool
	)
	s.locked(func(st *state) { u, ok = st.users[id] })
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (s *Store) StoreRefresh(_ context.Context, userID uint64, tokenHash string, exp time.Time) error {
	s.locked(func(st *state) {
		st.refresh[tokenHash] = model.RefreshToken{
			ID: st.id(), UserID: userID, TokenHash: tokenHash, ExpiresAt: exp, CreatedAt: time.Now().UTC(),
		}
	})
	return nil
}

func (s *Store) ValidateRefresh(_ context.Context, tokenHash string, now time.Time) (uint64, error) {
	var (
		rt model.RefreshToken
		ok bool
	)
	s.locked(func(st *state) { rt, ok = st.refresh[tokenHash] })
	if !ok || rt.RevokedAt != nil || now.After(rt.ExpiresAt) {
		return 0, repository.ErrNotFound
	}
	return rt.UserID, nil
}

func (s *Store) RevokeByHash(_ context.Context, tokenHash string) error {
	s.locked(func(st *state) {
		if rt, ok := st.refresh[tokenHash]; ok && rt.RevokedAt == nil {
			rt.RevokedAt = timePtr(time.Now().UTC())
			st.refresh[tokenHash] = rt
		}
	})
	return nil
}

func (s *Store) RevokeAllForUser(_ context.Context, userID uint64) error {
	s.locked(func(st *state) {
		now := time.Now().UTC()
		for h, rt := range st.refresh {
			if rt.UserID == userID && rt.RevokedAt == nil {
				rt.RevokedAt = timePtr(now)
				st.refresh[h] = rt
			}
		}
	})
	return nil
}
