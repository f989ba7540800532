package client

import (
	"context"
	"fmt"
)

// Keys the client keeps in its KV.
const (
	KeyParticipantID = "participantId"
	KeyToken         = "token"
	KeySessionID     = "sessionId"
	KeyPartnerID     = "partnerId"
)

// Identity is the anonymous participant this client acts as.
type Identity struct {
	ParticipantID string `json:"participant_id"`
	Token         string `json:"token"`
}

// Registrar creates new anonymous participants.
type Registrar interface {
	Register(ctx context.Context) (Identity, error)
}

// IdentityStore returns the stored identity, registering one on first use.
type IdentityStore struct {
	kv        KV
	registrar Registrar
}

func NewIdentityStore(kv KV, r Registrar) *IdentityStore {
	return &IdentityStore{kv: kv, registrar: r}
}

func (s *IdentityStore) Identity(ctx context.Context) (Identity, error) {
	id, ok, err := s.kv.Get(KeyParticipantID)
	if err != nil {
		return Identity{}, err
	}
	if ok && id != "" {
		token, _, err := s.kv.Get(KeyToken)
		if err != nil {
			return Identity{}, err
		}
		return Identity{ParticipantID: id, Token: token}, nil
	}

	identity, err := s.registrar.Register(ctx)
	if err != nil {
		return Identity{}, fmt.Errorf("register participant: %w", err)
	}
	if err := s.kv.Set(KeyToken, identity.Token); err != nil {
		return Identity{}, err
	}
	if err := s.kv.Set(KeyParticipantID, identity.ParticipantID); err != nil {
		return Identity{}, err
	}
	return identity, nil
}

// ParticipantID is Identity without the token.
func (s *IdentityStore) ParticipantID(ctx context.Context) (string, error) {
	identity, err := s.Identity(ctx)
	return identity.ParticipantID, err
}

// RememberSession stores the session being chatted in, for resume after restart.
func (s *IdentityStore) RememberSession(sessionID, partnerID string) error {
	if err := s.kv.Set(KeySessionID, sessionID); err != nil {
		return err
	}
	return s.kv.Set(KeyPartnerID, partnerID)
}

// ForgetSession clears the stored session and partner ids.
func (s *IdentityStore) ForgetSession() error {
	if err := s.kv.Delete(KeySessionID); err != nil {
		return err
	}
	return s.kv.Delete(KeyPartnerID)
}

// StoredSession returns the remembered session, if any.
func (s *IdentityStore) StoredSession() (sessionID, partnerID string, ok bool) {
	sessionID, ok, err := s.kv.Get(KeySessionID)
	if err != nil || !ok || sessionID == "" {
		return "", "", false
	}
	partnerID, _, _ = s.kv.Get(KeyPartnerID)
	return sessionID, partnerID, true
}
