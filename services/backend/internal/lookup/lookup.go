// Package lookup maps a submitter's public key hash to the evidence they
// filed without storing either value in the clear. The table holds
// HMAC(pepper, publicKeyHash) as its key and sha256(evidenceId) per entry.
package lookup

import (
	"context"
	"errors"
	"strings"
	"time"

	"chainproof/pkg/evidencehash"
	"chainproof/pkg/identity"
)

const DefaultPepper = identity.DefaultPepper

type Store interface {
	AddEvidenceHash(ctx context.Context, lookupKey, evidenceHash string, at time.Time) error
	GetEvidenceHashes(ctx context.Context, lookupKey string) ([]string, error)
	HasEvidenceHash(ctx context.Context, lookupKey, evidenceHash string) (bool, error)
}

func LookupKey(pepper, publicKeyHash string) string { return identity.LookupKey(pepper, publicKeyHash) }

func HashEvidenceID(evidenceID string) string { return evidencehash.HashStringSHA256Hex(evidenceID) }

type Service struct {
	Store  Store
	Pepper string
	Now    func() time.Time
}

func New(st Store, pepper string) *Service {
	if strings.TrimSpace(pepper) == "" {
		pepper = DefaultPepper
	}
	return &Service{Store: st, Pepper: pepper, Now: time.Now}
}

// UsingDefaultPepper reports whether the built-in development pepper is active.
func (s *Service) UsingDefaultPepper() bool { return s.Pepper == DefaultPepper }

func (s *Service) Key(publicKeyHash string) string { return LookupKey(s.Pepper, publicKeyHash) }

func (s *Service) AddEvidenceForUser(ctx context.Context, publicKeyHash, evidenceID string) error {
	if publicKeyHash == "" || evidenceID == "" {
		return errors.New("publicKeyHash and evidenceId are required")
	}
	return s.Store.AddEvidenceHash(ctx, s.Key(publicKeyHash), HashEvidenceID(evidenceID), s.Now().UTC())
}

func (s *Service) GetEvidenceForUser(ctx context.Context, publicKeyHash string) ([]string, error) {
	hashes, err := s.Store.GetEvidenceHashes(ctx, s.Key(publicKeyHash))
	if err != nil {
		return nil, err
	}
	if hashes == nil {
		hashes = []string{}
	}
	return hashes, nil
}

func (s *Service) VerifyOwnership(ctx context.Context, publicKeyHash, evidenceID string) (bool, error) {
	return s.Store.HasEvidenceHash(ctx, s.Key(publicKeyHash), HashEvidenceID(evidenceID))
}
