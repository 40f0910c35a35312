package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainproof/services/backend/internal/store"
)

type memUsers struct {
	byPKH   map[string]store.User
	touched map[string]time.Time
}

func newMemUsers() *memUsers {
	return &memUsers{byPKH: map[string]store.User{}, touched: map[string]time.Time{}}
}

func (m *memUsers) CreateUser(_ context.Context, u store.User) (store.User, error) {
	for _, existing := range m.byPKH {
		if existing.AadhaarHash == u.AadhaarHash || existing.PublicKeyHash == u.PublicKeyHash {
			return store.User{}, store.ErrUserExists
		}
	}
	m.byPKH[u.PublicKeyHash] = u
	return u, nil
}

func (m *memUsers) GetUserByPublicKeyHash(_ context.Context, pkh string) (store.User, error) {
	u, ok := m.byPKH[pkh]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	m.touched[id] = at
	return nil
}

func sha(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestGenerateHashesNormalizes(t *testing.T) {
	a1, p1 := GenerateHashes("  Asha Rao ", "1234 5678 9012")
	a2, p2 := GenerateHashes("asha rao", "123456789012")
	assert.Equal(t, a1, a2)
	assert.Equal(t, p1, p2)
	assert.Equal(t, sha("123456789012"), a1)
	assert.Equal(t, sha("asha rao:123456789012:chainproof"), p1)
	assert.Equal(t, strings.ToUpper(p1[:8]), LoginKey(p1))
	assert.Equal(t, "ABCDEF12", LoginKey("abcdef1234"))
}

func TestValidateAadhaar(t *testing.T) {
	require.NoError(t, ValidateAadhaar("1234 5678 9012"))
	require.NoError(t, ValidateAadhaar("1234\u00a05678\u00a09012"))
	require.ErrorIs(t, ValidateAadhaar("12345678901"), ErrInvalidAadhaar)
	require.ErrorIs(t, ValidateAadhaar("12345678901a"), ErrInvalidAadhaar)
}

func TestRegisterAndLogin(t *testing.T) {
	st := newMemUsers()
	svc := NewService(st)
	fixed := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	svc.Now = func() time.Time { return fixed }
	ctx := context.Background()

	u, err := svc.Register(ctx, RegisterInput{Name: "Asha", Aadhaar: "123456789012", Organization: OrgVerifier})
	require.NoError(t, err)
	assert.Equal(t, "member", u.Role)
	assert.Empty(t, u.LegalRole)

	_, err = svc.Register(ctx, RegisterInput{Name: "Other", Aadhaar: "123456789012", Organization: OrgVerifier})
	require.ErrorIs(t, err, store.ErrUserExists)

	_, err = svc.Register(ctx, RegisterInput{Name: "Ravi", Aadhaar: "999988887777", Organization: OrgLegal})
	require.ErrorIs(t, err, ErrInvalidLegalRole)
	judge, err := svc.Register(ctx, RegisterInput{Name: "Ravi", Aadhaar: "999988887777", Organization: OrgLegal, LegalRole: "Judge"})
	require.NoError(t, err)
	assert.Equal(t, "Judge", judge.LegalRole)

	_, err = svc.Register(ctx, RegisterInput{Name: "X", Aadhaar: "111122223333", Organization: "WhistleblowersOrg"})
	require.ErrorIs(t, err, ErrInvalidOrg)

	got, err := svc.Login(ctx, "ASHA", "1234 5678 9012")
	require.NoError(t, err)
	require.NotNil(t, got.LastLoginAt)
	assert.Equal(t, fixed, *got.LastLoginAt)
	assert.Equal(t, fixed, st.touched[u.UserID])

	_, err = svc.Login(ctx, "Nobody", "123456789012")
	require.ErrorIs(t, err, ErrUserNotFound)
	assert.Equal(t, "User not found", err.Error())
}

func TestLoginRejectsMismatchedAndInactive(t *testing.T) {
	st := newMemUsers()
	svc := NewService(st)
	ctx := context.Background()
	_, pkh := GenerateHashes("asha", "123456789012")

	st.byPKH[pkh] = store.User{UserID: "usr_1", PublicKeyHash: pkh, AadhaarHash: "tampered", Status: "active"}
	_, err := svc.Login(ctx, "asha", "123456789012")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	aadhaarHash, _ := GenerateHashes("asha", "123456789012")
	st.byPKH[pkh] = store.User{UserID: "usr_1", PublicKeyHash: pkh, AadhaarHash: aadhaarHash, Status: "suspended"}
	_, err = svc.Login(ctx, "asha", "123456789012")
	require.ErrorIs(t, err, ErrAccountInactive)
	assert.Equal(t, "Account is suspended", err.Error())
	var inactive *InactiveError
	require.True(t, errors.As(err, &inactive))
	assert.Empty(t, st.touched)
}

func TestSafeOmitsAadhaarHash(t *testing.T) {
	s := Safe(store.User{UserID: "usr_1", Name: "asha", AadhaarHash: "secret", LegalRole: "Clerk"})
	require.NotNil(t, s.LegalRole)
	assert.Equal(t, "Clerk", *s.LegalRole)
	assert.Nil(t, Safe(store.User{}).LegalRole)
}
