package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"chainproof/pkg/identity"
	"chainproof/services/backend/internal/store"
)

const (
	OrgVerifier = "VerifierOrg"
	OrgLegal    = "LegalOrg"
)

var (
	Orgs       = []string{OrgVerifier, OrgLegal}
	Roles      = []string{"admin", "senior", "member"}
	LegalRoles = []string{"Judge", "Advocate", "Clerk", "Notary", "Prosecutor", "Police", "Other"}
)

var (
	ErrMissingFields      = errors.New("Name, Aadhaar, and organization are required")
	ErrUserNotFound       = errors.New("User not found")
	ErrInvalidCredentials = errors.New("Invalid credentials")
	ErrAccountInactive    = errors.New("account inactive")
	ErrInvalidAadhaar     = errors.New("Invalid Aadhaar format. Must be 12 digits.")
	ErrInvalidOrg         = errors.New("Invalid organization. Must be VerifierOrg or LegalOrg")
	ErrInvalidLegalRole   = errors.New("legalRole must be one of " + strings.Join(LegalRoles, ", "))
	ErrInvalidRole        = errors.New("role must be one of " + strings.Join(Roles, ", "))
)

// InactiveError carries the account status that blocked a login.
type InactiveError struct{ Status string }

func (e *InactiveError) Error() string { return "Account is " + e.Status }
func (e *InactiveError) Is(target error) bool { return target == ErrAccountInactive }

var aadhaarPattern = regexp.MustCompile(`^\d{12}$`)

// NormalizeAadhaar removes all whitespace.
func NormalizeAadhaar(aadhaar string) string { return identity.NormalizeAadhaar(aadhaar) }

func ValidateAadhaar(aadhaar string) error {
	if !aadhaarPattern.MatchString(NormalizeAadhaar(aadhaar)) {
		return ErrInvalidAadhaar
	}
	return nil
}

// GenerateHashes derives the stored identity hashes. The public key hash
// binds the lowercased name to the Aadhaar number so either alone cannot be
// used to log in.
func GenerateHashes(name, aadhaar string) (aadhaarHash, publicKeyHash string) {
	return identity.Hashes(name, aadhaar)
}

func LoginKey(publicKeyHash string) string { return identity.LoginKey(publicKeyHash) }

func ValidOrg(org string) bool { return slices.Contains(Orgs, org) }

func ValidLegalRole(role string) bool { return slices.Contains(LegalRoles, role) }

type SafeUser struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	PublicKeyHash     string     `json:"publicKeyHash"`
	Organization      string     `json:"organization"`
	Role              string     `json:"role"`
	LegalRole         *string    `json:"legalRole"`
	Status            string     `json:"status"`
	EvidenceAssigned  int        `json:"evidenceAssigned"`
	EvidenceProcessed int        `json:"evidenceProcessed"`
	CreatedAt         time.Time  `json:"createdAt"`
	LastLoginAt       *time.Time `json:"lastLoginAt"`
}

func Safe(u store.User) SafeUser {
	s := SafeUser{
		ID: u.UserID, Name: u.Name, PublicKeyHash: u.PublicKeyHash, Organization: u.Organization,
		Role: u.Role, Status: u.Status, EvidenceAssigned: u.EvidenceAssigned,
		EvidenceProcessed: u.EvidenceProcessed, CreatedAt: u.CreatedAt, LastLoginAt: u.LastLoginAt,
	}
	if u.LegalRole != "" {
		lr := u.LegalRole
		s.LegalRole = &lr
	}
	return s
}

type Store interface {
	CreateUser(ctx context.Context, u store.User) (store.User, error)
	GetUserByPublicKeyHash(ctx context.Context, publicKeyHash string) (store.User, error)
	TouchLastLogin(ctx context.Context, userID string, at time.Time) error
}

type Service struct {
	Store Store
	Now   func() time.Time
}

func NewService(st Store) *Service { return &Service{Store: st, Now: time.Now} }

type RegisterInput struct {
	Name         string
	Aadhaar      string
	Organization string
	Role         string
	LegalRole    string
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (store.User, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || strings.TrimSpace(in.Aadhaar) == "" || in.Organization == "" {
		return store.User{}, ErrMissingFields
	}
	if !ValidOrg(in.Organization) {
		return store.User{}, ErrInvalidOrg
	}
	if err := ValidateAadhaar(in.Aadhaar); err != nil {
		return store.User{}, err
	}
	role := in.Role
	if role == "" {
		role = "member"
	}
	if !slices.Contains(Roles, role) {
		return store.User{}, ErrInvalidRole
	}
	legalRole := ""
	if in.Organization == OrgLegal {
		if !ValidLegalRole(in.LegalRole) {
			return store.User{}, ErrInvalidLegalRole
		}
		legalRole = in.LegalRole
	}

	aadhaarHash, pkh := GenerateHashes(name, in.Aadhaar)
	u, err := s.Store.CreateUser(ctx, store.User{
		UserID:        "usr_" + uuid.NewString(),
		Name:          name,
		AadhaarHash:   aadhaarHash,
		PublicKeyHash: pkh,
		Organization:  in.Organization,
		LegalRole:     legalRole,
		Role:          role,
		Status:        "active",
	})
	if err != nil {
		return store.User{}, err
	}
	return u, nil
}

func (s *Service) Login(ctx context.Context, name, aadhaar string) (store.User, error) {
	aadhaarHash, pkh := GenerateHashes(name, aadhaar)
	u, err := s.Store.GetUserByPublicKeyHash(ctx, pkh)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, ErrUserNotFound
	}
	if err != nil {
		return store.User{}, fmt.Errorf("load user: %w", err)
	}
	if u.AadhaarHash != aadhaarHash {
		return store.User{}, ErrInvalidCredentials
	}
	if u.Status != "active" {
		return store.User{}, &InactiveError{Status: u.Status}
	}
	now := s.Now().UTC()
	if err := s.Store.TouchLastLogin(ctx, u.UserID, now); err != nil {
		return store.User{}, fmt.Errorf("update last login: %w", err)
	}
	u.LastLoginAt = &now
	return u, nil
}
