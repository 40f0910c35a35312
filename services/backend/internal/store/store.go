package store

import (
	"context"
	"crypto/rand"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"chainproof/pkg/db"
)

//go:embed schema.sql
var schema string

var (
	ErrNotFound   = errors.New("not found")
	ErrUserExists = errors.New("user with this Aadhaar already registered")
)

// SepoliaCacheTTL bounds how long a mined anchor receipt is served from
// the cache table.
const SepoliaCacheTTL = 7 * 24 * time.Hour

type Store struct{ DB *pgxpool.Pool }

func New(pool *pgxpool.Pool) *Store { return &Store{DB: pool} }

func (s *Store) Migrate(ctx context.Context) error { return db.Exec(ctx, s.DB, schema) }

type User struct {
	UserID            string     `json:"user_id"`
	Name              string     `json:"name"`
	AadhaarHash       string     `json:"-"`
	PublicKeyHash     string     `json:"public_key_hash"`
	Organization      string     `json:"organization"`
	LegalRole         string     `json:"legal_role,omitempty"`
	Role              string     `json:"role"`
	Status            string     `json:"status"`
	EvidenceAssigned  int        `json:"evidence_assigned"`
	EvidenceProcessed int        `json:"evidence_processed"`
	CreatedAt         time.Time  `json:"created_at"`
	LastLoginAt       *time.Time `json:"last_login_at,omitempty"`
}

type EvidenceRecord struct {
	EvidenceID      string    `json:"evidence_id"`
	TransactionHash string    `json:"transaction_hash,omitempty"`
	IPFSCID         string    `json:"ipfs_cid,omitempty"`
	SubmittedBy     string    `json:"submitted_by,omitempty"`
	AssignedTo      string    `json:"assigned_to,omitempty"`
	Organization    string    `json:"organization"`
	TargetLegalRole string    `json:"target_legal_role,omitempty"`
	Status          string    `json:"status"`
	Description     string    `json:"description"`
	CreatedAt       time.Time `json:"created_at"`
}

// Assignment is an evidence record joined with its assignee.
type Assignment struct {
	EvidenceID      string    `json:"evidenceId"`
	AssignedTo      string    `json:"assignedTo,omitempty"`
	AssigneeName    string    `json:"assigneeName,omitempty"`
	AssigneeOrg     string    `json:"assigneeOrg,omitempty"`
	Organization    string    `json:"organization"`
	TargetLegalRole string    `json:"targetLegalRole,omitempty"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
}

type EvidenceAnchor struct {
	EvidenceID         string    `json:"evidence_id"`
	FileHash           string    `json:"file_hash"`
	IPFSCIDHash        string    `json:"ipfs_cid_hash"`
	SepoliaTxHash      string    `json:"sepolia_tx_hash,omitempty"`
	SepoliaBlockNumber int64     `json:"sepolia_block_number,omitempty"`
	AnchoredAt         time.Time `json:"anchored_at"`
	Status             string    `json:"status"`
}

type VerificationProof struct {
	ProofID         string    `json:"proof_id"`
	FileHash        string    `json:"file_hash"`
	Verified        bool      `json:"verified"`
	VerifiedAt      time.Time `json:"verified_at"`
	VerifierOrgHash string    `json:"verifier_org_hash,omitempty"`
}

type SepoliaCacheEntry struct {
	TxHash         string    `json:"tx_hash"`
	BlockNumber    int64     `json:"block_number"`
	FileHashStored string    `json:"file_hash_stored"`
	Timestamp      int64     `json:"timestamp"`
	GasUsed        int64     `json:"gas_used"`
	CachedAt       time.Time `json:"cached_at"`
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullable(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

const userColumns = `user_id,name,aadhaar_hash,public_key_hash,organization,COALESCE(legal_role,''),role,status,
evidence_assigned,evidence_processed,created_at,last_login_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.UserID, &u.Name, &u.AadhaarHash, &u.PublicKeyHash, &u.Organization, &u.LegalRole,
		&u.Role, &u.Status, &u.EvidenceAssigned, &u.EvidenceProcessed, &u.CreatedAt, &u.LastLoginAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

func (s *Store) CreateUser(ctx context.Context, u User) (User, error) {
	if u.Role == "" {
		u.Role = "member"
	}
	if u.Status == "" {
		u.Status = "active"
	}
	row := s.DB.QueryRow(ctx, `
INSERT INTO backend_users(user_id,name,aadhaar_hash,public_key_hash,organization,legal_role,role,status)
VALUES($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING `+userColumns,
		u.UserID, u.Name, u.AadhaarHash, u.PublicKeyHash, u.Organization, nullable(u.LegalRole), u.Role, u.Status)
	created, err := scanUser(row)
	if isUniqueViolation(err) {
		return User{}, ErrUserExists
	}
	return created, err
}

func (s *Store) GetUserByPublicKeyHash(ctx context.Context, publicKeyHash string) (User, error) {
	return scanUser(s.DB.QueryRow(ctx, `SELECT `+userColumns+` FROM backend_users WHERE public_key_hash=$1`, publicKeyHash))
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (User, error) {
	return scanUser(s.DB.QueryRow(ctx, `SELECT `+userColumns+` FROM backend_users WHERE user_id=$1`, userID))
}

func (s *Store) ListUsersByOrg(ctx context.Context, org string, activeOnly bool) ([]User, error) {
	rows, err := s.DB.Query(ctx, `
SELECT `+userColumns+`
FROM backend_users
WHERE organization=$1 AND ($2::boolean = false OR status='active')
ORDER BY created_at ASC
`, org, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) TouchLastLogin(ctx context.Context, userID string, at time.Time) error {
	tag, err := s.DB.Exec(ctx, `UPDATE backend_users SET last_login_at=$2 WHERE user_id=$1`, userID, at.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) IncrementAssigned(ctx context.Context, userID string) error {
	tag, err := s.DB.Exec(ctx, `UPDATE backend_users SET evidence_assigned=evidence_assigned+1 WHERE user_id=$1`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PickRandomUser returns a random active user of org. A non-empty legalRole
// narrows the choice to that role.
func (s *Store) PickRandomUser(ctx context.Context, org, legalRole string) (User, error) {
	return scanUser(s.DB.QueryRow(ctx, `
SELECT `+userColumns+`
FROM backend_users
WHERE organization=$1 AND status='active' AND ($2::text IS NULL OR legal_role=$2)
ORDER BY random()
LIMIT 1
`, org, nullable(legalRole)))
}

func (s *Store) CreateEvidenceRecord(ctx context.Context, rec EvidenceRecord) error {
	if rec.Organization == "" {
		rec.Organization = "VerifierOrg"
	}
	if rec.Status == "" {
		rec.Status = "SUBMITTED"
	}
	_, err := s.DB.Exec(ctx, `
INSERT INTO backend_evidence_records(evidence_id,transaction_hash,ipfs_cid,submitted_by,assigned_to,organization,status,description)
VALUES($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (evidence_id) DO UPDATE SET
  transaction_hash=COALESCE(EXCLUDED.transaction_hash,backend_evidence_records.transaction_hash),
  ipfs_cid=COALESCE(EXCLUDED.ipfs_cid,backend_evidence_records.ipfs_cid),
  submitted_by=COALESCE(EXCLUDED.submitted_by,backend_evidence_records.submitted_by),
  assigned_to=COALESCE(EXCLUDED.assigned_to,backend_evidence_records.assigned_to),
  description=EXCLUDED.description
`, rec.EvidenceID, nullable(rec.TransactionHash), nullable(rec.IPFSCID), nullable(rec.SubmittedBy),
		nullable(rec.AssignedTo), rec.Organization, rec.Status, rec.Description)
	return err
}

func (s *Store) AssignEvidence(ctx context.Context, evidenceID, userID, org string) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO backend_evidence_records(evidence_id,assigned_to,organization)
VALUES($1,$2,$3)
ON CONFLICT (evidence_id) DO UPDATE SET assigned_to=EXCLUDED.assigned_to, organization=EXCLUDED.organization
`, evidenceID, userID, org)
	return err
}

// ForwardToLegal clears the assignee and queues the evidence for any
// LegalOrg member holding legalRole.
func (s *Store) ForwardToLegal(ctx context.Context, evidenceID, legalRole string) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO backend_evidence_records(evidence_id,assigned_to,organization,target_legal_role,status)
VALUES($1,NULL,'LegalOrg',$2,'VERIFIED')
ON CONFLICT (evidence_id) DO UPDATE SET
  assigned_to=NULL, organization='LegalOrg', target_legal_role=EXCLUDED.target_legal_role, status='VERIFIED'
`, evidenceID, legalRole)
	return err
}

func (s *Store) ListAssignments(ctx context.Context) ([]Assignment, error) {
	rows, err := s.DB.Query(ctx, `
SELECT e.evidence_id, COALESCE(e.assigned_to,''), COALESCE(u.name,''), COALESCE(u.organization,''),
       e.organization, COALESCE(e.target_legal_role,''), e.status, e.created_at
FROM backend_evidence_records e
LEFT JOIN backend_users u ON u.user_id=e.assigned_to
ORDER BY e.created_at DESC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Assignment{}
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.EvidenceID, &a.AssignedTo, &a.AssigneeName, &a.AssigneeOrg,
			&a.Organization, &a.TargetLegalRole, &a.Status, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) UpdateEvidenceStatus(ctx context.Context, evidenceID, status string) error {
	tag, err := s.DB.Exec(ctx, `UPDATE backend_evidence_records SET status=$2 WHERE evidence_id=$1`, evidenceID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) AddEvidenceHash(ctx context.Context, lookupKey, evidenceHash string, at time.Time) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO backend_user_lookups(lookup_key,evidence_hashes,submission_count,created_at,last_activity_at)
VALUES($1,ARRAY[$2::text],1,$3,$3)
ON CONFLICT (lookup_key) DO UPDATE SET
  evidence_hashes=array_append(backend_user_lookups.evidence_hashes,$2::text),
  submission_count=backend_user_lookups.submission_count+1,
  last_activity_at=$3
`, lookupKey, evidenceHash, at.UTC())
	return err
}

func (s *Store) GetEvidenceHashes(ctx context.Context, lookupKey string) ([]string, error) {
	var hashes []string
	err := s.DB.QueryRow(ctx, `SELECT evidence_hashes FROM backend_user_lookups WHERE lookup_key=$1`, lookupKey).Scan(&hashes)
	if errors.Is(err, pgx.ErrNoRows) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	if hashes == nil {
		hashes = []string{}
	}
	return hashes, nil
}

func (s *Store) HasEvidenceHash(ctx context.Context, lookupKey, evidenceHash string) (bool, error) {
	var ok bool
	err := s.DB.QueryRow(ctx, `
SELECT EXISTS(SELECT 1 FROM backend_user_lookups WHERE lookup_key=$1 AND $2::text = ANY(evidence_hashes))
`, lookupKey, evidenceHash).Scan(&ok)
	return ok, err
}

func (s *Store) SaveEvidenceAnchor(ctx context.Context, a EvidenceAnchor) error {
	if a.Status == "" {
		a.Status = "PENDING"
	}
	if a.AnchoredAt.IsZero() {
		a.AnchoredAt = time.Now().UTC()
	}
	var block any
	if a.SepoliaBlockNumber > 0 {
		block = a.SepoliaBlockNumber
	}
	_, err := s.DB.Exec(ctx, `
INSERT INTO backend_evidence_anchors(evidence_id,file_hash,ipfs_cid_hash,sepolia_tx_hash,sepolia_block_number,anchored_at,status)
VALUES($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (evidence_id) DO UPDATE SET
  sepolia_tx_hash=EXCLUDED.sepolia_tx_hash,
  sepolia_block_number=EXCLUDED.sepolia_block_number,
  anchored_at=EXCLUDED.anchored_at,
  status=EXCLUDED.status
`, a.EvidenceID, a.FileHash, a.IPFSCIDHash, nullable(a.SepoliaTxHash), block, a.AnchoredAt, a.Status)
	return err
}

func (s *Store) GetEvidenceAnchor(ctx context.Context, evidenceID string) (EvidenceAnchor, error) {
	var a EvidenceAnchor
	var block *int64
	err := s.DB.QueryRow(ctx, `
SELECT evidence_id,file_hash,ipfs_cid_hash,COALESCE(sepolia_tx_hash,''),sepolia_block_number,anchored_at,status
FROM backend_evidence_anchors WHERE evidence_id=$1
`, evidenceID).Scan(&a.EvidenceID, &a.FileHash, &a.IPFSCIDHash, &a.SepoliaTxHash, &block, &a.AnchoredAt, &a.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return EvidenceAnchor{}, ErrNotFound
	}
	if block != nil {
		a.SepoliaBlockNumber = *block
	}
	return a, err
}

// NewProofID returns 16 random bytes as hex.
func NewProofID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func (s *Store) SaveVerificationProof(ctx context.Context, p VerificationProof) (VerificationProof, error) {
	if p.ProofID == "" {
		id, err := NewProofID()
		if err != nil {
			return VerificationProof{}, err
		}
		p.ProofID = id
	}
	if p.VerifiedAt.IsZero() {
		p.VerifiedAt = time.Now().UTC()
	}
	_, err := s.DB.Exec(ctx, `
INSERT INTO backend_verification_proofs(proof_id,file_hash,verified,verified_at,verifier_org_hash)
VALUES($1,$2,$3,$4,$5)
`, p.ProofID, p.FileHash, p.Verified, p.VerifiedAt, nullable(p.VerifierOrgHash))
	return p, err
}

func (s *Store) PutSepoliaCache(ctx context.Context, e SepoliaCacheEntry) error {
	if e.CachedAt.IsZero() {
		e.CachedAt = time.Now().UTC()
	}
	_, err := s.DB.Exec(ctx, `
INSERT INTO backend_sepolia_cache(tx_hash,block_number,file_hash_stored,timestamp,gas_used,cached_at)
VALUES($1,$2,$3,$4,$5,$6)
ON CONFLICT (tx_hash) DO UPDATE SET
  block_number=EXCLUDED.block_number, file_hash_stored=EXCLUDED.file_hash_stored,
  timestamp=EXCLUDED.timestamp, gas_used=EXCLUDED.gas_used, cached_at=EXCLUDED.cached_at
`, e.TxHash, e.BlockNumber, e.FileHashStored, e.Timestamp, e.GasUsed, e.CachedAt)
	return err
}

// GetSepoliaCache ignores rows cached more than SepoliaCacheTTL before now.
func (s *Store) GetSepoliaCache(ctx context.Context, txHash string, now time.Time) (SepoliaCacheEntry, error) {
	var e SepoliaCacheEntry
	err := s.DB.QueryRow(ctx, `
SELECT tx_hash,block_number,file_hash_stored,timestamp,gas_used,cached_at
FROM backend_sepolia_cache
WHERE tx_hash=$1 AND cached_at > $2
`, txHash, now.Add(-SepoliaCacheTTL)).Scan(&e.TxHash, &e.BlockNumber, &e.FileHashStored, &e.Timestamp, &e.GasUsed, &e.CachedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return SepoliaCacheEntry{}, ErrNotFound
	}
	if err != nil {
		return SepoliaCacheEntry{}, fmt.Errorf("read sepolia cache: %w", err)
	}
	return e, nil
}
