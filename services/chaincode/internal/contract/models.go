package contract

// Evidence is the public ledger record. File contents never touch the
// ledger; only the IPFS CID and the sha256 of the original file do.
type Evidence struct {
	DocType          string       `json:"docType"`
	EvidenceID       string       `json:"evidenceId"`
	IPFSCID          string       `json:"ipfsCid"`
	FileHash         string       `json:"fileHash"`
	FileType         string       `json:"fileType"`
	FileSize         int64        `json:"fileSize"`
	Category         string       `json:"category"`
	SubmittedAt      int64        `json:"submittedAt"`
	Description      string       `json:"description"`
	Status           string       `json:"status"`
	PolygonTxHash    string       `json:"polygonTxHash"`
	PolygonAnchorAt  int64        `json:"polygonAnchorAt"`
	IntegrityStatus  string       `json:"integrityStatus"`
	VerifiedAt       int64        `json:"verifiedAt"`
	ReviewedAt       int64        `json:"reviewedAt"`
	ExportedAt       int64        `json:"exportedAt"`
	CustodyLog       []CustodyLog `json:"custodyLog"`
	BulkSubmissionID string       `json:"bulkSubmissionId"`
	BulkIndex        int          `json:"bulkIndex"`
	PublicKeyHash    string       `json:"publicKeyHash"`
	Signature        string       `json:"signature"`
	RejectionComment string       `json:"rejectionComment"`
}

const (
	docTypeEvidence     = "evidence"
	docTypeNote         = "verification_note"
	docTypeComment      = "legal_comment"
	docTypeNotification = "notification"
	docTypeReputation   = "reputation"
)

const (
	StatusSubmitted       = "SUBMITTED"
	StatusVerified        = "VERIFIED"
	StatusIntegrityFailed = "INTEGRITY_FAILED" // legacy; new rejections use REJECTED
	StatusRejected        = "REJECTED"
	StatusUnderReview     = "UNDER_REVIEW"
	StatusReviewed        = "REVIEWED"
	StatusExported        = "EXPORTED"
)

const (
	IntegrityPending  = "PENDING"
	IntegrityVerified = "VERIFIED"
	IntegrityFailed   = "FAILED"
)

const (
	CategoryFinancialFraud = "financial_fraud"
	CategoryCorruption     = "corruption"
	CategoryAbuse          = "abuse"
	CategoryHarassment     = "harassment"
	CategoryEnvironmental  = "environmental"
	CategorySafety         = "safety"
	CategoryOther          = "other"
)

const (
	FileTypeImage    = "image"
	FileTypeVideo    = "video"
	FileTypeAudio    = "audio"
	FileTypeDocument = "document"
	FileTypeOther    = "other"
)

// CustodyLog entries name the acting organization's MSP, never a person.
type CustodyLog struct {
	Action      string `json:"action"`
	ActorOrg    string `json:"actorOrg"`
	Timestamp   int64  `json:"timestamp"`
	Description string `json:"description"`
}

const (
	ActionSubmit       = "SUBMIT"
	ActionBulkSubmit   = "BULK_SUBMIT"
	ActionVerify       = "VERIFY"
	ActionReview       = "REVIEW"
	ActionExport       = "EXPORT"
	ActionAnchor       = "ANCHOR"
	ActionAddNote      = "ADD_NOTE"
	ActionAddComment   = "ADD_COMMENT"
	ActionStatusChange = "STATUS_CHANGE"
)

type BulkEvidenceItem struct {
	EvidenceID    string `json:"evidenceId"`
	IPFSCID       string `json:"ipfsCid"`
	FileHash      string `json:"fileHash"`
	FileType      string `json:"fileType"`
	FileSize      int64  `json:"fileSize"`
	Category      string `json:"category"`
	Description   string `json:"description,omitempty"`
	PublicKeyHash string `json:"publicKeyHash,omitempty"`
	Signature     string `json:"signature,omitempty"`
}

type BulkSubmissionResult struct {
	BulkSubmissionID string   `json:"bulkSubmissionId"`
	SubmittedCount   int      `json:"submittedCount"`
	EvidenceIDs      []string `json:"evidenceIds"`
	SubmittedAt      int64    `json:"submittedAt"`
}

// VerificationNote lives in VerifierPrivateCollection.
type VerificationNote struct {
	DocType        string `json:"docType"`
	EvidenceID     string `json:"evidenceId"`
	NoteID         string `json:"noteId"`
	Content        string `json:"content"`
	HashComparison string `json:"hashComparison"`
	CreatedAt      int64  `json:"createdAt"`
	VerifierOrg    string `json:"verifierOrg"`
}

// LegalComment lives in LegalPrivateCollection.
type LegalComment struct {
	DocType          string `json:"docType"`
	EvidenceID       string `json:"evidenceId"`
	CommentID        string `json:"commentId"`
	Content          string `json:"content"`
	CourtReadiness   string `json:"courtReadiness"`
	Recommendation   string `json:"recommendation"`
	CreatedAt        int64  `json:"createdAt"`
	LegalReviewerOrg string `json:"legalReviewerOrg"`
}

const (
	CourtReady       = "READY"
	CourtNotReady    = "NOT_READY"
	CourtNeedsReview = "NEEDS_REVIEW"
)

type EvidenceQueryResult struct {
	Records             []*Evidence `json:"records"`
	FetchedRecordsCount int         `json:"fetchedRecordsCount"`
	Bookmark            string      `json:"bookmark"`
}

type ExportRecord struct {
	EvidenceID      string       `json:"evidenceId"`
	IPFSCID         string       `json:"ipfsCid"`
	FileHash        string       `json:"fileHash"`
	FileType        string       `json:"fileType"`
	Category        string       `json:"category"`
	SubmittedAt     int64        `json:"submittedAt"`
	VerifiedAt      int64        `json:"verifiedAt"`
	ReviewedAt      int64        `json:"reviewedAt"`
	ExportedAt      int64        `json:"exportedAt"`
	PolygonTxHash   string       `json:"polygonTxHash"`
	IntegrityStatus string       `json:"integrityStatus"`
	CustodyLog      []CustodyLog `json:"custodyLog"`
	ExportHash      string       `json:"exportHash"`
}

type HistoryEntry struct {
	TxID      string    `json:"txId"`
	Timestamp int64     `json:"timestamp"`
	IsDelete  bool      `json:"isDelete"`
	Value     *Evidence `json:"value,omitempty" metadata:",optional"`
}

type EvidenceHistory struct {
	EvidenceID string          `json:"evidenceId"`
	History    []*HistoryEntry `json:"history"`
}

// Notification is addressed by public key hash only; it lives in
// WhistleblowerPrivateCollection.
type Notification struct {
	DocType        string `json:"docType"`
	NotificationID string `json:"notificationId"`
	EvidenceID     string `json:"evidenceId"`
	PublicKeyHash  string `json:"publicKeyHash"`
	MessageType    string `json:"messageType"`
	Message        string `json:"message"`
	FromOrg        string `json:"fromOrg"`
	Timestamp      int64  `json:"timestamp"`
	Read           bool   `json:"read"`
}

const (
	NotifyRejection   = "REJECTION"
	NotifyHashFailure = "HASH_FAILURE"
	NotifyVerified    = "VERIFIED"
	NotifyReviewed    = "REVIEWED"
	NotifyExported    = "EXPORTED"
	NotifyComment     = "COMMENT"
)

type NotificationQueryResult struct {
	Notifications []*Notification `json:"notifications"`
	Count         int             `json:"count"`
}

// Reputation is the pseudonymous trust record for a public key hash.
// TrustScore stays within [0, 100].
type Reputation struct {
	DocType             string `json:"docType"`
	PublicKeyHash       string `json:"publicKeyHash"`
	TotalSubmissions    int    `json:"totalSubmissions"`
	VerifiedSubmissions int    `json:"verifiedSubmissions"`
	RejectedSubmissions int    `json:"rejectedSubmissions"`
	ExportedSubmissions int    `json:"exportedSubmissions"`
	TrustScore          int    `json:"trustScore"`
	FirstSubmissionAt   int64  `json:"firstSubmissionAt"`
	LastSubmissionAt    int64  `json:"lastSubmissionAt"`
	LastUpdatedAt       int64  `json:"lastUpdatedAt"`
}

const (
	initialTrustScore = 50
	verifiedBonus     = 10
	rejectedPenalty   = 15
	maxTrustScore     = 100
)
