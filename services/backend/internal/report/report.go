// Package report renders the court-facing audit report for a piece of
// evidence.
package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"

	"chainproof/pkg/evidencehash"
)

type CustodyEntry struct {
	Action      string `json:"action"`
	ActorOrg    string `json:"actorOrg"`
	Timestamp   int64  `json:"timestamp"`
	Description string `json:"description"`
}

// Evidence is the subset of the ledger record printed in the report.
type Evidence struct {
	EvidenceID      string         `json:"evidenceId"`
	IPFSCID         string         `json:"ipfsCid"`
	FileHash        string         `json:"fileHash"`
	FileType        string         `json:"fileType"`
	Category        string         `json:"category"`
	Status          string         `json:"status"`
	IntegrityStatus string         `json:"integrityStatus"`
	SubmittedAt     int64          `json:"submittedAt"`
	VerifiedAt      int64          `json:"verifiedAt"`
	ReviewedAt      int64          `json:"reviewedAt"`
	ExportedAt      int64          `json:"exportedAt"`
	PolygonTxHash   string         `json:"polygonTxHash"`
	PolygonAnchorAt int64          `json:"polygonAnchorAt"`
	CustodyLog      []CustodyEntry `json:"custodyLog"`
}

var compress = true

const disclaimer = "This document has been generated by the ChainProof decentralized whistleblowing platform. " +
	"All data contained herein is stored on an immutable distributed ledger (Hyperledger Fabric) " +
	"and anchored to public blockchain networks for independent verification. " +
	"The cryptographic hashes provided can be used to verify the authenticity and integrity " +
	"of the evidence file. This report does not constitute legal advice."

// FormatTimestamp renders unix seconds as "YYYY-MM-DD HH:MM:SS UTC"; zero is "N/A".
func FormatTimestamp(ts int64) string {
	if ts == 0 {
		return "N/A"
	}
	return time.Unix(ts, 0).UTC().Format("2006-01-02 15:04:05") + " UTC"
}

// Hash is the digest printed in the report's verification section.
func Hash(ev Evidence, now time.Time) (string, error) {
	log := ev.CustodyLog
	if log == nil {
		log = []CustodyEntry{}
	}
	h, _, err := evidencehash.CanonicalSHA256(struct {
		EvidenceID string         `json:"evidenceId"`
		FileHash   string         `json:"fileHash"`
		CustodyLog []CustodyEntry `json:"custodyLog"`
		ExportedAt string         `json:"exportedAt"`
	}{ev.EvidenceID, ev.FileHash, log, now.UTC().Format(time.RFC3339)})
	return h, err
}

type writer struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func (w writer) section(title string) {
	w.pdf.SetFont("Helvetica", "B", 12)
	w.pdf.SetTextColor(0x2d, 0x37, 0x48)
	w.pdf.CellFormat(0, 7, title, "", 1, "L", false, 0, "")
	y := w.pdf.GetY() + 0.5
	w.pdf.SetDrawColor(0xcb, 0xd5, 0xe0)
	w.pdf.SetLineWidth(0.3)
	w.pdf.Line(18, y, 105, y)
	w.pdf.Ln(3)
}

func (w writer) row(label, value string) {
	w.pdf.SetFont("Helvetica", "B", 10)
	w.pdf.SetTextColor(0x4a, 0x55, 0x68)
	w.pdf.CellFormat(45, 6, label, "", 0, "L", false, 0, "")
	w.pdf.SetFont("Helvetica", "", 9)
	w.pdf.SetTextColor(0x2d, 0x37, 0x48)
	w.pdf.MultiCell(0, 6, w.tr(orNA(value)), "", "L", false)
	w.pdf.Ln(1)
}

func (w writer) custody(e CustodyEntry) {
	w.pdf.SetFont("Helvetica", "B", 9)
	w.pdf.SetTextColor(0x2d, 0x37, 0x48)
	w.pdf.SetX(21)
	w.pdf.MultiCell(0, 5, w.tr(fmt.Sprintf("[%s] %s", FormatTimestamp(e.Timestamp), e.Action)), "", "L", false)
	w.pdf.SetFont("Helvetica", "", 9)
	w.pdf.SetTextColor(0x71, 0x80, 0x96)
	w.pdf.SetX(25)
	w.pdf.MultiCell(0, 5, w.tr("Organization: "+e.ActorOrg), "", "L", false)
	w.pdf.SetTextColor(0x4a, 0x55, 0x68)
	w.pdf.SetX(25)
	w.pdf.MultiCell(160, 5, w.tr(e.Description), "", "L", false)
	w.pdf.Ln(2)
	y := w.pdf.GetY()
	w.pdf.SetDrawColor(0xe2, 0xe8, 0xf0)
	w.pdf.SetLineWidth(0.2)
	w.pdf.Line(21, y, 189, y)
	w.pdf.Ln(2)
}

// AuditReport renders the A4 report and returns it with its report hash.
func AuditReport(ev Evidence, now time.Time) ([]byte, string, error) {
	reportHash, err := Hash(ev, now)
	if err != nil {
		return nil, "", err
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(compress)
	pdf.SetMargins(18, 18, 18)
	pdf.SetTitle("ChainProof Audit Report - "+ev.EvidenceID, true)
	pdf.SetAuthor("ChainProof Whistleblowing Platform", true)
	pdf.SetSubject("Cryptographic Evidence Audit Report", true)
	pdf.SetCreationDate(now.UTC())
	w := writer{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 24)
	pdf.SetTextColor(0x1a, 0x36, 0x5d)
	pdf.CellFormat(0, 12, "CHAINPROOF", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 14)
	pdf.SetTextColor(0x4a, 0x55, 0x68)
	pdf.CellFormat(0, 8, "Cryptographic Evidence Audit Report", "", 1, "C", false, 0, "")
	pdf.Ln(3)
	pdf.SetDrawColor(0xe2, 0xe8, 0xf0)
	pdf.SetLineWidth(0.7)
	pdf.Line(18, pdf.GetY(), 192, pdf.GetY())
	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetTextColor(0xc5, 0x30, 0x30)
	pdf.CellFormat(0, 6, "CONFIDENTIAL - FOR LEGAL USE ONLY", "", 1, "C", false, 0, "")
	pdf.Ln(8)

	w.section("EVIDENCE SUMMARY")
	w.row("Evidence ID:", ev.EvidenceID)
	w.row("IPFS CID:", ev.IPFSCID)
	w.row("File Hash (SHA-256):", ev.FileHash)
	w.row("File Type:", firstNonEmpty(ev.FileType, "Unknown"))
	w.row("Category:", firstNonEmpty(ev.Category, "Not specified"))
	w.row("Status:", ev.Status)
	w.row("Integrity Status:", ev.IntegrityStatus)
	pdf.Ln(4)

	w.section("TIMELINE")
	w.row("Submitted:", FormatTimestamp(ev.SubmittedAt))
	if ev.VerifiedAt != 0 {
		w.row("Verified:", FormatTimestamp(ev.VerifiedAt))
	}
	if ev.ReviewedAt != 0 {
		w.row("Reviewed:", FormatTimestamp(ev.ReviewedAt))
	}
	if ev.ExportedAt != 0 {
		w.row("Exported:", FormatTimestamp(ev.ExportedAt))
	}
	pdf.Ln(4)

	if ev.PolygonTxHash != "" {
		w.section("PUBLIC BLOCKCHAIN ANCHOR")
		w.row("Polygon/Sepolia TX:", ev.PolygonTxHash)
		w.row("Anchored At:", FormatTimestamp(ev.PolygonAnchorAt))
		pdf.SetFont("Helvetica", "", 9)
		pdf.SetTextColor(0x71, 0x80, 0x96)
		pdf.MultiCell(0, 5, "This transaction can be independently verified on the public blockchain.", "", "L", false)
		pdf.Ln(4)
	}

	pdf.AddPage()
	w.section("CHAIN OF CUSTODY LOG")
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(0x4a, 0x55, 0x68)
	pdf.MultiCell(0, 5, "The following is an immutable record of all actions taken on this evidence:", "", "L", false)
	pdf.Ln(3)
	if len(ev.CustodyLog) == 0 {
		pdf.MultiCell(0, 5, "No custody log entries found.", "", "L", false)
	}
	for _, e := range ev.CustodyLog {
		w.custody(e)
	}
	pdf.Ln(8)

	w.section("CRYPTOGRAPHIC VERIFICATION")
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(0x4a, 0x55, 0x68)
	pdf.MultiCell(0, 5, "This report can be verified using the following cryptographic hashes:", "", "L", false)
	pdf.Ln(3)
	w.row("Report Hash:", reportHash)
	w.row("Original File Hash:", ev.FileHash)
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "BU", 8)
	pdf.SetTextColor(0x71, 0x80, 0x96)
	pdf.CellFormat(0, 5, "LEGAL DISCLAIMER", "", 1, "C", false, 0, "")
	pdf.Ln(2)
	pdf.SetFont("Helvetica", "", 8)
	pdf.MultiCell(0, 4.5, disclaimer, "", "J", false)
	pdf.Ln(8)

	pdf.SetTextColor(0xa0, 0xae, 0xc0)
	pdf.CellFormat(0, 5, "Generated: "+now.UTC().Format(time.RFC3339), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 5, "ChainProof - Secure Disclosure Network", "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, "", fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), reportHash, nil
}

func firstNonEmpty(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
