package models

import "time"

// CertificateRecord is the off-chain record of an issued certificate. The
// backend is the system of record; clients hold read-through copies plus the
// signature they contributed. A record is complete only once
// TransactionHash is set; before that it is pending on-chain.
type CertificateRecord struct {
	ID              string    `json:"id"`
	PatientAddress  string    `json:"patientAddress"`
	CertType        string    `json:"certType"`
	CertHash        string    `json:"certHash"`
	CID             string    `json:"cid"`
	IssuedBy        string    `json:"issuedBy"`
	Signature       string    `json:"signature,omitempty"`
	TransactionHash string    `json:"transactionHash,omitempty"`
	IssuedAt        time.Time `json:"issuedAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Pending reports whether the record still awaits chain confirmation.
func (r CertificateRecord) Pending() bool {
	return r.TransactionHash == ""
}

// VerificationResult reports the three independent verification signals.
// IsValid is their conjunction; no single check substitutes for the others,
// and all three are always populated so a failed verification can be
// audited.
type VerificationResult struct {
	HashMatch    bool `json:"hashMatch"`
	FoundOnChain bool `json:"foundOnChain"`
	StorageOk    bool `json:"storageOk"`
	IsValid      bool `json:"isValid"`
}

// IssueCertificateRequest is the body for POST /api/issue-certificate. The
// attestation payload is stored content-addressed; the response hash is
// derived from it.
type IssueCertificateRequest struct {
	Patient     string `json:"patient" validate:"required"`
	IssuedBy    string `json:"issuedBy" validate:"required"`
	CertType    string `json:"certType" validate:"required"`
	Attestation string `json:"attestation" validate:"required"`
	TestID      string `json:"testId,omitempty"`
}

// IssueCertificateResponse carries the content hash and storage pointer of
// the stored attestation.
type IssueCertificateResponse struct {
	CertHash string `json:"certHash"`
	CID      string `json:"cid"`
}

// AttachSignatureRequest is the body for
// PATCH /api/issue-certificate/{certHash}/signature.
type AttachSignatureRequest struct {
	Signature string `json:"signature" validate:"required"`
}

// RecordTransactionRequest is the body for
// PATCH /api/certificates/{certHash}/tx.
type RecordTransactionRequest struct {
	TransactionHash string `json:"transactionHash" validate:"required"`
}

// VerifyCertificateRequest is the body for POST /api/verify-certificate.
type VerifyCertificateRequest struct {
	PatientAddress string `json:"patientAddress" validate:"required"`
	CertHash       string `json:"certHash" validate:"required"`
}

// VerifyCertificateResponse is the backend's view of a certificate during
// verification. CertHash and CID echo the stored record so callers can
// recompute the checks independently.
type VerifyCertificateResponse struct {
	IsValid      bool   `json:"isValid"`
	HashMatch    bool   `json:"hashMatch"`
	FoundOnChain bool   `json:"foundOnChain"`
	IPFSOk       bool   `json:"ipfsOk"`
	CertHash     string `json:"certHash"`
	CID          string `json:"cid"`
}

// ChainIssueRequest is the body for the dev chain simulator's
// POST /chain/issue.
type ChainIssueRequest struct {
	Patient  string `json:"patient" validate:"required"`
	CertHash string `json:"certHash" validate:"required"`
}

// ChainIssueResponse carries the simulated transaction hash.
type ChainIssueResponse struct {
	TransactionHash string `json:"transactionHash"`
}

// ChainLookupResponse is the body returned by the dev chain simulator's
// GET /chain/certificates/{address}/{certHash}.
type ChainLookupResponse struct {
	Found bool `json:"found"`
}
