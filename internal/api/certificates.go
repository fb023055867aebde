package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/labstack/echo/v4"

	"github.com/Kr3yzi/medcertify/internal/chain"
	"github.com/Kr3yzi/medcertify/internal/models"
	"github.com/Kr3yzi/medcertify/internal/storage"
)

// CertificateHandler implements the issuance and verification endpoints.
// The off-chain record, the content-addressed payload and the on-chain
// entry each carry part of the certificate; the handler keeps all three in
// step.
type CertificateHandler struct {
	store    storage.Store
	registry chain.Registry
}

// NewCertificateHandler creates the certificate handler.
func NewCertificateHandler(store storage.Store, registry chain.Registry) *CertificateHandler {
	return &CertificateHandler{store: store, registry: registry}
}

// attestationPayload is the canonical content that gets hashed and stored.
// Field order is fixed by the struct so identical submissions produce
// identical hashes.
type attestationPayload struct {
	Patient     string `json:"patient"`
	CertType    string `json:"certType"`
	Attestation string `json:"attestation"`
	IssuedBy    string `json:"issuedBy"`
	TestID      string `json:"testId,omitempty"`
}

// issueCertificate handles POST /api/issue-certificate. Submission is
// idempotent: identical content maps to the same hash, CID and record.
func (h *CertificateHandler) issueCertificate(c echo.Context) error {
	var req models.IssueCertificateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
			Code:    http.StatusBadRequest,
		})
	}

	if !common.IsHexAddress(req.Patient) {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_patient",
			Message: "A valid patient wallet address is required",
			Code:    http.StatusBadRequest,
		})
	}
	if req.CertType == "" || req.Attestation == "" {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "missing_fields",
			Message: "Certificate type and attestation are required",
			Code:    http.StatusBadRequest,
		})
	}

	registered, err := h.store.IsRegistered(req.Patient)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "patient_lookup_failed",
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
	}
	if !registered {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "patient_not_registered",
			Message: fmt.Sprintf("Patient %s is not registered", req.Patient),
			Code:    http.StatusBadRequest,
		})
	}

	issuedBy := req.IssuedBy
	if issuedBy == "" {
		issuedBy = AuthenticatedAddress(c).Hex()
	}

	payload, err := json.Marshal(attestationPayload{
		Patient:     common.HexToAddress(req.Patient).Hex(),
		CertType:    req.CertType,
		Attestation: req.Attestation,
		IssuedBy:    common.HexToAddress(issuedBy).Hex(),
		TestID:      req.TestID,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "payload_encoding_failed",
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
	}

	certHash, cid := ContentAddress(payload)

	if err := h.store.PutPayload(cid, payload); err != nil {
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "payload_storage_failed",
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
	}

	record := &models.CertificateRecord{
		PatientAddress: req.Patient,
		CertType:       req.CertType,
		CertHash:       certHash,
		CID:            cid,
		IssuedBy:       issuedBy,
	}
	if err := h.store.Create(record); err != nil {
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "record_creation_failed",
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
	}

	log.Infow("certificate submitted",
		"cert_hash", certHash,
		"cid", cid,
		"patient", req.Patient,
		"cert_type", req.CertType)

	return c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Data:    models.IssueCertificateResponse{CertHash: certHash, CID: cid},
	})
}

// attachSignature handles PATCH /api/issue-certificate/:certHash/signature.
func (h *CertificateHandler) attachSignature(c echo.Context) error {
	certHash := c.Param("certHash")

	var req models.AttachSignatureRequest
	if err := c.Bind(&req); err != nil || req.Signature == "" {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "A signature is required",
			Code:    http.StatusBadRequest,
		})
	}

	if err := h.store.AttachSignature(certHash, req.Signature); err != nil {
		return h.recordMutationError(c, certHash, err)
	}

	return c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "Signature attached",
	})
}

// recordTransaction handles PATCH /api/certificates/:certHash/tx.
func (h *CertificateHandler) recordTransaction(c echo.Context) error {
	certHash := c.Param("certHash")

	var req models.RecordTransactionRequest
	if err := c.Bind(&req); err != nil || req.TransactionHash == "" {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "A transaction hash is required",
			Code:    http.StatusBadRequest,
		})
	}

	if err := h.store.RecordTransaction(certHash, req.TransactionHash); err != nil {
		return h.recordMutationError(c, certHash, err)
	}

	return c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "Transaction recorded",
	})
}

func (h *CertificateHandler) recordMutationError(c echo.Context, certHash string, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "certificate_not_found",
			Message: fmt.Sprintf("Certificate '%s' not found", certHash),
			Code:    http.StatusNotFound,
		})
	case errors.Is(err, storage.ErrSignatureConflict), errors.Is(err, storage.ErrTransactionConflict):
		return c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   "conflict",
			Message: err.Error(),
			Code:    http.StatusConflict,
		})
	default:
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "record_update_failed",
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
	}
}

// verifyCertificate handles POST /api/verify-certificate. It recomputes
// the three signals server-side; clients are free to repeat the checks
// independently from the echoed hash and CID.
func (h *CertificateHandler) verifyCertificate(c echo.Context) error {
	var req models.VerifyCertificateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
			Code:    http.StatusBadRequest,
		})
	}
	if !common.IsHexAddress(req.PatientAddress) || req.CertHash == "" {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "missing_fields",
			Message: "Patient address and certificate hash are required",
			Code:    http.StatusBadRequest,
		})
	}

	record, err := h.store.GetByHash(req.CertHash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.ErrorResponse{
				Error:   "certificate_not_found",
				Message: fmt.Sprintf("Certificate '%s' not found", req.CertHash),
				Code:    http.StatusNotFound,
			})
		}
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "record_lookup_failed",
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
	}

	resp := models.VerifyCertificateResponse{
		CertHash: record.CertHash,
		CID:      record.CID,
	}

	// Hash check: the stored payload still hashes to the claimed value
	// and the record belongs to the claimed patient.
	payload, err := h.store.GetPayload(record.CID)
	if err == nil {
		recomputed, _ := ContentAddress(payload)
		resp.HashMatch = recomputed == req.CertHash && equalAddress(record.PatientAddress, req.PatientAddress)
		resp.IPFSOk = true
	}

	found, err := h.registry.HasCertificate(c.Request().Context(), common.HexToAddress(req.PatientAddress), req.CertHash)
	if err != nil {
		log.Warnw("chain lookup failed during verification", "cert_hash", req.CertHash, "error", err)
	}
	resp.FoundOnChain = found

	resp.IsValid = resp.HashMatch && resp.FoundOnChain && resp.IPFSOk

	return c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Data:    resp,
	})
}

// listCertificates handles GET /api/certificates. Staff callers see every
// record in the clinic; patient callers see only their own.
func (h *CertificateHandler) listCertificates(c echo.Context) error {
	address := AuthenticatedAddress(c)

	roles, err := h.store.Roles(address.Hex())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "role_lookup_failed",
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
	}

	var records []models.CertificateRecord
	if roles[models.RoleAdmin] || roles[models.RoleReceptionist] ||
		roles[models.RoleNurse] || roles[models.RoleDoctor] {
		records, err = h.store.List()
	} else {
		records, err = h.store.ListByPatient(address.Hex())
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "list_failed",
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
	}

	return c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Data:    records,
	})
}

// servePayload handles GET /ipfs/:cid, mirroring a public gateway: the
// payload is returned as base64 text.
func (h *CertificateHandler) servePayload(c echo.Context) error {
	cid := c.Param("cid")

	payload, err := h.store.GetPayload(cid)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.String(http.StatusNotFound, "payload not found")
		}
		return c.String(http.StatusInternalServerError, err.Error())
	}

	return c.String(http.StatusOK, base64.StdEncoding.EncodeToString(payload))
}

// ContentAddress derives the content hash and storage pointer for an
// attestation payload. The hash is the keccak256 of the payload bytes; the
// CID is derived from the same digest under a distinct prefix.
func ContentAddress(payload []byte) (certHash, cid string) {
	digest := crypto.Keccak256(payload)
	return fmt.Sprintf("0x%x", digest), fmt.Sprintf("bafk%x", digest)
}

func equalAddress(a, b string) bool {
	return common.HexToAddress(a) == common.HexToAddress(b)
}
