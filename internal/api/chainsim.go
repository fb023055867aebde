package api

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/labstack/echo/v4"

	"github.com/Kr3yzi/medcertify/internal/chain"
	"github.com/Kr3yzi/medcertify/internal/models"
)

// ChainSimHandler exposes the certificate registry over HTTP for
// development setups without a real node. DevRegistry clients speak this
// surface.
type ChainSimHandler struct {
	registry chain.Registry
}

// NewChainSimHandler creates the simulator handler over a registry,
// normally a MemoryRegistry.
func NewChainSimHandler(registry chain.Registry) *ChainSimHandler {
	return &ChainSimHandler{registry: registry}
}

// issue handles POST /chain/issue.
func (h *ChainSimHandler) issue(c echo.Context) error {
	var req models.ChainIssueRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
			Code:    http.StatusBadRequest,
		})
	}

	if !common.IsHexAddress(req.Patient) || req.CertHash == "" {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "missing_fields",
			Message: "Patient address and certificate hash are required",
			Code:    http.StatusBadRequest,
		})
	}

	tx, err := h.registry.IssueCertificate(c.Request().Context(), common.HexToAddress(req.Patient), req.CertHash)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "chain_issue_failed",
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
	}

	return c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Data:    models.ChainIssueResponse{TransactionHash: tx.Hex()},
	})
}

// lookup handles GET /chain/certificates/:address/:certHash.
func (h *ChainSimHandler) lookup(c echo.Context) error {
	address := c.Param("address")
	certHash := c.Param("certHash")

	if !common.IsHexAddress(address) || certHash == "" {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "missing_fields",
			Message: "Patient address and certificate hash are required",
			Code:    http.StatusBadRequest,
		})
	}

	found, err := h.registry.HasCertificate(c.Request().Context(), common.HexToAddress(address), certHash)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "chain_lookup_failed",
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
	}

	return c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Data:    models.ChainLookupResponse{Found: found},
	})
}
