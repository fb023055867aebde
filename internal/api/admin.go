package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/labstack/echo/v4"

	"github.com/Kr3yzi/medcertify/internal/models"
	"github.com/Kr3yzi/medcertify/internal/storage"
)

// AdminHandler implements role administration and patient registration.
type AdminHandler struct {
	store storage.Store
}

// NewAdminHandler creates the admin handler.
func NewAdminHandler(store storage.Store) *AdminHandler {
	return &AdminHandler{store: store}
}

// grantRole handles POST /api/admin/roles.
func (h *AdminHandler) grantRole(c echo.Context) error {
	var req models.RoleGrantRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
			Code:    http.StatusBadRequest,
		})
	}

	if !common.IsHexAddress(req.Address) {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_address",
			Message: "A valid wallet address is required",
			Code:    http.StatusBadRequest,
		})
	}

	if err := h.store.Grant(req.Address, req.Role); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "grant_failed",
			Message: err.Error(),
			Code:    http.StatusBadRequest,
		})
	}

	return c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: fmt.Sprintf("Role '%s' granted to %s", req.Role, req.Address),
	})
}

// registerPatient handles POST /api/patients.
func (h *AdminHandler) registerPatient(c echo.Context) error {
	var req models.PatientRegisterRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
			Code:    http.StatusBadRequest,
		})
	}

	if !common.IsHexAddress(req.Address) {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_address",
			Message: "A valid wallet address is required",
			Code:    http.StatusBadRequest,
		})
	}

	if err := h.store.Register(req); err != nil {
		if errors.Is(err, storage.ErrPatientExists) {
			return c.JSON(http.StatusConflict, models.ErrorResponse{
				Error:   "patient_exists",
				Message: err.Error(),
				Code:    http.StatusConflict,
			})
		}
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "registration_failed",
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
	}

	// A registered patient always holds the patient role; granting here
	// saves the admin a second call.
	if err := h.store.Grant(req.Address, models.RolePatient); err != nil {
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "grant_failed",
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
	}

	return c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: fmt.Sprintf("Patient %s registered", req.Address),
	})
}
