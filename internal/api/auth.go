package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/Kr3yzi/medcertify/internal/auth"
	"github.com/Kr3yzi/medcertify/internal/models"
	"github.com/Kr3yzi/medcertify/internal/storage"
	"github.com/Kr3yzi/medcertify/internal/wallet"
)

// addressContextKey is where the authenticated wallet address lives on the
// echo context.
const addressContextKey = "wallet_address"

// AuthHandler implements the wallet challenge-response endpoints: nonce
// issuance, signature verification and the role lookups behind session
// establishment.
type AuthHandler struct {
	store    storage.Store
	secret   []byte
	tokenTTL time.Duration
}

// NewAuthHandler creates the auth handler. secret signs bearer tokens.
func NewAuthHandler(store storage.Store, secret []byte, tokenTTL time.Duration) *AuthHandler {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &AuthHandler{store: store, secret: secret, tokenTTL: tokenTTL}
}

// generateNonce handles POST /api/generate-nonce.
func (h *AuthHandler) generateNonce(c echo.Context) error {
	var req models.NonceRequest
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

	nonce, err := h.store.Issue(req.Address)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "nonce_generation_failed",
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
	}

	return c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Data:    models.NonceResponse{Nonce: nonce},
	})
}

// verifySignature handles POST /api/verify-signature. The nonce burns on
// the first attempt whether or not the signature checks out.
func (h *AuthHandler) verifySignature(c echo.Context) error {
	var req models.VerifySignatureRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
			Code:    http.StatusBadRequest,
		})
	}

	if !common.IsHexAddress(req.Address) || req.Signature == "" || req.Nonce == "" {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "missing_fields",
			Message: "Address, signature and nonce are required",
			Code:    http.StatusBadRequest,
		})
	}

	if err := h.store.Consume(req.Address, req.Nonce); err != nil {
		return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Error:   "invalid_nonce",
			Message: "Nonce is unknown, expired or already used",
			Code:    http.StatusUnauthorized,
		})
	}

	message := auth.ChallengeMessage(req.Nonce)
	recovered, err := wallet.RecoverPersonal([]byte(message), common.FromHex(req.Signature))
	if err != nil || recovered != common.HexToAddress(req.Address) {
		log.Warnw("signature verification failed", "address", req.Address, "error", err)
		return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Error:   "invalid_signature",
			Message: "Signature does not match the challenge",
			Code:    http.StatusUnauthorized,
		})
	}

	token, err := h.mintToken(recovered)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "token_generation_failed",
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
	}

	log.Infow("wallet authenticated", "address", recovered.Hex())

	return c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Data:    models.TokenResponse{Token: token},
	})
}

func (h *AuthHandler) mintToken(address common.Address) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   address.Hex(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(h.tokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
}

// checkRole handles GET /api/check-role.
func (h *AuthHandler) checkRole(c echo.Context) error {
	address := AuthenticatedAddress(c)

	roles, err := h.store.Roles(address.Hex())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "role_lookup_failed",
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
	}

	return c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Data:    models.RoleCheckResponse{Roles: roles},
	})
}

// verifyPatient handles GET /api/patient/verify.
func (h *AuthHandler) verifyPatient(c echo.Context) error {
	address := AuthenticatedAddress(c)

	registered, err := h.store.IsRegistered(address.Hex())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "patient_lookup_failed",
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
	}

	return c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Data:    models.PatientVerifyResponse{IsRegistered: registered},
	})
}

// RequireAuth parses and validates the bearer token and records the
// authenticated address on the context.
func RequireAuth(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
					Error:   "missing_token",
					Message: "Authorization bearer token is required",
					Code:    http.StatusUnauthorized,
				})
			}

			claims := &jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
				if t.Method != jwt.SigningMethodHS256 {
					return nil, errors.New("unexpected signing method")
				}
				return secret, nil
			})
			if err != nil || !token.Valid || !common.IsHexAddress(claims.Subject) {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
					Error:   "invalid_token",
					Message: "Bearer token is invalid or expired",
					Code:    http.StatusUnauthorized,
				})
			}

			c.Set(addressContextKey, common.HexToAddress(claims.Subject))
			return next(c)
		}
	}
}

// RequireRole gates a route on the authenticated address holding at least
// one of the given roles. Must be chained after RequireAuth.
func RequireRole(store storage.RoleStore, allowed ...models.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			address := AuthenticatedAddress(c)

			roles, err := store.Roles(address.Hex())
			if err != nil {
				return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
					Error:   "role_lookup_failed",
					Message: err.Error(),
					Code:    http.StatusInternalServerError,
				})
			}

			for _, role := range allowed {
				if roles[role] {
					return next(c)
				}
			}

			return c.JSON(http.StatusForbidden, models.ErrorResponse{
				Error:   "forbidden",
				Message: "Insufficient role for this operation",
				Code:    http.StatusForbidden,
			})
		}
	}
}

// AuthenticatedAddress returns the wallet address RequireAuth stored on
// the context, or the zero address when unauthenticated.
func AuthenticatedAddress(c echo.Context) common.Address {
	if addr, ok := c.Get(addressContextKey).(common.Address); ok {
		return addr
	}
	return common.Address{}
}
