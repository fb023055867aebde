// Package api wires the MedCertify HTTP surface: wallet authentication,
// certificate issuance and verification, administration, a local gateway
// for stored payloads, and a dev chain simulator.
package api

import (
	"net/http"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log"
	"github.com/labstack/echo/v4"

	"github.com/Kr3yzi/medcertify/internal/chain"
	"github.com/Kr3yzi/medcertify/internal/config"
	"github.com/Kr3yzi/medcertify/internal/models"
	"github.com/Kr3yzi/medcertify/internal/storage"
)

var log = logging.Logger("api")

// RegisterRoutes registers all API routes.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, store storage.Store, registry chain.Registry) error {
	secret := []byte(cfg.Server.JWTSecret)
	if len(secret) == 0 {
		log.Warn("no JWT secret configured, tokens will not survive restarts")
		secret = []byte(newRandomSecret())
	}

	authHandler := NewAuthHandler(store, secret, cfg.Server.TokenTTL)
	certHandler := NewCertificateHandler(store, registry)
	adminHandler := NewAdminHandler(store)

	e.GET("/health", healthCheck)

	// Payloads are public, like any IPFS gateway.
	e.GET("/ipfs/:cid", certHandler.servePayload)

	apiGroup := e.Group("/api")

	// Challenge-response login.
	apiGroup.POST("/generate-nonce", authHandler.generateNonce)
	apiGroup.POST("/verify-signature", authHandler.verifySignature)

	// Verification is open: anyone holding a hash may check it.
	apiGroup.POST("/verify-certificate", certHandler.verifyCertificate)

	authed := apiGroup.Group("", RequireAuth(secret))
	authed.GET("/check-role", authHandler.checkRole)
	authed.GET("/patient/verify", authHandler.verifyPatient)

	clinical := authed.Group("", RequireRole(store, models.RoleDoctor, models.RoleNurse))
	clinical.POST("/issue-certificate", certHandler.issueCertificate)
	clinical.PATCH("/issue-certificate/:certHash/signature", certHandler.attachSignature)
	clinical.PATCH("/certificates/:certHash/tx", certHandler.recordTransaction)

	// Patients list their own records; staff list the clinic's.
	listing := authed.Group("", RequireRole(store,
		models.RoleAdmin, models.RoleReceptionist, models.RoleNurse, models.RoleDoctor,
		models.RolePatient))
	listing.GET("/certificates", certHandler.listCertificates)

	frontdesk := authed.Group("", RequireRole(store, models.RoleAdmin, models.RoleReceptionist))
	frontdesk.POST("/patients", adminHandler.registerPatient)

	admin := authed.Group("/admin", RequireRole(store, models.RoleAdmin))
	admin.POST("/roles", adminHandler.grantRole)

	// The simulator shares the server's registry so issued certificates
	// are visible to both surfaces.
	if cfg.Chain.Mode != "rpc" {
		sim := NewChainSimHandler(registry)
		e.POST("/chain/issue", sim.issue)
		e.GET("/chain/certificates/:address/:certHash", sim.lookup)
	}

	return nil
}

func newRandomSecret() string {
	return uuid.NewString() + uuid.NewString()
}

// healthCheck returns the health status of the service.
func healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "MedCertify service is healthy",
		Data: map[string]string{
			"status":  "ok",
			"service": "medcertify",
		},
	})
}
