package client_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Kr3yzi/medcertify/internal/models"
	"github.com/Kr3yzi/medcertify/pkg/client"
)

// Example demonstrates the wallet login exchange and a certificate
// verification request. This is documentation only and does not run.
func Example() {
	// Create a new client
	c, err := client.New("http://localhost:4000",
		client.WithTimeout(30*time.Second),
		client.WithUserAgent("example-app/1.0"),
	)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	ctx := context.Background()

	// Check service health
	if err := c.HealthCheck(ctx); err != nil {
		log.Fatalf("Service unhealthy: %v", err)
	}

	address := "0x1111111111111111111111111111111111111111"

	// Step 1: Request a one-time nonce for the wallet address
	nonceResp, err := c.GenerateNonce(ctx, address)
	if err != nil {
		log.Fatalf("Failed to generate nonce: %v", err)
	}

	// Step 2: Sign the challenge message with the wallet, then exchange
	// the proof for a bearer token
	signature := "0x..." // personal_sign over the challenge message
	tokenResp, err := c.VerifySignature(ctx, models.AuthProof{
		Address:   address,
		Signature: signature,
		Nonce:     nonceResp.Nonce,
	})
	if err != nil {
		if apiErr, ok := err.(*client.APIError); ok && apiErr.IsUnauthorized() {
			log.Fatalf("Signature rejected: %v", err)
		}
		log.Fatalf("Failed to verify signature: %v", err)
	}
	c.SetToken(tokenResp.Token)

	// Step 3: Fetch role memberships
	roleResp, err := c.CheckRole(ctx)
	if err != nil {
		log.Fatalf("Failed to check roles: %v", err)
	}
	fmt.Printf("Roles: %v\n", roleResp.Roles)

	// Verify a certificate
	result, err := c.VerifyCertificate(ctx, address, "0xcerthash")
	if err != nil {
		log.Fatalf("Failed to verify certificate: %v", err)
	}
	fmt.Printf("Valid: %v (hash=%v chain=%v storage=%v)\n",
		result.IsValid, result.HashMatch, result.FoundOnChain, result.IPFSOk)
}
