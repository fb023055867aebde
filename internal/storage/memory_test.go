package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kr3yzi/medcertify/internal/models"
)

const (
	testAddress = "0x1111111111111111111111111111111111111111"
	testHash    = "0xdeadbeef"
)

func TestNonceOneTimeUse(t *testing.T) {
	store := NewMemoryStore()

	nonce, err := store.Issue(testAddress)
	require.NoError(t, err)
	require.NotEmpty(t, nonce)

	require.NoError(t, store.Consume(testAddress, nonce))
	// Consumed means gone, even for the correct value.
	assert.ErrorIs(t, store.Consume(testAddress, nonce), ErrNonceInvalid)
}

func TestNonceFailedAttemptInvalidates(t *testing.T) {
	store := NewMemoryStore()

	nonce, err := store.Issue(testAddress)
	require.NoError(t, err)

	assert.ErrorIs(t, store.Consume(testAddress, "wrong"), ErrNonceInvalid)
	// The real nonce burned with the failed attempt.
	assert.ErrorIs(t, store.Consume(testAddress, nonce), ErrNonceInvalid)
}

func TestNonceReissueReplaces(t *testing.T) {
	store := NewMemoryStore()

	first, err := store.Issue(testAddress)
	require.NoError(t, err)
	second, err := store.Issue(testAddress)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	assert.ErrorIs(t, store.Consume(testAddress, first), ErrNonceInvalid)
}

func TestNonceExpiry(t *testing.T) {
	store := NewMemoryStoreWithTTL(10 * time.Millisecond)

	nonce, err := store.Issue(testAddress)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	assert.ErrorIs(t, store.Consume(testAddress, nonce), ErrNonceInvalid)
}

func TestNonceAddressCaseInsensitive(t *testing.T) {
	store := NewMemoryStore()

	nonce, err := store.Issue("0xAAaA111111111111111111111111111111111111")
	require.NoError(t, err)
	assert.NoError(t, store.Consume("0xaaaa111111111111111111111111111111111111", nonce))
}

func TestCertificateCreateIsIdempotent(t *testing.T) {
	store := NewMemoryStore()

	record := &models.CertificateRecord{
		PatientAddress: testAddress,
		CertType:       "MMR Vaccine",
		CertHash:       testHash,
		CID:            "bafycid",
		IssuedBy:       "0x2222222222222222222222222222222222222222",
	}
	require.NoError(t, store.Create(record))
	require.NotEmpty(t, record.ID)

	again := &models.CertificateRecord{
		PatientAddress: testAddress,
		CertType:       "MMR Vaccine",
		CertHash:       testHash,
		CID:            "bafycid",
	}
	require.NoError(t, store.Create(again))
	assert.Equal(t, record.ID, again.ID, "same content yields the same record")

	records, err := store.List()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestAttachSignature(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Create(&models.CertificateRecord{
		PatientAddress: testAddress,
		CertHash:       testHash,
	}))

	require.NoError(t, store.AttachSignature(testHash, "0xsig1"))
	// Retrying the identical signature is a no-op.
	require.NoError(t, store.AttachSignature(testHash, "0xsig1"))
	// A different signature for the same hash is a conflict.
	assert.ErrorIs(t, store.AttachSignature(testHash, "0xsig2"), ErrSignatureConflict)

	assert.ErrorIs(t, store.AttachSignature("0xmissing", "0xsig1"), ErrNotFound)
}

func TestRecordTransaction(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Create(&models.CertificateRecord{
		PatientAddress: testAddress,
		CertHash:       testHash,
	}))

	require.NoError(t, store.RecordTransaction(testHash, "0xtx1"))
	require.NoError(t, store.RecordTransaction(testHash, "0xtx1"))
	assert.ErrorIs(t, store.RecordTransaction(testHash, "0xtx2"), ErrTransactionConflict)

	record, err := store.GetByHash(testHash)
	require.NoError(t, err)
	assert.False(t, record.Pending())
}

func TestListByPatient(t *testing.T) {
	store := NewMemoryStore()
	other := "0x2222222222222222222222222222222222222222"

	require.NoError(t, store.Create(&models.CertificateRecord{PatientAddress: testAddress, CertHash: "0x01"}))
	require.NoError(t, store.Create(&models.CertificateRecord{PatientAddress: other, CertHash: "0x02"}))
	require.NoError(t, store.Create(&models.CertificateRecord{PatientAddress: testAddress, CertHash: "0x03"}))

	records, err := store.ListByPatient(testAddress)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.NotEqual(t, "0x02", r.CertHash)
	}
}

func TestRoles(t *testing.T) {
	store := NewMemoryStore()

	roles, err := store.Roles(testAddress)
	require.NoError(t, err)
	for _, role := range models.RolePriority {
		assert.False(t, roles[role])
	}

	require.NoError(t, store.Grant(testAddress, models.RoleDoctor))
	require.NoError(t, store.Grant(testAddress, models.RolePatient))

	roles, err = store.Roles(testAddress)
	require.NoError(t, err)
	assert.True(t, roles[models.RoleDoctor])
	assert.True(t, roles[models.RolePatient])
	assert.False(t, roles[models.RoleAdmin])

	assert.Error(t, store.Grant(testAddress, models.Role("janitor")))
}

func TestPatientRegistration(t *testing.T) {
	store := NewMemoryStore()

	registered, err := store.IsRegistered(testAddress)
	require.NoError(t, err)
	assert.False(t, registered)

	require.NoError(t, store.Register(models.PatientRegisterRequest{
		Address:  testAddress,
		FullName: "Alice Tan",
	}))

	registered, err = store.IsRegistered(testAddress)
	require.NoError(t, err)
	assert.True(t, registered)

	err = store.Register(models.PatientRegisterRequest{Address: testAddress})
	assert.ErrorIs(t, err, ErrPatientExists)
}

func TestPayloadRoundTrip(t *testing.T) {
	store := NewMemoryStore()

	require.NoError(t, store.PutPayload("bafycid", []byte("payload")))
	payload, err := store.GetPayload("bafycid")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), payload)

	_, err = store.GetPayload("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
