package entitlement_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alteralabs/license-server/internal/entitlement"
	"github.com/alteralabs/license-server/internal/models"
	"github.com/alteralabs/license-server/internal/token"
)

type fixture struct {
	bans     *memoryBans
	licenses *memoryLicenses
	ledger   *memoryLedger
	codec    *token.Codec
	svc      *entitlement.Service
}

func newFixture(licenses ...models.License) *fixture {
	f := &fixture{
		bans:     newMemoryBans(),
		licenses: newMemoryLicenses(licenses...),
		codec:    token.NewCodec("test-secret"),
	}
	f.ledger = newMemoryLedger(f.licenses)
	f.svc = entitlement.NewService(f.bans, f.licenses, f.ledger, f.codec)
	return f
}

func license(key string, maxSeats int, expiry time.Time) models.License {
	return models.License{
		Key:      key,
		Email:    "owner@acme.test",
		Plan:     "Professional",
		Expiry:   expiry,
		MaxSeats: maxSeats,
	}
}

func nextYear() time.Time {
	return time.Now().UTC().AddDate(1, 0, 0)
}

func TestActivateIssuesToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(license("ACME-1", 3, nextYear()))

	result, err := f.svc.Activate(ctx, "ACME-1", "M1", "alice")
	require.NoError(t, err)
	assert.Equal(t, "owner@acme.test", result.Email)
	assert.Equal(t, "Professional", result.Plan)
	require.NotEmpty(t, result.Token)

	claims, err := f.codec.Decode(result.Token)
	require.NoError(t, err)
	assert.Equal(t, "ACME-1", claims.LicenseKey)
	assert.Equal(t, "M1", claims.MachineID)

	act, err := f.ledger.FindLive(ctx, "ACME-1", "M1")
	require.NoError(t, err)
	assert.Equal(t, "alice", act.Username)
}

func TestActivateUnknownLicense(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Activate(context.Background(), "NOPE", "M1", "")
	assert.ErrorIs(t, err, entitlement.ErrLicenseNotFound)
}

func TestActivateExpiredLicense(t *testing.T) {
	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	f := newFixture(license("OLD-1", 3, yesterday))

	_, err := f.svc.Activate(context.Background(), "OLD-1", "M1", "")
	assert.ErrorIs(t, err, entitlement.ErrLicenseExpired)
}

func TestActivateOnExpiryDaySucceeds(t *testing.T) {
	// The expiry date is inclusive: a license expiring today is still valid.
	today := time.Now().UTC()
	f := newFixture(license("EDGE-1", 1, today))

	_, err := f.svc.Activate(context.Background(), "EDGE-1", "M1", "")
	assert.NoError(t, err)
}

func TestActivateSeatLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(license("ACME-1", 1, nextYear()))

	_, err := f.svc.Activate(ctx, "ACME-1", "M1", "")
	require.NoError(t, err)

	_, err = f.svc.Activate(ctx, "ACME-1", "M2", "")
	assert.ErrorIs(t, err, entitlement.ErrSeatLimitReached)
	assert.Equal(t, 1, f.ledger.liveCount("ACME-1"))
}

func TestActivateZeroSeatLicense(t *testing.T) {
	f := newFixture(license("ZERO-1", 0, nextYear()))

	_, err := f.svc.Activate(context.Background(), "ZERO-1", "M1", "")
	assert.ErrorIs(t, err, entitlement.ErrSeatLimitReached)
}

func TestReactivateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(license("ACME-1", 1, nextYear()))

	first, err := f.svc.Activate(ctx, "ACME-1", "M1", "alice")
	require.NoError(t, err)

	// Same pair again: no seat check, live count unchanged, fresh token,
	// username overwritten.
	second, err := f.svc.Activate(ctx, "ACME-1", "M1", "bob")
	require.NoError(t, err)
	require.NotEmpty(t, second.Token)
	assert.Equal(t, first.Plan, second.Plan)
	assert.Equal(t, 1, f.ledger.liveCount("ACME-1"))
	assert.Len(t, f.ledger.allRows("ACME-1"), 1)

	act, err := f.ledger.FindLive(ctx, "ACME-1", "M1")
	require.NoError(t, err)
	assert.Equal(t, "bob", act.Username)
}

func TestDeactivateThenReactivateCreatesNewRow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(license("ACME-1", 1, nextYear()))

	_, err := f.svc.Activate(ctx, "ACME-1", "M1", "")
	require.NoError(t, err)
	require.NoError(t, f.svc.Deactivate(ctx, "ACME-1", "M1"))

	_, err = f.svc.Activate(ctx, "ACME-1", "M1", "")
	require.NoError(t, err)

	rows := f.ledger.allRows("ACME-1")
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Revoked, "first row stays revoked")
	assert.False(t, rows[1].Revoked)
	assert.NotEqual(t, rows[0].ID, rows[1].ID)
}

func TestDeactivateWithoutLiveRow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(license("ACME-1", 1, nextYear()))

	err := f.svc.Deactivate(ctx, "ACME-1", "M1")
	assert.ErrorIs(t, err, entitlement.ErrActivationNotFound)

	// Double deactivation is a failure too, never a silent no-op.
	_, err = f.svc.Activate(ctx, "ACME-1", "M1", "")
	require.NoError(t, err)
	require.NoError(t, f.svc.Deactivate(ctx, "ACME-1", "M1"))
	err = f.svc.Deactivate(ctx, "ACME-1", "M1")
	assert.ErrorIs(t, err, entitlement.ErrActivationNotFound)
}

func TestValidateHappyPath(t *testing.T) {
	ctx := context.Background()
	f := newFixture(license("ACME-1", 1, nextYear()))

	act, err := f.svc.Activate(ctx, "ACME-1", "M1", "")
	require.NoError(t, err)

	result, err := f.svc.Validate(ctx, act.Token, "M1")
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.False(t, result.Expired)
	assert.Equal(t, "Professional", result.Plan)
	assert.Equal(t, "owner@acme.test", result.Email)
	assert.Equal(t, "ACME-1", result.LicenseKey)
}

func TestValidateInvalidToken(t *testing.T) {
	f := newFixture(license("ACME-1", 1, nextYear()))

	result, err := f.svc.Validate(context.Background(), "garbage", "M1")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "Invalid token", result.Message)
}

func TestValidateMachineMismatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(license("ACME-1", 2, nextYear()))

	act, err := f.svc.Activate(ctx, "ACME-1", "M1", "")
	require.NoError(t, err)

	// A token for machine A presented from machine B is always rejected,
	// regardless of A's entitlement state.
	result, err := f.svc.Validate(ctx, act.Token, "M2")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "Machine mismatch", result.Message)
}

func TestValidateAfterLicenseDeleted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(license("ACME-1", 1, nextYear()))

	act, err := f.svc.Activate(ctx, "ACME-1", "M1", "")
	require.NoError(t, err)

	f.licenses.Delete("ACME-1")

	result, err := f.svc.Validate(ctx, act.Token, "M1")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "License not found", result.Message)
}

func TestValidateAfterRevocation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(license("ACME-1", 1, nextYear()))

	act, err := f.svc.Activate(ctx, "ACME-1", "M1", "")
	require.NoError(t, err)
	require.NoError(t, f.svc.Deactivate(ctx, "ACME-1", "M1"))

	result, err := f.svc.Validate(ctx, act.Token, "M1")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "Activation revoked or not found", result.Message)
}

func TestValidateSeesFreshExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(license("ACME-1", 1, nextYear()))

	act, err := f.svc.Activate(ctx, "ACME-1", "M1", "")
	require.NoError(t, err)

	// The admin surface moves the expiry into the past after issuance. The
	// token still carries the old future date, but Validate re-reads the row.
	expired := license("ACME-1", 1, time.Now().UTC().AddDate(0, 0, -2))
	f.licenses.Put(expired)

	result, err := f.svc.Validate(ctx, act.Token, "M1")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.True(t, result.Expired)
	assert.Equal(t, expired.ExpiryDate(), result.ExpiryDate)
}

func TestBannedMachineIsBlockedEverywhere(t *testing.T) {
	ctx := context.Background()
	f := newFixture(license("ACME-1", 2, nextYear()))

	act, err := f.svc.Activate(ctx, "ACME-1", "M1", "")
	require.NoError(t, err)

	f.bans.Ban("M1", "chargeback")

	_, err = f.svc.Activate(ctx, "ACME-1", "M1", "")
	assert.ErrorIs(t, err, entitlement.ErrMachineBanned)

	result, err := f.svc.Validate(ctx, act.Token, "M1")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "Machine is banned", result.Message)

	// The ban blocks the machine without touching its activation row.
	rows := f.ledger.allRows("ACME-1")
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Revoked)

	// Other machines on the same license are unaffected.
	_, err = f.svc.Activate(ctx, "ACME-1", "M2", "")
	assert.NoError(t, err)
}

func TestShrinkingSeatsKeepsExistingActivations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(license("ACME-1", 3, nextYear()))

	for i := 1; i <= 3; i++ {
		_, err := f.svc.Activate(ctx, "ACME-1", fmt.Sprintf("M%d", i), "")
		require.NoError(t, err)
	}

	// Shrinking max_seats below the live count is not retroactive: existing
	// seats stay live, but new machines are rejected.
	f.licenses.Put(license("ACME-1", 1, nextYear()))

	tok, err := f.svc.Activate(ctx, "ACME-1", "M1", "")
	require.NoError(t, err, "idempotent re-activation skips the seat check")
	result, err := f.svc.Validate(ctx, tok.Token, "M1")
	require.NoError(t, err)
	assert.True(t, result.Valid)

	_, err = f.svc.Activate(ctx, "ACME-1", "M9", "")
	assert.ErrorIs(t, err, entitlement.ErrSeatLimitReached)
	assert.Equal(t, 3, f.ledger.liveCount("ACME-1"))
}

func TestScenarioSingleSeatLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(license("ACME-1", 1, nextYear()))

	first, err := f.svc.Activate(ctx, "ACME-1", "M1", "")
	require.NoError(t, err)

	_, err = f.svc.Activate(ctx, "ACME-1", "M2", "")
	require.ErrorIs(t, err, entitlement.ErrSeatLimitReached)

	require.NoError(t, f.svc.Deactivate(ctx, "ACME-1", "M1"))

	_, err = f.svc.Activate(ctx, "ACME-1", "M2", "")
	require.NoError(t, err)

	result, err := f.svc.Validate(ctx, first.Token, "M1")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "Activation revoked or not found", result.Message)
}

func TestConcurrentActivationsRespectSeatCap(t *testing.T) {
	ctx := context.Background()
	const seats = 3
	const machines = 20
	f := newFixture(license("ACME-1", seats, nextYear()))

	var wg sync.WaitGroup
	errs := make([]error, machines)
	for i := 0; i < machines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Activate(ctx, "ACME-1", fmt.Sprintf("M%d", i), "")
		}(i)
	}
	wg.Wait()

	granted := 0
	for _, err := range errs {
		if err == nil {
			granted++
		} else {
			require.ErrorIs(t, err, entitlement.ErrSeatLimitReached)
		}
	}
	assert.Equal(t, seats, granted)
	assert.Equal(t, seats, f.ledger.liveCount("ACME-1"))
}
