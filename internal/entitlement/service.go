// Package entitlement implements the activation state machine: seat
// accounting, activation and revocation, token issuance and validation, and
// machine banning. It is the only place that decides whether a machine is
// entitled; the HTTP layer above it just maps results to status codes and the
// store layer below it just reads and writes rows.
package entitlement

import (
	"context"
	"time"

	"github.com/alteralabs/license-server/internal/models"
	"github.com/alteralabs/license-server/internal/token"
)

// BanRegistry answers whether a machine is blacklisted. Consulted before any
// other lookup so banned machines never learn whether a license exists.
type BanRegistry interface {
	IsBanned(ctx context.Context, machineID string) (bool, error)
}

// LicenseDirectory is the read-only view of license terms. Every call must
// see the latest row; the admin surface may edit a license at any time.
type LicenseDirectory interface {
	FindByKey(ctx context.Context, key string) (*models.License, error)
}

// SeatLedger is the per-(license, machine) activation state machine. Activate
// must perform its seat-count check and insert as one atomic step per license
// key; concurrent calls for distinct machines must never jointly exceed the
// seat cap.
type SeatLedger interface {
	Activate(ctx context.Context, lic *models.License, machineID, username string) (*models.Activation, error)
	Deactivate(ctx context.Context, licenseKey, machineID string) error
	FindLive(ctx context.Context, licenseKey, machineID string) (*models.Activation, error)
}

// TokenCodec signs and verifies entitlement tokens.
type TokenCodec interface {
	Issue(lic *models.License, machineID string) (string, error)
	Decode(tokenString string) (*token.Claims, error)
}

// ActivationResult is the success payload of Activate.
type ActivationResult struct {
	Token      string `json:"token"`
	Email      string `json:"email"`
	Plan       string `json:"plan"`
	ExpiryDate string `json:"expiry_date"`
}

// ValidationResult is always returned by Validate, valid or not. Client
// software polls validation routinely, so every rejection reason is encoded
// in the body instead of an error.
type ValidationResult struct {
	Valid      bool   `json:"valid"`
	Plan       string `json:"plan"`
	Email      string `json:"email"`
	Expired    bool   `json:"expired"`
	ExpiryDate string `json:"expiry_date,omitempty"`
	Message    string `json:"message,omitempty"`
	LicenseKey string `json:"license_key,omitempty"`
}

// Service orchestrates the ban registry, license directory, seat ledger and
// token codec into the three public operations.
type Service struct {
	bans     BanRegistry
	licenses LicenseDirectory
	ledger   SeatLedger
	codec    TokenCodec
	now      func() time.Time
}

func NewService(bans BanRegistry, licenses LicenseDirectory, ledger SeatLedger, codec TokenCodec) *Service {
	return &Service{
		bans:     bans,
		licenses: licenses,
		ledger:   ledger,
		codec:    codec,
		now:      time.Now,
	}
}

// Activate claims a seat for machineID on the given license and returns a
// signed token. Re-activating an already-live pair is idempotent: it updates
// the username, skips the seat check and returns a fresh token.
func (s *Service) Activate(ctx context.Context, licenseKey, machineID, username string) (*ActivationResult, error) {
	banned, err := s.bans.IsBanned(ctx, machineID)
	if err != nil {
		return nil, err
	}
	if banned {
		return nil, ErrMachineBanned
	}

	lic, err := s.licenses.FindByKey(ctx, licenseKey)
	if err != nil {
		return nil, err
	}

	if lic.Expired(s.now()) {
		return nil, ErrLicenseExpired
	}

	if _, err := s.ledger.Activate(ctx, lic, machineID, username); err != nil {
		return nil, err
	}

	tok, err := s.codec.Issue(lic, machineID)
	if err != nil {
		return nil, err
	}

	return &ActivationResult{
		Token:      tok,
		Email:      lic.Email,
		Plan:       lic.Plan,
		ExpiryDate: lic.ExpiryDate(),
	}, nil
}

// Validate checks a previously issued token. The token only proves that this
// server granted the pair a seat; ban state, the live activation and the
// license expiry are all re-checked fresh, never trusted from the claims.
func (s *Service) Validate(ctx context.Context, tokenString, machineID string) (*ValidationResult, error) {
	banned, err := s.bans.IsBanned(ctx, machineID)
	if err != nil {
		return nil, err
	}
	if banned {
		return &ValidationResult{Valid: false, Message: "Machine is banned"}, nil
	}

	claims, err := s.codec.Decode(tokenString)
	if err != nil {
		return &ValidationResult{Valid: false, Message: "Invalid token"}, nil
	}

	// A token issued for one machine must not validate on another.
	if claims.MachineID != machineID {
		return &ValidationResult{Valid: false, Message: "Machine mismatch"}, nil
	}

	lic, err := s.licenses.FindByKey(ctx, claims.LicenseKey)
	if err != nil {
		if IsRejection(err) {
			return &ValidationResult{Valid: false, Message: "License not found"}, nil
		}
		return nil, err
	}

	if _, err := s.ledger.FindLive(ctx, claims.LicenseKey, machineID); err != nil {
		if IsRejection(err) {
			return &ValidationResult{Valid: false, Message: "Activation revoked or not found"}, nil
		}
		return nil, err
	}

	expired := lic.Expired(s.now())
	return &ValidationResult{
		Valid:      !expired,
		Plan:       lic.Plan,
		Email:      lic.Email,
		Expired:    expired,
		ExpiryDate: lic.ExpiryDate(),
		LicenseKey: lic.Key,
	}, nil
}

// Deactivate revokes the live activation for the pair. A pair with no live
// activation is a failure, not a no-op: silent double deactivation would hide
// double-booking bugs in clients.
func (s *Service) Deactivate(ctx context.Context, licenseKey, machineID string) error {
	banned, err := s.bans.IsBanned(ctx, machineID)
	if err != nil {
		return err
	}
	if banned {
		return ErrMachineBanned
	}

	return s.ledger.Deactivate(ctx, licenseKey, machineID)
}
