// Package token issues and verifies the signed entitlement tokens handed to
// client software after a successful activation. A token proves that this
// server granted a (license_key, machine_id) pair a seat at some point; the
// plan and expiry inside it are a snapshot at issuance time and are always
// re-checked against the database during validation.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/alteralabs/license-server/internal/models"
)

// ErrInvalidToken covers every decode failure: bad encoding, wrong secret,
// tampered payload, unexpected signing method.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the signed claim set bound to a license and a machine.
type Claims struct {
	LicenseKey string `json:"key"`
	MachineID  string `json:"machine"`
	Plan       string `json:"plan"`
	Expiry     string `json:"expiry"`
	jwt.RegisteredClaims
}

// Codec signs and verifies entitlement tokens with a server-held HS256 secret.
type Codec struct {
	secret []byte
}

func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret)}
}

// Issue produces a signed token for a license and machine. Tokens carry no
// exp claim on purpose: revocation and license expiry are authoritative only
// via re-query, so a token stays decodable for as long as the secret lives.
func (c *Codec) Issue(lic *models.License, machineID string) (string, error) {
	claims := Claims{
		LicenseKey: lic.Key,
		MachineID:  machineID,
		Plan:       lic.Plan,
		Expiry:     lic.ExpiryDate(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  lic.Email,
			Issuer:   "license-server",
			IssuedAt: jwt.NewNumericDate(time.Now()),
			ID:       uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Decode verifies the signature and structural shape of a token.
func (c *Codec) Decode(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.LicenseKey == "" || claims.MachineID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
