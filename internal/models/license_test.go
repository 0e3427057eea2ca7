package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alteralabs/license-server/internal/models"
)

func TestLicenseExpiredIsDateInclusive(t *testing.T) {
	lic := models.License{Expiry: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)}

	// Valid through the end of the expiry day, regardless of time of day.
	assert.False(t, lic.Expired(time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)))
	assert.False(t, lic.Expired(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)))
	assert.False(t, lic.Expired(time.Date(2026, 3, 10, 23, 59, 59, 0, time.UTC)))
	assert.True(t, lic.Expired(time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)))
}

func TestLicenseExpiryDateFormat(t *testing.T) {
	lic := models.License{Expiry: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)}
	assert.Equal(t, "2026-03-10", lic.ExpiryDate())
}
