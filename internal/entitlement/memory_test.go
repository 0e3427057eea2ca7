package entitlement_test

import (
	"context"
	"sync"
	"time"

	"github.com/alteralabs/license-server/internal/entitlement"
	"github.com/alteralabs/license-server/internal/models"
)

// In-memory implementations of the entitlement interfaces. The ledger mirrors
// the store contract: check-and-insert is atomic per call, and the seat count
// is re-read from the directory so edits between calls are observed.

type memoryBans struct {
	mu     sync.Mutex
	banned map[string]string
}

func newMemoryBans() *memoryBans {
	return &memoryBans{banned: make(map[string]string)}
}

func (m *memoryBans) Ban(machineID, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.banned[machineID] = reason
}

func (m *memoryBans) IsBanned(ctx context.Context, machineID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.banned[machineID]
	return ok, nil
}

type memoryLicenses struct {
	mu   sync.Mutex
	rows map[string]models.License
}

func newMemoryLicenses(licenses ...models.License) *memoryLicenses {
	m := &memoryLicenses{rows: make(map[string]models.License)}
	for _, lic := range licenses {
		m.rows[lic.Key] = lic
	}
	return m
}

func (m *memoryLicenses) Put(lic models.License) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[lic.Key] = lic
}

func (m *memoryLicenses) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, key)
}

func (m *memoryLicenses) FindByKey(ctx context.Context, key string) (*models.License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lic, ok := m.rows[key]
	if !ok {
		return nil, entitlement.ErrLicenseNotFound
	}
	out := lic
	return &out, nil
}

type memoryLedger struct {
	mu       sync.Mutex
	nextID   uint
	rows     []*models.Activation
	licenses *memoryLicenses
}

func newMemoryLedger(licenses *memoryLicenses) *memoryLedger {
	return &memoryLedger{licenses: licenses}
}

func (m *memoryLedger) Activate(ctx context.Context, lic *models.License, machineID, username string) (*models.Activation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Fresh seat cap, like the store re-reading the locked license row.
	maxSeats := lic.MaxSeats
	if current, err := m.licenses.FindByKey(ctx, lic.Key); err == nil {
		maxSeats = current.MaxSeats
	}

	live := 0
	for _, row := range m.rows {
		if row.LicenseKey != lic.Key || row.Revoked {
			continue
		}
		if row.MachineID == machineID {
			if username != "" {
				row.Username = username
			}
			out := *row
			return &out, nil
		}
		live++
	}

	if live >= maxSeats {
		return nil, entitlement.ErrSeatLimitReached
	}

	m.nextID++
	row := &models.Activation{
		ID:          m.nextID,
		LicenseKey:  lic.Key,
		MachineID:   machineID,
		Username:    username,
		ActivatedAt: time.Now().UTC(),
	}
	m.rows = append(m.rows, row)
	out := *row
	return &out, nil
}

func (m *memoryLedger) Deactivate(ctx context.Context, licenseKey, machineID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.LicenseKey == licenseKey && row.MachineID == machineID && !row.Revoked {
			row.Revoked = true
			return nil
		}
	}
	return entitlement.ErrActivationNotFound
}

func (m *memoryLedger) FindLive(ctx context.Context, licenseKey, machineID string) (*models.Activation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.LicenseKey == licenseKey && row.MachineID == machineID && !row.Revoked {
			out := *row
			return &out, nil
		}
	}
	return nil, entitlement.ErrActivationNotFound
}

func (m *memoryLedger) liveCount(licenseKey string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	live := 0
	for _, row := range m.rows {
		if row.LicenseKey == licenseKey && !row.Revoked {
			live++
		}
	}
	return live
}

func (m *memoryLedger) allRows(licenseKey string) []models.Activation {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Activation
	for _, row := range m.rows {
		if row.LicenseKey == licenseKey {
			out = append(out, *row)
		}
	}
	return out
}
