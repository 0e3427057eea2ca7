package models

import "time"

// CloudBackup stores metadata for a customer's cloud backup file.
// The file itself lives on disk at {storageDir}/{license_id}/{backup_id}.bak.
type CloudBackup struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	LicenseID        uint       `gorm:"index;not null" json:"license_id"`
	BackupID         string     `gorm:"uniqueIndex;size:64;not null" json:"backup_id"`
	Filename         string     `gorm:"size:255;not null" json:"filename"`
	FilePath         string     `gorm:"size:500;not null" json:"-"`
	SizeBytes        int64      `gorm:"not null" json:"size_bytes"`
	CreatedAt        time.Time  `json:"created_at"`
	DownloadCount    int        `gorm:"default:0" json:"download_count"`
	LastDownloadedAt *time.Time `json:"last_downloaded_at"`
	Status           string     `gorm:"size:20;default:'active'" json:"status"` // active|deleted
}

func (CloudBackup) TableName() string {
	return "cloud_backups"
}

// CloudStorageUsage tracks storage quota per license.
type CloudStorageUsage struct {
	LicenseID      uint      `gorm:"primaryKey" json:"license_id"`
	TotalUsedBytes int64     `gorm:"default:0" json:"total_used_bytes"`
	QuotaBytes     int64     `gorm:"default:524288000" json:"quota_bytes"` // 500MB default
	BackupCount    int       `gorm:"default:0" json:"backup_count"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (CloudStorageUsage) TableName() string {
	return "cloud_storage_usage"
}
