package services

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/alteralabs/license-server/internal/config"
	"github.com/alteralabs/license-server/internal/database"
	"github.com/alteralabs/license-server/internal/models"
)

// BackupSchedulerService periodically exports licenses, activations and bans
// to a JSON snapshot on disk and, when FTP is configured, uploads the
// snapshot offsite. Disabled unless BACKUP_INTERVAL_HOURS is positive.
type BackupSchedulerService struct {
	cfg       *config.Config
	backupDir string
	stopChan  chan struct{}
}

// NewBackupSchedulerService creates a new backup scheduler service
func NewBackupSchedulerService(cfg *config.Config) *BackupSchedulerService {
	backupDir := "/var/backups/license-server"
	os.MkdirAll(backupDir, 0755)
	return &BackupSchedulerService{
		cfg:       cfg,
		backupDir: backupDir,
		stopChan:  make(chan struct{}),
	}
}

// Start starts the backup scheduler
func (s *BackupSchedulerService) Start() {
	if s.cfg.BackupIntervalHours <= 0 {
		log.Println("BackupSchedulerService disabled (BACKUP_INTERVAL_HOURS not set)")
		return
	}

	interval := time.Duration(s.cfg.BackupIntervalHours) * time.Hour
	log.Printf("BackupSchedulerService started, exporting every %v", interval)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopChan:
				log.Println("BackupSchedulerService stopped")
				return
			case <-ticker.C:
				s.runExport()
			}
		}
	}()
}

// Stop stops the backup scheduler
func (s *BackupSchedulerService) Stop() {
	close(s.stopChan)
}

type exportSnapshot struct {
	ExportedAt  time.Time              `json:"exported_at"`
	Licenses    []models.License       `json:"licenses"`
	Activations []models.Activation    `json:"activations"`
	Bans        []models.BannedMachine `json:"bans"`
}

// runExport writes the snapshot and uploads it if FTP is configured
func (s *BackupSchedulerService) runExport() {
	start := time.Now()

	var snap exportSnapshot
	snap.ExportedAt = start.UTC()

	if err := database.DB.Find(&snap.Licenses).Error; err != nil {
		log.Printf("BackupScheduler: failed to load licenses: %v", err)
		return
	}
	if err := database.DB.Find(&snap.Activations).Error; err != nil {
		log.Printf("BackupScheduler: failed to load activations: %v", err)
		return
	}
	if err := database.DB.Find(&snap.Bans).Error; err != nil {
		log.Printf("BackupScheduler: failed to load bans: %v", err)
		return
	}

	data, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		log.Printf("BackupScheduler: failed to marshal snapshot: %v", err)
		return
	}

	filename := fmt.Sprintf("license-export-%s.json", start.Format("20060102-150405"))
	localPath := filepath.Join(s.backupDir, filename)
	if err := os.WriteFile(localPath, data, 0640); err != nil {
		log.Printf("BackupScheduler: failed to write %s: %v", localPath, err)
		return
	}

	log.Printf("BackupScheduler: exported %d licenses, %d activations, %d bans to %s",
		len(snap.Licenses), len(snap.Activations), len(snap.Bans), localPath)

	if s.cfg.FTPHost != "" {
		if err := s.uploadToFTP(localPath, filename); err != nil {
			log.Printf("BackupScheduler: FTP upload failed: %v", err)
			return
		}
		log.Printf("BackupScheduler: uploaded %s to %s", filename, s.cfg.FTPHost)
	}
}

// uploadToFTP uploads a file to the configured FTP server
func (s *BackupSchedulerService) uploadToFTP(localPath, filename string) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.FTPHost, s.cfg.FTPPort)
	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(30*time.Second))
	if err != nil {
		return fmt.Errorf("FTP connection failed: %v", err)
	}
	defer conn.Quit()

	if err := conn.Login(s.cfg.FTPUser, s.cfg.FTPPassword); err != nil {
		return fmt.Errorf("FTP login failed: %v", err)
	}

	// Change to backup directory (create if needed)
	if s.cfg.FTPPath != "" && s.cfg.FTPPath != "/" {
		if err := conn.ChangeDir(s.cfg.FTPPath); err != nil {
			conn.MakeDir(s.cfg.FTPPath)
			if err := conn.ChangeDir(s.cfg.FTPPath); err != nil {
				return fmt.Errorf("FTP directory change failed: %v", err)
			}
		}
	}

	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open export file: %v", err)
	}
	defer file.Close()

	if err := conn.Stor(filename, file); err != nil {
		return fmt.Errorf("FTP upload failed: %v", err)
	}

	return nil
}
