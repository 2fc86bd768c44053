package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"spimfuse/internal/fusion"
)

// Store wraps SQLite-backed persistence for fusion jobs and run defaults.
type Store struct {
	DB *sql.DB
}

// New opens (or creates) the database at path and ensures schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{DB: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS fusion_jobs (
            id TEXT PRIMARY KEY,
            status TEXT NOT NULL,
            data_dir TEXT,
            registration_dir TEXT,
            channels TEXT,
            reference_timepoint INTEGER,
            mode TEXT,
            output_path TEXT,
            config_json TEXT,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            completed_at TIMESTAMP,
            error_message TEXT
        );`,
		`CREATE TABLE IF NOT EXISTS run_defaults (
            id INTEGER PRIMARY KEY CHECK (id = 1),
            defaults_json TEXT NOT NULL,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE INDEX IF NOT EXISTS idx_fusion_jobs_created_at ON fusion_jobs(created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.DB.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying DB.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// JobRecord captures persisted job info.
type JobRecord struct {
	ID                 string
	Status             string
	DataDir            string
	RegistrationDir    string
	Channels           string
	ReferenceTimepoint int
	Mode               string
	OutputPath         string
	ConfigJSON         string
	Error              string
	CreatedAt          time.Time
	CompletedAt        *time.Time
}

// RecordJobQueued inserts a job that has been resolved but not yet emitted.
func (s *Store) RecordJobQueued(job fusion.JobConfig) error {
	if s == nil {
		return nil
	}
	cfgJSON, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	channels, _ := json.Marshal(job.Channels)
	_, err = s.DB.Exec(`INSERT OR REPLACE INTO fusion_jobs (id, status, data_dir, registration_dir, channels, reference_timepoint, mode, config_json) VALUES (?, ?, ?, ?, ?, ?, ?, ?);`,
		job.ID, "queued", job.DataDir, job.RegistrationDir, string(channels), job.ReferenceTimepoint, job.Mode.String(), string(cfgJSON))
	return err
}

// RecordJobResult finalizes a job with its status, output path and error.
func (s *Store) RecordJobResult(id, status, outputPath, errMsg string) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`UPDATE fusion_jobs SET status=?, output_path=?, completed_at=CURRENT_TIMESTAMP, error_message=? WHERE id=?;`,
		status, outputPath, errMsg, id)
	return err
}

// RecentJobs returns the latest jobs up to limit.
func (s *Store) RecentJobs(limit int) ([]JobRecord, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	rows, err := s.DB.Query(`SELECT id, status, data_dir, registration_dir, channels, reference_timepoint, mode, output_path, config_json, created_at, completed_at, error_message FROM fusion_jobs ORDER BY created_at DESC, rowid DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []JobRecord
	for rows.Next() {
		var rec JobRecord
		var created time.Time
		var completed sql.NullTime
		var outputPath, errorMsg sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Status, &rec.DataDir, &rec.RegistrationDir, &rec.Channels, &rec.ReferenceTimepoint, &rec.Mode, &outputPath, &rec.ConfigJSON, &created, &completed, &errorMsg); err != nil {
			return nil, err
		}
		rec.CreatedAt = created
		if completed.Valid {
			rec.CompletedAt = &completed.Time
		}
		rec.OutputPath = outputPath.String
		rec.Error = errorMsg.String
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Job decodes the stored configuration of one job.
func (s *Store) Job(id string) (fusion.JobConfig, error) {
	if s == nil {
		return fusion.JobConfig{}, errors.New("store not initialized")
	}
	var cfgJSON string
	if err := s.DB.QueryRow(`SELECT config_json FROM fusion_jobs WHERE id=?;`, id).Scan(&cfgJSON); err != nil {
		return fusion.JobConfig{}, err
	}
	var job fusion.JobConfig
	if err := json.Unmarshal([]byte(cfgJSON), &job); err != nil {
		return fusion.JobConfig{}, fmt.Errorf("unmarshal job: %w", err)
	}
	return job, nil
}

// LoadDefaults returns the last saved run defaults, or fallback when none
// have been saved yet.
func (s *Store) LoadDefaults(fallback fusion.RunDefaults) (fusion.RunDefaults, error) {
	if s == nil {
		return fallback, nil
	}
	var raw string
	err := s.DB.QueryRow(`SELECT defaults_json FROM run_defaults WHERE id = 1;`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fallback, nil
	}
	if err != nil {
		return fallback, err
	}
	d := fallback
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return fallback, fmt.Errorf("unmarshal defaults: %w", err)
	}
	return d, nil
}

// SaveDefaults replaces the stored run defaults.
func (s *Store) SaveDefaults(d fusion.RunDefaults) error {
	if s == nil {
		return nil
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal defaults: %w", err)
	}
	_, err = s.DB.Exec(`INSERT OR REPLACE INTO run_defaults (id, defaults_json, updated_at) VALUES (1, ?, CURRENT_TIMESTAMP);`, string(raw))
	return err
}

// ResetDefaults forgets the stored run defaults.
func (s *Store) ResetDefaults() error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`DELETE FROM run_defaults;`)
	return err
}
