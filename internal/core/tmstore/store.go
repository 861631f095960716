// Package tmstore is the SQLite-backed translation memory and translation
// version store: it answers exact/fuzzy lookups against previously
// translated units and persists the versions the orchestration core
// produces, keyed by (unitId, projectLanguageId). Adapted from the
// teacher's flat original/translated cache, re-keyed for a multi-unit,
// multi-language-pair domain and split into a TM table plus a version
// table so a stored version can later double as a new TM entry.
package tmstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"
	_ "modernc.org/sqlite"

	"github.com/lsilvatti/modtranslate/internal/core/domain"
)

// Store is a thread-safe translation memory and version store backed by SQLite.
type Store struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
}

// Open opens (creating if necessary) the store at path. An empty path
// defaults to modtranslate-tm.db in the working directory.
func Open(path string) (*Store, error) {
	if path == "" {
		path = "modtranslate-tm.db"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open tm store: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tm_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_hash TEXT NOT NULL,
		source_text TEXT NOT NULL,
		target_text TEXT NOT NULL,
		target_language TEXT NOT NULL,
		quality_score REAL NOT NULL DEFAULT 1.0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_used DATETIME DEFAULT CURRENT_TIMESTAMP,
		use_count INTEGER DEFAULT 1,
		UNIQUE(source_hash, target_language)
	);
	CREATE INDEX IF NOT EXISTS idx_tm_source_hash ON tm_entries(source_hash);
	CREATE INDEX IF NOT EXISTS idx_tm_target_language ON tm_entries(target_language);
	CREATE INDEX IF NOT EXISTS idx_tm_source_text ON tm_entries(source_text);
	CREATE INDEX IF NOT EXISTS idx_tm_last_used ON tm_entries(last_used);

	CREATE TABLE IF NOT EXISTS translation_versions (
		unit_id TEXT NOT NULL,
		project_language_id TEXT NOT NULL,
		translated_text TEXT NOT NULL,
		status TEXT NOT NULL,
		confidence_score REAL NOT NULL DEFAULT 0,
		source TEXT NOT NULL,
		validation_issues TEXT NOT NULL DEFAULT '',
		is_manually_edited INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (unit_id, project_language_id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func hashText(text string) string {
	hash := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%x", hash)
}

func similarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return 1.0
	}
	distance := levenshtein.ComputeDistance(a, b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - (float64(distance) / float64(maxLen))
}

// LookupExact returns the TM entry whose source text hashes identically to
// sourceText for targetLanguage, if one exists.
func (s *Store) LookupExact(ctx context.Context, sourceText, targetLanguage string) (*domain.TmMatch, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hash := hashText(sourceText)
	var targetText string
	var quality float64
	err := s.db.QueryRowContext(ctx, `
		SELECT target_text, quality_score FROM tm_entries
		WHERE source_hash = ? AND target_language = ?
		LIMIT 1
	`, hash, targetLanguage).Scan(&targetText, &quality)

	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("tm exact lookup: %w", err)
	}

	go s.touch(hash, targetLanguage)

	return &domain.TmMatch{
		EntryID:         hash,
		TargetText:      targetText,
		SimilarityScore: 1.0,
		QualityScore:    quality,
		MatchType:       domain.MatchExact,
	}, true, nil
}

// LookupFuzzy returns the best fuzzy TM candidate for sourceText at or
// above threshold, scanning length-bounded candidates the way the teacher's
// cache does to keep the Levenshtein pass cheap.
func (s *Store) LookupFuzzy(ctx context.Context, sourceText, targetLanguage string, threshold float64) (*domain.TmMatch, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	textLen := len(sourceText)
	minLen := int(float64(textLen) * threshold)
	maxLen := int(float64(textLen) / threshold)

	rows, err := s.db.QueryContext(ctx, `
		SELECT source_hash, source_text, target_text, quality_score
		FROM tm_entries
		WHERE target_language = ? AND LENGTH(source_text) BETWEEN ? AND ?
		ORDER BY last_used DESC
		LIMIT 500
	`, targetLanguage, minLen, maxLen)
	if err != nil {
		return nil, false, fmt.Errorf("tm fuzzy lookup: %w", err)
	}
	defer rows.Close()

	var best *domain.TmMatch
	var bestHash string
	var bestScore float64

	for rows.Next() {
		var hash, candidateSource, candidateTarget string
		var quality float64
		if err := rows.Scan(&hash, &candidateSource, &candidateTarget, &quality); err != nil {
			continue
		}

		score := similarity(sourceText, candidateSource)
		if score >= threshold && score > bestScore {
			bestScore = score
			bestHash = hash
			best = &domain.TmMatch{
				EntryID:         hash,
				TargetText:      candidateTarget,
				SimilarityScore: score,
				QualityScore:    quality,
				MatchType:       domain.MatchFuzzy,
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("tm fuzzy lookup: %w", err)
	}

	if best == nil {
		return nil, false, nil
	}

	go s.touch(bestHash, targetLanguage)
	return best, true, nil
}

// TmEntry is one row to persist back into translation memory.
type TmEntry struct {
	SourceText     string
	TargetText     string
	TargetLanguage string
	QualityScore   float64
}

// SaveEntries upserts a batch of TM entries in a single transaction.
func (s *Store) SaveEntries(ctx context.Context, entries []TmEntry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tm write transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tm_entries (source_hash, source_text, target_text, target_language, quality_score)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source_hash, target_language) DO UPDATE SET
			target_text = excluded.target_text,
			quality_score = excluded.quality_score,
			last_used = CURRENT_TIMESTAMP,
			use_count = tm_entries.use_count + 1
	`)
	if err != nil {
		return fmt.Errorf("prepare tm upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		hash := hashText(e.SourceText)
		if _, err := stmt.ExecContext(ctx, hash, e.SourceText, e.TargetText, e.TargetLanguage, e.QualityScore); err != nil {
			return fmt.Errorf("upsert tm entry: %w", err)
		}
	}

	return tx.Commit()
}

func (s *Store) touch(hash, targetLanguage string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.db.Exec(`
		UPDATE tm_entries SET last_used = CURRENT_TIMESTAMP, use_count = use_count + 1
		WHERE source_hash = ? AND target_language = ?
	`, hash, targetLanguage)
}

// SaveVersions upserts a batch of TranslationVersion rows in a single
// transaction, keyed by (unitId, projectLanguageId).
func (s *Store) SaveVersions(ctx context.Context, versions []domain.TranslationVersion) error {
	if len(versions) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin version write transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO translation_versions
			(unit_id, project_language_id, translated_text, status, confidence_score, source, validation_issues, is_manually_edited, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(unit_id, project_language_id) DO UPDATE SET
			translated_text = excluded.translated_text,
			status = excluded.status,
			confidence_score = excluded.confidence_score,
			source = excluded.source,
			validation_issues = excluded.validation_issues,
			is_manually_edited = excluded.is_manually_edited,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return fmt.Errorf("prepare version upsert: %w", err)
	}
	defer stmt.Close()

	for _, v := range versions {
		edited := 0
		if v.IsManuallyEdited {
			edited = 1
		}
		if _, err := stmt.ExecContext(ctx, string(v.UnitID), v.ProjectLanguageID, v.TranslatedText,
			string(v.Status), v.ConfidenceScore, string(v.Source), v.ValidationIssues, edited); err != nil {
			return fmt.Errorf("upsert version: %w", err)
		}
	}

	return tx.Commit()
}

// GetVersion fetches the stored version for (unitID, projectLanguageID), if any.
func (s *Store) GetVersion(ctx context.Context, unitID domain.UnitID, projectLanguageID string) (*domain.TranslationVersion, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var v domain.TranslationVersion
	var status, source string
	var edited int
	err := s.db.QueryRowContext(ctx, `
		SELECT unit_id, project_language_id, translated_text, status, confidence_score, source, validation_issues, is_manually_edited
		FROM translation_versions WHERE unit_id = ? AND project_language_id = ?
	`, string(unitID), projectLanguageID).Scan(&v.UnitID, &v.ProjectLanguageID, &v.TranslatedText, &status, &v.ConfidenceScore, &source, &v.ValidationIssues, &edited)

	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get version: %w", err)
	}

	v.Status = domain.TranslationStatus(status)
	v.Source = domain.TranslationSource(source)
	v.IsManuallyEdited = edited != 0
	return &v, true, nil
}

// Stats summarizes translation memory reuse.
type Stats struct {
	TotalEntries int
	HitRate      float64
}

// Stats returns translation memory statistics.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats Stats
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tm_entries").Scan(&stats.TotalEntries); err != nil {
		return nil, fmt.Errorf("count tm entries: %w", err)
	}

	var avgUseCount sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, "SELECT AVG(use_count) FROM tm_entries").Scan(&avgUseCount); err != nil {
		return nil, fmt.Errorf("average use count: %w", err)
	}
	if avgUseCount.Valid && avgUseCount.Float64 > 0 {
		stats.HitRate = (avgUseCount.Float64 - 1) / avgUseCount.Float64 * 100
	}

	return &stats, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compact reclaims space after large deletes.
func (s *Store) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("VACUUM")
	return err
}
