package database

import (
	"fmt"
	"log"
	"time"
)

// Prune deletes rows older than maxAgeDays, keeping every keepInterval-th
// aged row per commodity (chronological order) so long-range trends stay
// visible at reduced resolution. Lossy compaction, not an optimization: the
// survivors are rows 1, 1+k, 1+2k... of each commodity's own aged ordering.
// Rows inside the retention window are never touched.
func (s *Store) Prune(maxAgeDays, keepInterval int) (int64, error) {
	if keepInterval < 1 {
		keepInterval = 1
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -maxAgeDays)

	res := s.db.Exec(`
		DELETE FROM market_orders
		WHERE timestamp < ?
		AND rowid IN (
			WITH numbered AS (
				SELECT
					rowid,
					ROW_NUMBER() OVER (
						PARTITION BY type_id
						ORDER BY timestamp ASC
					) AS row_num
				FROM market_orders
				WHERE timestamp < ?
			)
			SELECT rowid
			FROM numbered
			WHERE row_num % ? != 1
		)
	`, cutoff, cutoff, keepInterval)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to prune %s: %w", s.path, res.Error)
	}

	log.Printf("[Database] pruned %d entries from %s", res.RowsAffected, s.path)
	return res.RowsAffected, nil
}

// ReclaimSpace returns up to chunkBytes of free pages to the filesystem via
// incremental vacuum. It reports whether anything was reclaimed so callers
// can loop until the freelist is empty without one giant blocking compaction.
func (s *Store) ReclaimSpace(chunkBytes int64) (bool, error) {
	var freePages int64
	if err := s.db.Raw("PRAGMA freelist_count;").Scan(&freePages).Error; err != nil {
		return false, fmt.Errorf("failed to read freelist count: %w", err)
	}
	if freePages == 0 {
		return false, nil
	}

	var pageSize int64
	if err := s.db.Raw("PRAGMA page_size;").Scan(&pageSize).Error; err != nil {
		return false, fmt.Errorf("failed to read page size: %w", err)
	}

	pages := chunkBytes / pageSize
	if pages > freePages {
		pages = freePages
	}
	if pages == 0 {
		log.Printf("[Database] chunk size %d below page size %d, nothing to do", chunkBytes, pageSize)
		return false, nil
	}

	log.Printf("[Database] reclaiming %d pages (%d MB) from %s",
		pages, pages*pageSize/1024/1024, s.path)

	if err := s.db.Exec(fmt.Sprintf("PRAGMA incremental_vacuum(%d);", pages)).Error; err != nil {
		return false, fmt.Errorf("incremental vacuum failed: %w", err)
	}
	return true, nil
}

// ReclaimAll runs bounded vacuum passes until no free pages remain.
func (s *Store) ReclaimAll(chunkBytes int64) error {
	pass := 0
	for {
		pass++
		reclaimed, err := s.ReclaimSpace(chunkBytes)
		if err != nil {
			return err
		}
		if !reclaimed {
			log.Printf("[Database] %s finished after %d pass(es), freelist empty", s.path, pass)
			return nil
		}
	}
}
