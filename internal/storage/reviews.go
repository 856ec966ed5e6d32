package storage

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Review is a single marketplace review, immutable once written
type Review struct {
	ReviewID        int64     `json:"review_id"`
	Source          string    `json:"source"`
	SourceProductID string    `json:"source_product_id"`
	Reviewer        string    `json:"reviewer"`
	Rating          float64   `json:"rating"`
	Content         string    `json:"content"`
	ReviewAt        time.Time `json:"review_at"`
	CollectedAt     time.Time `json:"collected_at"`
}

// dedupKey identifies an already-stored review within one product's scope.
// Content is NFC-normalized so the same Korean text scraped from different
// page renderings (precomposed vs decomposed jamo) collapses to one key.
func dedupKey(reviewer, content string, reviewAt time.Time) string {
	return strings.Join([]string{
		reviewer,
		norm.NFC.String(content),
		reviewAt.UTC().Format(time.RFC3339),
	}, "\x1f")
}

// SaveReviews persists the reviews that are not already stored for the
// product. Existing rows are identified by the (reviewer, content, review_at)
// triple; the set difference is inserted in a single transaction. Saving an
// all-duplicate batch is a no-op. Returns the number of rows inserted.
func (s *Storage) SaveReviews(reviews []*Review, source, sourceProductID string) (int, error) {
	existing, err := s.loadDedupKeys(source, sourceProductID)
	if err != nil {
		return 0, err
	}

	var fresh []*Review
	for _, r := range reviews {
		key := dedupKey(r.Reviewer, r.Content, r.ReviewAt)
		if _, dup := existing[key]; dup {
			continue
		}
		existing[key] = struct{}{} // also dedup within the incoming batch
		fresh = append(fresh, r)
	}

	duplicates := len(reviews) - len(fresh)

	if len(fresh) > 0 {
		tx, err := s.db.Begin()
		if err != nil {
			return 0, fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		stmt, err := tx.Prepare(`
			INSERT INTO reviews (source, source_product_id, reviewer, rating, content, review_at, collected_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return 0, fmt.Errorf("failed to prepare review insert: %w", err)
		}
		defer stmt.Close()

		now := time.Now().UTC()
		for _, r := range fresh {
			collectedAt := r.CollectedAt
			if collectedAt.IsZero() {
				collectedAt = now
			}
			if _, err := stmt.Exec(source, sourceProductID, r.Reviewer, r.Rating, r.Content, r.ReviewAt.UTC(), collectedAt); err != nil {
				return 0, fmt.Errorf("failed to insert review: %w", err)
			}
		}

		if err := tx.Commit(); err != nil {
			return 0, fmt.Errorf("failed to commit review batch: %w", err)
		}
	}

	total, err := s.CountReviews(source, sourceProductID)
	if err != nil {
		return 0, err
	}

	s.logger.Info("review batch saved",
		"source", source,
		"source_product_id", sourceProductID,
		"incoming", len(reviews),
		"duplicates", duplicates,
		"inserted", len(fresh),
		"total_stored", total,
	)

	return len(fresh), nil
}

// loadDedupKeys loads the dedup triples of all stored reviews for a product
func (s *Storage) loadDedupKeys(source, sourceProductID string) (map[string]struct{}, error) {
	rows, err := s.db.Query(`
		SELECT reviewer, content, review_at FROM reviews
		WHERE source = ? AND source_product_id = ?
	`, source, sourceProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing reviews: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var reviewer, content string
		var reviewAt time.Time
		if err := rows.Scan(&reviewer, &content, &reviewAt); err != nil {
			return nil, fmt.Errorf("failed to scan review row: %w", err)
		}
		keys[dedupKey(reviewer, content, reviewAt)] = struct{}{}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reviews: %w", err)
	}

	return keys, nil
}

// GetReviewsByProduct returns all stored reviews for a product, oldest first
func (s *Storage) GetReviewsByProduct(source, sourceProductID string) ([]*Review, error) {
	rows, err := s.db.Query(`
		SELECT review_id, source, source_product_id, reviewer, rating, content, review_at, collected_at
		FROM reviews
		WHERE source = ? AND source_product_id = ?
		ORDER BY review_at ASC, review_id ASC
	`, source, sourceProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews: %w", err)
	}
	defer rows.Close()

	var reviews []*Review
	for rows.Next() {
		r := &Review{}
		if err := rows.Scan(&r.ReviewID, &r.Source, &r.SourceProductID, &r.Reviewer, &r.Rating, &r.Content, &r.ReviewAt, &r.CollectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reviews: %w", err)
	}

	return reviews, nil
}

// CountReviews returns the number of stored reviews for a product
func (s *Storage) CountReviews(source, sourceProductID string) (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM reviews WHERE source = ? AND source_product_id = ?
	`, source, sourceProductID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count reviews: %w", err)
	}
	return count, nil
}
