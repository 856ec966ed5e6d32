package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// AnalysisStatus is the per-product pipeline status
type AnalysisStatus string

const (
	StatusPending   AnalysisStatus = "PENDING"
	StatusCrawling  AnalysisStatus = "CRAWLING"
	StatusCollected AnalysisStatus = "COLLECTED"
	StatusAnalyzing AnalysisStatus = "ANALYZING"
	StatusAnalyzed  AnalysisStatus = "ANALYZED"
	StatusFailed    AnalysisStatus = "FAILED"
)

// CanStartCrawl reports whether a crawl task may take this product.
// Only idle products (fresh or previously failed) are eligible.
func (s AnalysisStatus) CanStartCrawl() bool {
	return s == StatusPending || s == StatusFailed
}

// CanStartAnalysis reports whether an analysis task may take this product.
func (s AnalysisStatus) CanStartAnalysis() bool {
	return s == StatusCollected
}

// Product represents a marketplace item tracked by the pipeline
type Product struct {
	Source          string         `json:"source"`
	SourceProductID string         `json:"source_product_id"`
	Title           string         `json:"title,omitempty"`
	URL             string         `json:"url,omitempty"`
	AnalysisStatus  AnalysisStatus `json:"analysis_status"`
	ReviewCount     int            `json:"review_count"`
	RegisteredAt    time.Time      `json:"registered_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// ProductStatus is the read-only status view served to pollers
type ProductStatus struct {
	AnalysisStatus AnalysisStatus `json:"analysis_status"`
	ReviewCount    int            `json:"review_count"`
}

// CreateProduct registers a product with an initial PENDING status.
// Re-registering an existing product is a no-op.
func (s *Storage) CreateProduct(p *Product) error {
	if p.AnalysisStatus == "" {
		p.AnalysisStatus = StatusPending
	}
	now := time.Now().UTC()
	if p.RegisteredAt.IsZero() {
		p.RegisteredAt = now
	}

	_, err := s.db.Exec(`
		INSERT INTO products (source, source_product_id, title, url, analysis_status, review_count, registered_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, source_product_id) DO NOTHING
	`, p.Source, p.SourceProductID, p.Title, p.URL, string(p.AnalysisStatus), p.ReviewCount, p.RegisteredAt, now)
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}

	return nil
}

// GetProduct retrieves a product by its composite key.
// Returns (nil, nil) when the product does not exist.
func (s *Storage) GetProduct(source, sourceProductID string) (*Product, error) {
	p := &Product{}
	var status string
	var title, url sql.NullString

	err := s.db.QueryRow(`
		SELECT source, source_product_id, title, url, analysis_status, review_count, registered_at, updated_at
		FROM products
		WHERE source = ? AND source_product_id = ?
	`, source, sourceProductID).Scan(
		&p.Source,
		&p.SourceProductID,
		&title,
		&url,
		&status,
		&p.ReviewCount,
		&p.RegisteredAt,
		&p.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	p.AnalysisStatus = AnalysisStatus(status)
	if title.Valid {
		p.Title = title.String
	}
	if url.Valid {
		p.URL = url.String
	}

	return p, nil
}

// SetAnalysisStatus writes the product status unconditionally.
// Precondition checks belong to the calling task, not this method.
func (s *Storage) SetAnalysisStatus(source, sourceProductID string, status AnalysisStatus) error {
	res, err := s.db.Exec(`
		UPDATE products SET analysis_status = ?, updated_at = ?
		WHERE source = ? AND source_product_id = ?
	`, string(status), time.Now().UTC(), source, sourceProductID)
	if err != nil {
		return fmt.Errorf("failed to update analysis status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("product %s/%s not found", source, sourceProductID)
	}

	return nil
}

// SetAnalysisStatusIf transitions the product status only when the current
// status is one of the given values. The conditional UPDATE makes the
// check-and-set a single atomic statement, so two workers racing for the same
// product cannot both pass the gate. Returns true when this caller won the
// transition.
func (s *Storage) SetAnalysisStatusIf(source, sourceProductID string, next AnalysisStatus, current ...AnalysisStatus) (bool, error) {
	if len(current) == 0 {
		return false, fmt.Errorf("no precondition statuses given")
	}

	query := `UPDATE products SET analysis_status = ?, updated_at = ? WHERE source = ? AND source_product_id = ? AND analysis_status IN (?`
	args := []interface{}{string(next), time.Now().UTC(), source, sourceProductID, string(current[0])}
	for _, c := range current[1:] {
		query += ", ?"
		args = append(args, string(c))
	}
	query += ")"

	res, err := s.db.Exec(query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to transition analysis status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return affected == 1, nil
}

// SetReviewCount updates the cached review count on the product row
func (s *Storage) SetReviewCount(source, sourceProductID string, count int) error {
	_, err := s.db.Exec(`
		UPDATE products SET review_count = ?, updated_at = ?
		WHERE source = ? AND source_product_id = ?
	`, count, time.Now().UTC(), source, sourceProductID)
	if err != nil {
		return fmt.Errorf("failed to update review count: %w", err)
	}
	return nil
}

// GetStatus returns the status view for the polling endpoint.
// Returns (nil, nil) when the product does not exist.
func (s *Storage) GetStatus(source, sourceProductID string) (*ProductStatus, error) {
	st := &ProductStatus{}
	var status string

	err := s.db.QueryRow(`
		SELECT analysis_status, review_count FROM products
		WHERE source = ? AND source_product_id = ?
	`, source, sourceProductID).Scan(&status, &st.ReviewCount)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product status: %w", err)
	}

	st.AnalysisStatus = AnalysisStatus(status)
	return st, nil
}

// ListProducts returns products ordered by registration time, newest first
func (s *Storage) ListProducts(limit, offset int) ([]*Product, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT source, source_product_id, title, url, analysis_status, review_count, registered_at, updated_at
		FROM products
		ORDER BY registered_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []*Product
	for rows.Next() {
		p := &Product{}
		var status string
		var title, url sql.NullString
		if err := rows.Scan(&p.Source, &p.SourceProductID, &title, &url, &status, &p.ReviewCount, &p.RegisteredAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		p.AnalysisStatus = AnalysisStatus(status)
		if title.Valid {
			p.Title = title.String
		}
		if url.Valid {
			p.URL = url.String
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	return products, nil
}

// ResetProduct clears collected data for a recollect request: reviews and
// analysis jobs are removed, the status returns to PENDING and the review
// count to zero.
func (s *Storage) ResetProduct(source, sourceProductID string) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM reviews WHERE source = ? AND source_product_id = ?`, source, sourceProductID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete reviews: %w", err)
	}
	deleted, _ := res.RowsAffected()

	// Result rows first, they reference the jobs
	_, err = tx.Exec(`
		DELETE FROM analysis_result WHERE job_id IN
			(SELECT id FROM analysis_jobs WHERE source = ? AND source_product_id = ?)
	`, source, sourceProductID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete metrics rows: %w", err)
	}

	_, err = tx.Exec(`
		DELETE FROM insight_result WHERE job_id IN
			(SELECT id FROM analysis_jobs WHERE source = ? AND source_product_id = ?)
	`, source, sourceProductID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete insight rows: %w", err)
	}

	_, err = tx.Exec(`DELETE FROM analysis_jobs WHERE source = ? AND source_product_id = ?`, source, sourceProductID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete analysis jobs: %w", err)
	}

	_, err = tx.Exec(`
		UPDATE products SET analysis_status = ?, review_count = 0, updated_at = ?
		WHERE source = ? AND source_product_id = ?
	`, string(StatusPending), time.Now().UTC(), source, sourceProductID)
	if err != nil {
		return 0, fmt.Errorf("failed to reset product status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit reset: %w", err)
	}

	return deleted, nil
}
