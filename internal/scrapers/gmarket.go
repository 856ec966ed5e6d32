package scrapers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	gmarketReviewURL = "https://item.gmarket.co.kr/Review/ListApi?goodsCode=%s&pageNo=%d"
	gmarketMaxPages  = 100
)

// gmarketScraper fetches reviews from the Gmarket review list API
type gmarketScraper struct {
	httpClient *http.Client
	baseURL    string
}

// gmarketReviewPage mirrors the relevant part of the list API response
type gmarketReviewPage struct {
	TotalPages int `json:"totalPages"`
	Reviews    []struct {
		WriterID   string  `json:"writerId"`
		Contents   string  `json:"contents"`
		Grade      float64 `json:"grade"`
		RegistDate string  `json:"registDate"` // "2006-01-02"
	} `json:"reviews"`
}

func newGmarketScraper(client *http.Client) *gmarketScraper {
	return &gmarketScraper{httpClient: client, baseURL: gmarketReviewURL}
}

// FetchReviews walks the paginated review API until the reported last page
func (s *gmarketScraper) FetchReviews(ctx context.Context, productID string) ([]RawReview, error) {
	var all []RawReview

	totalPages := 1
	for page := 1; page <= totalPages && page <= gmarketMaxPages; page++ {
		url := fmt.Sprintf(s.baseURL, productID, page)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build review request: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch gmarket review page %d: %w", page, err)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read review response: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("gmarket returned status %d for review page %d", resp.StatusCode, page)
		}

		var pageData gmarketReviewPage
		if err := json.Unmarshal(body, &pageData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal review page: %w", err)
		}

		if pageData.TotalPages > totalPages {
			totalPages = pageData.TotalPages
		}

		for _, r := range pageData.Reviews {
			reviewAt, err := time.Parse("2006-01-02", r.RegistDate)
			if err != nil {
				reviewAt = time.Now().UTC().Truncate(time.Second)
			}
			all = append(all, RawReview{
				Reviewer: r.WriterID,
				Content:  r.Contents,
				Rating:   r.Grade,
				ReviewAt: reviewAt,
			})
		}

		if len(pageData.Reviews) == 0 {
			break
		}
	}

	return all, nil
}
