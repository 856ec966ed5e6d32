package scrapers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	elevenstReviewURL = "https://www.11st.co.kr/products/%s/reviews?page=%d"
	elevenstPageSize  = 20
	elevenstMaxPages  = 50
	userAgent         = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// elevenstScraper fetches reviews from the 11st review listing pages
type elevenstScraper struct {
	httpClient *http.Client
	baseURL    string
}

func newElevenstScraper(client *http.Client) *elevenstScraper {
	return &elevenstScraper{httpClient: client, baseURL: elevenstReviewURL}
}

// FetchReviews pages through the review listing until a page comes back empty
func (s *elevenstScraper) FetchReviews(ctx context.Context, productID string) ([]RawReview, error) {
	if _, err := strconv.ParseInt(productID, 10, 64); err != nil {
		return nil, fmt.Errorf("11st product id must be numeric, got %q", productID)
	}

	var all []RawReview
	for page := 1; page <= elevenstMaxPages; page++ {
		reviews, err := s.fetchPage(ctx, productID, page)
		if err != nil {
			return nil, err
		}
		all = append(all, reviews...)

		// A short page is the last one
		if len(reviews) < elevenstPageSize {
			break
		}
	}

	return all, nil
}

func (s *elevenstScraper) fetchPage(ctx context.Context, productID string, page int) ([]RawReview, error) {
	url := fmt.Sprintf(s.baseURL, productID, page)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build review page request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "ko-KR,ko;q=0.9")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch 11st review page %d: %w", page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("11st returned status %d for review page %d", resp.StatusCode, page)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse 11st review page: %w", err)
	}

	var reviews []RawReview
	doc.Find("li.review_list_element").Each(func(_ int, sel *goquery.Selection) {
		content := strings.TrimSpace(sel.Find(".cont_text_wrap").Text())
		if content == "" {
			return
		}

		reviews = append(reviews, RawReview{
			Reviewer: strings.TrimSpace(sel.Find(".c_product_reviewer .name").Text()),
			Content:  content,
			Rating:   parseElevenstRating(sel.Find(".grade em").Text()),
			ReviewAt: parseElevenstDate(sel.Find(".c_product_reviewer .date").Text()),
		})
	})

	return reviews, nil
}

// parseElevenstRating parses ratings rendered as "5점" or a bare number
func parseElevenstRating(text string) float64 {
	text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "점"))
	rating, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0
	}
	return rating
}

// parseElevenstDate parses the "YYYY.MM.DD" review date; missing or malformed
// dates fall back to collection time so the row is still usable for dedup.
func parseElevenstDate(text string) time.Time {
	t, err := time.Parse("2006.01.02", strings.TrimSpace(text))
	if err != nil {
		return time.Now().UTC().Truncate(time.Second)
	}
	return t
}
