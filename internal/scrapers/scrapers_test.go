package scrapers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFactoryForPlatform(t *testing.T) {
	factory := NewFactory(5 * time.Second)

	for _, platform := range []string{PlatformElevenst, PlatformGmarket} {
		if _, err := factory.ForPlatform(platform); err != nil {
			t.Errorf("Expected scraper for %q, got error: %v", platform, err)
		}
	}
}

func TestFactoryUnknownPlatform(t *testing.T) {
	factory := NewFactory(5 * time.Second)

	_, err := factory.ForPlatform("coupang")
	if !errors.Is(err, ErrUnknownPlatform) {
		t.Fatalf("Expected ErrUnknownPlatform, got %v", err)
	}
}

const elevenstReviewHTML = `
<html><body><ul>
	<li class="review_list_element">
		<div class="c_product_reviewer"><span class="name">kim***</span><span class="date">2026.05.01</span></div>
		<div class="grade"><em>5점</em></div>
		<div class="cont_text_wrap">배송이 정말 빨라요</div>
	</li>
	<li class="review_list_element">
		<div class="c_product_reviewer"><span class="name">lee***</span><span class="date">2026.04.28</span></div>
		<div class="grade"><em>3점</em></div>
		<div class="cont_text_wrap">생각보다 작습니다</div>
	</li>
</ul></body></html>`

func TestElevenstFetchReviews(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			fmt.Fprint(w, elevenstReviewHTML)
			return
		}
		// Later pages are empty, ending pagination
		fmt.Fprint(w, "<html><body><ul></ul></body></html>")
	}))
	defer server.Close()

	scraper := &elevenstScraper{
		httpClient: server.Client(),
		baseURL:    server.URL + "/products/%s/reviews?page=%d",
	}

	reviews, err := scraper.FetchReviews(context.Background(), "123")
	if err != nil {
		t.Fatalf("FetchReviews failed: %v", err)
	}
	if len(reviews) != 2 {
		t.Fatalf("Expected 2 reviews, got %d", len(reviews))
	}

	first := reviews[0]
	if first.Reviewer != "kim***" {
		t.Errorf("Unexpected reviewer %q", first.Reviewer)
	}
	if first.Content != "배송이 정말 빨라요" {
		t.Errorf("Unexpected content %q", first.Content)
	}
	if first.Rating != 5 {
		t.Errorf("Expected rating 5, got %v", first.Rating)
	}
	wantDate := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	if !first.ReviewAt.Equal(wantDate) {
		t.Errorf("Expected review date %v, got %v", wantDate, first.ReviewAt)
	}
}

func TestElevenstRejectsNonNumericID(t *testing.T) {
	scraper := newElevenstScraper(http.DefaultClient)

	if _, err := scraper.FetchReviews(context.Background(), "abc"); err == nil {
		t.Fatal("Expected error for non-numeric product id")
	}
}

func TestElevenstUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer server.Close()

	scraper := &elevenstScraper{
		httpClient: server.Client(),
		baseURL:    server.URL + "/products/%s/reviews?page=%d",
	}

	if _, err := scraper.FetchReviews(context.Background(), "123"); err == nil {
		t.Fatal("Expected error for upstream 403")
	}
}

func TestGmarketFetchReviews(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("pageNo")
		w.Header().Set("Content-Type", "application/json")
		switch page {
		case "1":
			fmt.Fprint(w, `{"totalPages": 2, "reviews": [
				{"writerId": "buyer1", "contents": "만족합니다", "grade": 5, "registDate": "2026-05-01"},
				{"writerId": "buyer2", "contents": "보통이에요", "grade": 3, "registDate": "2026-04-30"}
			]}`)
		case "2":
			fmt.Fprint(w, `{"totalPages": 2, "reviews": [
				{"writerId": "buyer3", "contents": "재구매했어요", "grade": 5, "registDate": "2026-04-29"}
			]}`)
		default:
			fmt.Fprint(w, `{"totalPages": 2, "reviews": []}`)
		}
	}))
	defer server.Close()

	scraper := &gmarketScraper{
		httpClient: server.Client(),
		baseURL:    server.URL + "/Review/ListApi?goodsCode=%s&pageNo=%d",
	}

	reviews, err := scraper.FetchReviews(context.Background(), "G123")
	if err != nil {
		t.Fatalf("FetchReviews failed: %v", err)
	}
	if len(reviews) != 3 {
		t.Fatalf("Expected 3 reviews across pages, got %d", len(reviews))
	}
	if reviews[2].Reviewer != "buyer3" {
		t.Errorf("Expected page-2 review last, got %q", reviews[2].Reviewer)
	}
	if reviews[0].Rating != 5 {
		t.Errorf("Expected rating 5, got %v", reviews[0].Rating)
	}
}

func TestGmarketEmptyProduct(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"totalPages": 0, "reviews": []}`)
	}))
	defer server.Close()

	scraper := &gmarketScraper{
		httpClient: server.Client(),
		baseURL:    server.URL + "/Review/ListApi?goodsCode=%s&pageNo=%d",
	}

	reviews, err := scraper.FetchReviews(context.Background(), "G999")
	if err != nil {
		t.Fatalf("FetchReviews failed: %v", err)
	}
	if len(reviews) != 0 {
		t.Errorf("Expected no reviews, got %d", len(reviews))
	}
}

func TestParseElevenstRating(t *testing.T) {
	cases := map[string]float64{
		"5점":   5,
		" 4점 ": 4,
		"3":    3,
		"별점":   0,
		"":     0,
	}
	for input, want := range cases {
		if got := parseElevenstRating(input); got != want {
			t.Errorf("parseElevenstRating(%q) = %v, want %v", input, got, want)
		}
	}
}
