package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/samsamoo/reviewpulse/internal/events"
	"github.com/samsamoo/reviewpulse/internal/runtracker"
	"github.com/samsamoo/reviewpulse/internal/storage"
)

// Queue enqueues pipeline tasks
type Queue interface {
	EnqueueCrawl(ctx context.Context, source, sourceProductID string, chainAnalysis bool) (string, error)
	EnqueueAnalysis(ctx context.Context, source, sourceProductID string) (string, error)
}

// StatusCache serves cached status lookups and invalidation. A nil Get
// result means a miss.
type StatusCache interface {
	Get(ctx context.Context, source, sourceProductID string) (*storage.ProductStatus, error)
	Delete(ctx context.Context, source, sourceProductID string) error
}

// Handler contains all HTTP handlers
type Handler struct {
	storage     *storage.Storage
	queue       Queue
	statusCache StatusCache
	runs        *runtracker.Tracker
	broadcaster *events.Broadcaster
}

// New creates a new Handler. statusCache, runs and broadcaster may be nil.
func New(store *storage.Storage, queue Queue, statusCache StatusCache, runs *runtracker.Tracker, broadcaster *events.Broadcaster) *Handler {
	return &Handler{
		storage:     store,
		queue:       queue,
		statusCache: statusCache,
		runs:        runs,
		broadcaster: broadcaster,
	}
}

// RegisterProductRequest represents a request to register a product
type RegisterProductRequest struct {
	Source          string `json:"source"`
	SourceProductID string `json:"source_product_id"`
	Title           string `json:"title,omitempty"`
	URL             string `json:"url,omitempty"`
	// Crawl controls whether a crawl task is enqueued right away; defaults
	// to true when omitted.
	Crawl *bool `json:"crawl,omitempty"`
}

// PipelineRequest identifies a product for a pipeline action
type PipelineRequest struct {
	Source          string `json:"source"`
	SourceProductID string `json:"source_product_id"`
	ChainAnalysis   *bool  `json:"chain_analysis,omitempty"`
}

// TaskResponse reports an accepted queue submission
type TaskResponse struct {
	TaskID          string `json:"task_id,omitempty"`
	RunID           string `json:"run_id,omitempty"`
	Source          string `json:"source"`
	SourceProductID string `json:"source_product_id"`
	Status          string `json:"status"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// RegisterProduct registers a product and, by default, starts the full
// crawl-then-analyze pipeline for it
func (h *Handler) RegisterProduct(w http.ResponseWriter, r *http.Request) {
	var req RegisterProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Source == "" || req.SourceProductID == "" {
		respondError(w, "source and source_product_id are required", http.StatusBadRequest)
		return
	}

	product := &storage.Product{
		Source:          req.Source,
		SourceProductID: req.SourceProductID,
		Title:           req.Title,
		URL:             req.URL,
	}
	if err := h.storage.CreateProduct(product); err != nil {
		respondError(w, fmt.Sprintf("Failed to register product: %v", err), http.StatusInternalServerError)
		return
	}

	resp := TaskResponse{
		Source:          req.Source,
		SourceProductID: req.SourceProductID,
		Status:          "registered",
	}

	if req.Crawl == nil || *req.Crawl {
		taskID, err := h.queue.EnqueueCrawl(r.Context(), req.Source, req.SourceProductID, true)
		if err != nil {
			respondError(w, fmt.Sprintf("Failed to enqueue crawl task: %v", err), http.StatusInternalServerError)
			return
		}
		resp.TaskID = taskID
		resp.Status = "queued"
		resp.RunID = h.trackRun(req.Source, req.SourceProductID, taskID)
	}

	respondJSON(w, resp, http.StatusAccepted)
}

// Crawl enqueues a crawl task for a registered product
func (h *Handler) Crawl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req PipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Source == "" || req.SourceProductID == "" {
		respondError(w, "source and source_product_id are required", http.StatusBadRequest)
		return
	}

	product, err := h.storage.GetProduct(req.Source, req.SourceProductID)
	if err != nil {
		respondError(w, fmt.Sprintf("Failed to look up product: %v", err), http.StatusInternalServerError)
		return
	}
	if product == nil {
		respondError(w, "Product not found", http.StatusNotFound)
		return
	}

	chain := req.ChainAnalysis == nil || *req.ChainAnalysis
	taskID, err := h.queue.EnqueueCrawl(r.Context(), req.Source, req.SourceProductID, chain)
	if err != nil {
		respondError(w, fmt.Sprintf("Failed to enqueue crawl task: %v", err), http.StatusInternalServerError)
		return
	}

	respondJSON(w, TaskResponse{
		TaskID:          taskID,
		RunID:           h.trackRun(req.Source, req.SourceProductID, taskID),
		Source:          req.Source,
		SourceProductID: req.SourceProductID,
		Status:          "queued",
	}, http.StatusAccepted)
}

// Analyze enqueues an analysis task for a product with collected reviews
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req PipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Source == "" || req.SourceProductID == "" {
		respondError(w, "source and source_product_id are required", http.StatusBadRequest)
		return
	}

	product, err := h.storage.GetProduct(req.Source, req.SourceProductID)
	if err != nil {
		respondError(w, fmt.Sprintf("Failed to look up product: %v", err), http.StatusInternalServerError)
		return
	}
	if product == nil {
		respondError(w, "Product not found", http.StatusNotFound)
		return
	}

	taskID, err := h.queue.EnqueueAnalysis(r.Context(), req.Source, req.SourceProductID)
	if err != nil {
		respondError(w, fmt.Sprintf("Failed to enqueue analysis task: %v", err), http.StatusInternalServerError)
		return
	}

	respondJSON(w, TaskResponse{
		TaskID:          taskID,
		RunID:           h.trackRun(req.Source, req.SourceProductID, taskID),
		Source:          req.Source,
		SourceProductID: req.SourceProductID,
		Status:          "queued",
	}, http.StatusAccepted)
}

// RecollectResponse reports a completed reset plus the new crawl submission
type RecollectResponse struct {
	TaskResponse
	DeletedReviews int64 `json:"deleted_reviews"`
}

// Recollect wipes collected data for a product and starts the pipeline over
func (h *Handler) Recollect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req PipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Source == "" || req.SourceProductID == "" {
		respondError(w, "source and source_product_id are required", http.StatusBadRequest)
		return
	}

	product, err := h.storage.GetProduct(req.Source, req.SourceProductID)
	if err != nil {
		respondError(w, fmt.Sprintf("Failed to look up product: %v", err), http.StatusInternalServerError)
		return
	}
	if product == nil {
		respondError(w, "Product not found", http.StatusNotFound)
		return
	}

	deleted, err := h.storage.ResetProduct(req.Source, req.SourceProductID)
	if err != nil {
		respondError(w, fmt.Sprintf("Failed to reset product: %v", err), http.StatusInternalServerError)
		return
	}

	// The cached snapshot predates the reset; drop it so pollers do not
	// see a stale terminal status until the TTL runs out
	if h.statusCache != nil {
		if err := h.statusCache.Delete(r.Context(), req.Source, req.SourceProductID); err != nil {
			slog.Warn("failed to invalidate status cache after recollect",
				"source", req.Source,
				"source_product_id", req.SourceProductID,
				"error", err,
			)
		}
	}

	taskID, err := h.queue.EnqueueCrawl(r.Context(), req.Source, req.SourceProductID, true)
	if err != nil {
		respondError(w, fmt.Sprintf("Failed to enqueue crawl task: %v", err), http.StatusInternalServerError)
		return
	}

	respondJSON(w, RecollectResponse{
		TaskResponse: TaskResponse{
			TaskID:          taskID,
			RunID:           h.trackRun(req.Source, req.SourceProductID, taskID),
			Source:          req.Source,
			SourceProductID: req.SourceProductID,
			Status:          "queued",
		},
		DeletedReviews: deleted,
	}, http.StatusAccepted)
}

// Status serves the polling endpoint, cache first then the database
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	source := r.URL.Query().Get("source")
	sourceProductID := r.URL.Query().Get("product_id")
	if source == "" || sourceProductID == "" {
		respondError(w, "source and product_id are required", http.StatusBadRequest)
		return
	}

	if h.statusCache != nil {
		if cached, err := h.statusCache.Get(r.Context(), source, sourceProductID); err == nil && cached != nil {
			respondJSON(w, cached, http.StatusOK)
			return
		}
	}

	status, err := h.storage.GetStatus(source, sourceProductID)
	if err != nil {
		respondError(w, fmt.Sprintf("Failed to get status: %v", err), http.StatusInternalServerError)
		return
	}
	if status == nil {
		respondError(w, "Product not found", http.StatusNotFound)
		return
	}

	respondJSON(w, status, http.StatusOK)
}

// Products serves registration on POST and the product listing on GET
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.RegisterProduct(w, r)
	case http.MethodGet:
		h.ListProducts(w, r)
	default:
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// ListProducts lists registered products with pagination
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	limit := 50
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsedOffset, err := strconv.Atoi(offsetStr); err == nil && parsedOffset >= 0 {
			offset = parsedOffset
		}
	}

	products, err := h.storage.ListProducts(limit, offset)
	if err != nil {
		respondError(w, fmt.Sprintf("Failed to list products: %v", err), http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"products": products,
		"count":    len(products),
		"limit":    limit,
		"offset":   offset,
	}

	respondJSON(w, response, http.StatusOK)
}

// ProductResult serves the latest analysis output for a product:
// /api/products/{source}/{id}/metrics and /api/products/{source}/{id}/insight
func (h *Handler) ProductResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/products/"), "/"), "/")
	if len(parts) != 3 {
		respondError(w, "Expected /api/products/{source}/{product_id}/{metrics|insight}", http.StatusBadRequest)
		return
	}
	source, sourceProductID, kind := parts[0], parts[1], parts[2]

	switch kind {
	case "metrics":
		record, err := h.storage.GetLatestMetricsForProduct(source, sourceProductID)
		if err != nil {
			respondError(w, fmt.Sprintf("Failed to get metrics: %v", err), http.StatusInternalServerError)
			return
		}
		if record == nil {
			respondError(w, "No analysis metrics found", http.StatusNotFound)
			return
		}
		respondJSON(w, record, http.StatusOK)
	case "insight":
		record, err := h.storage.GetLatestInsightForProduct(source, sourceProductID)
		if err != nil {
			respondError(w, fmt.Sprintf("Failed to get insight: %v", err), http.StatusInternalServerError)
			return
		}
		if record == nil {
			respondError(w, "No analysis insight found", http.StatusNotFound)
			return
		}
		respondJSON(w, record, http.StatusOK)
	default:
		respondError(w, "Expected /api/products/{source}/{product_id}/{metrics|insight}", http.StatusBadRequest)
	}
}

// Runs lists tracked pipeline runs
func (h *Handler) Runs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.runs == nil {
		respondJSON(w, map[string]interface{}{"runs": []*runtracker.Run{}, "count": 0}, http.StatusOK)
		return
	}

	runs := h.runs.List()
	respondJSON(w, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	}, http.StatusOK)
}

// Events streams product status transitions over SSE
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.broadcaster == nil {
		respondError(w, "Event streaming not enabled", http.StatusNotFound)
		return
	}

	source := r.URL.Query().Get("source")
	sourceProductID := r.URL.Query().Get("product_id")
	if source == "" || sourceProductID == "" {
		respondError(w, "source and product_id are required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	subID := uuid.New().String()
	sub := h.broadcaster.Subscribe(subID, source, sourceProductID)
	defer h.broadcaster.Unsubscribe(subID)

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-sub.Events:
			if !ok {
				return
			}
			data, err := events.MarshalEvent(event)
			if err != nil {
				continue
			}
			fmt.Fprint(w, data)
			flusher.Flush()
		}
	}
}

// Health check endpoint
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]string{
		"status": "healthy",
	}
	respondJSON(w, response, http.StatusOK)
}

func (h *Handler) trackRun(source, sourceProductID, taskID string) string {
	if h.runs == nil {
		return ""
	}
	return h.runs.Create(source, sourceProductID, taskID).ID
}

func respondJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}
