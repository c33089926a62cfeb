package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/meridian-commerce/api/internal/platform/httpx"
	"github.com/meridian-commerce/api/internal/platform/storage"
)

const maxMediaBodySize = 32 * 1024

var allowedImageTypes = []string{"image/png", "image/jpeg", "image/webp"}

// MediaHandlers issues signed upload URLs for catalog imagery and promotes
// finished uploads from the staging bucket into the public assets bucket.
type MediaHandlers struct {
	signedURLs    *storage.Client
	copier        *storage.Copier
	uploadsBucket string
	assetsBucket  string
	newUploadID   func() string
}

// NewMediaHandlers constructs the media endpoints.
func NewMediaHandlers(signedURLs *storage.Client, copier *storage.Copier, uploadsBucket, assetsBucket string) *MediaHandlers {
	return &MediaHandlers{
		signedURLs:    signedURLs,
		copier:        copier,
		uploadsBucket: strings.TrimSpace(uploadsBucket),
		assetsBucket:  strings.TrimSpace(assetsBucket),
		newUploadID:   func() string { return ulid.Make().String() },
	}
}

// AdminRoutes wires the media endpoints.
func (h *MediaHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/products/{productId}/images/upload-url", h.productImageUploadURL)
	r.Post("/products/{productId}/images/promote", h.promoteProductImage)
}

func (h *MediaHandlers) productImageUploadURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.signedURLs == nil || h.uploadsBucket == "" {
		httpx.WriteError(ctx, w, httpx.NewError("media_unavailable", "media uploads are not configured", http.StatusServiceUnavailable))
		return
	}

	var req struct {
		FileName    string `json:"file_name"`
		ContentType string `json:"content_type"`
	}
	if err := decodeJSONBody(r, maxMediaBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	uploadID := h.newUploadID()
	object, err := storage.BuildObjectPath(storage.PurposeProductImage, storage.PathParams{
		ProductID: chi.URLParam(r, "productId"),
		UploadID:  uploadID,
		FileName:  req.FileName,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.signedURLs.SignedURL(ctx, h.uploadsBucket, object, storage.SignedURLOptions{
		Upload: &storage.UploadOptions{
			Method:              http.MethodPut,
			ContentType:         req.ContentType,
			AllowedContentTypes: allowedImageTypes,
			MaxSize:             10 << 20,
			ExpiresIn:           10 * time.Minute,
		},
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"upload_id":  uploadID,
		"object":     object,
		"url":        result.URL,
		"method":     result.Method,
		"headers":    result.Headers,
		"expires_at": result.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (h *MediaHandlers) promoteProductImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.copier == nil || h.uploadsBucket == "" || h.assetsBucket == "" {
		httpx.WriteError(ctx, w, httpx.NewError("media_unavailable", "media promotion is not configured", http.StatusServiceUnavailable))
		return
	}

	var req struct {
		UploadID string `json:"upload_id"`
		FileName string `json:"file_name"`
	}
	if err := decodeJSONBody(r, maxMediaBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	object, err := storage.BuildObjectPath(storage.PurposeProductImage, storage.PathParams{
		ProductID: chi.URLParam(r, "productId"),
		UploadID:  req.UploadID,
		FileName:  req.FileName,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	if err := h.copier.CopyObject(ctx, h.uploadsBucket, object, h.assetsBucket, object); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("media_copy_failed", "failed to promote upload", http.StatusBadGateway))
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"bucket": h.assetsBucket,
		"object": object,
	})
}
