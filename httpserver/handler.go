package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/agmanagement/kyc-intake/interfaces"
	"github.com/agmanagement/kyc-intake/metrics"
)

const (
	// maxUploadSize caps evidence uploads (8MB, matching the frontend).
	maxUploadSize = 8 * 1024 * 1024

	// multipartOverhead is headroom on top of maxUploadSize for the
	// multipart boundaries and form fields around a maximum-size file.
	multipartOverhead = 1024 * 1024

	// maxBodySize is the maximum allowed JSON request body size (2MB).
	maxBodySize = 2 * 1024 * 1024

	// feePct is the flat purchase fee applied to every quote.
	feePct = 0.05
)

// updateRetries bounds optimistic-concurrency retries on file attachment.
const updateRetries = 3

// Handler processes HTTP requests for the KYC intake flow. It combines the
// transaction repository, the encrypted artifact store, and the external
// collaborators (screening, pricing, notifications).
type Handler struct {
	repo      interfaces.TransactionRepository
	artifacts interfaces.ArtifactStore
	screening interfaces.ScreeningProvider
	pricing   interfaces.PriceProvider
	notifier  interfaces.Notifier
	log       *slog.Logger

	// set by Server during wiring; nil in bare handler tests
	metrics *metrics.Metrics
}

// NewHandler creates a new HTTP request handler with the specified
// dependencies.
func NewHandler(
	repo interfaces.TransactionRepository,
	artifacts interfaces.ArtifactStore,
	screening interfaces.ScreeningProvider,
	pricing interfaces.PriceProvider,
	notifier interfaces.Notifier,
	log *slog.Logger,
) *Handler {
	return &Handler{
		repo:      repo,
		artifacts: artifacts,
		screening: screening,
		pricing:   pricing,
		notifier:  notifier,
		log:       log,
	}
}

type apiError struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiError{OK: false, Error: msg})
}

// writeDomainError maps repository and provider sentinels onto HTTP statuses
// without leaking internal detail.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, interfaces.ErrInvalidTransition):
		writeError(w, http.StatusUnprocessableEntity, "invalid status transition")
	case errors.Is(err, interfaces.ErrConflict):
		writeError(w, http.StatusConflict, "concurrent update, retry")
	case errors.Is(err, interfaces.ErrPriceUnavailable):
		writeError(w, http.StatusBadGateway, "price unavailable")
	default:
		h.log.Error("Request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type quoteRequest struct {
	Asset     string  `json:"asset"`
	AmountUSD float64 `json:"amountUsd"`
}

type quoteResponse struct {
	OK          bool    `json:"ok"`
	Asset       string  `json:"asset"`
	AmountUSD   float64 `json:"amountUsd"`
	PriceUSD    float64 `json:"priceUsd"`
	FeePct      float64 `json:"feePct"`
	FeeUSD      float64 `json:"feeUsd"`
	NetUSD      float64 `json:"netUsd"`
	AssetAmount float64 `json:"assetAmount"`
	Timestamp   string  `json:"timestamp"`
}

func round(v float64, decimals int) float64 {
	scale := math.Pow10(decimals)
	return math.Round(v*scale) / scale
}

// HandleQuote computes a purchase quote: current USD price, the flat 5% fee,
// the net USD amount, and the resulting crypto amount.
//
// URL format: POST /api/quote
// Request body: {"asset": "BTC", "amountUsd": 1000}
func (h *Handler) HandleQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Asset == "" || req.AmountUSD <= 0 {
		writeError(w, http.StatusBadRequest, "asset and amountUsd required")
		return
	}

	priceUSD, err := h.pricing.USDPrice(r.Context(), req.Asset)
	if err != nil {
		h.log.Error("Quote failed", "err", err, "asset", req.Asset)
		h.writeDomainError(w, err)
		return
	}

	feeUSD := round(req.AmountUSD*feePct, 2)
	netUSD := round(req.AmountUSD-feeUSD, 2)

	if h.metrics != nil {
		h.metrics.QuotesServed.Inc()
	}
	writeJSON(w, http.StatusOK, quoteResponse{
		OK:          true,
		Asset:       strings.ToUpper(req.Asset),
		AmountUSD:   req.AmountUSD,
		PriceUSD:    priceUSD,
		FeePct:      feePct,
		FeeUSD:      feeUSD,
		NetUSD:      netUSD,
		AssetAmount: round(netUSD/priceUSD, 8),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleOCR accepts an identity document image and returns extracted identity
// fields. Real OCR/IDV integration is out of scope; the extraction is
// simulated with fixed demo data, matching the original deployment.
//
// URL format: POST /api/ocr (multipart, field "idImage")
func (h *Handler) HandleOCR(w http.ResponseWriter, r *http.Request) {
	_, _, _, err := h.readUpload(w, r, "idImage")
	if err != nil {
		writeUploadError(w, err, "missing file idImage")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"data": map[string]string{
			"fullName":       "John Michael Doe",
			"documentType":   "Driver License",
			"documentNumber": "D12345678",
			"dob":            "1990-05-10",
			"address":        "123 Main St, Las Vegas, NV 89101, USA",
			"country":        "US",
		},
	})
}

// HandleCreateTransaction creates a transaction record from the submitted
// identity and purchase data. A sanctions screening check runs inline; its
// verdict is attached to the record when the provider succeeds, and a
// provider failure is logged and skipped rather than failing the creation.
//
// URL format: POST /api/tx
// Request body: CreateTransactionPayload JSON
// Response: {"ok": true, "tx": <record>} with the signing token included.
func (h *Handler) HandleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var payload interfaces.CreateTransactionPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.FullName == "" || payload.Asset == "" || payload.USDAmount <= 0 {
		writeError(w, http.StatusBadRequest, "fullName, asset and usdAmount required")
		return
	}

	rec, err := h.repo.Create(r.Context(), payload)
	if err != nil {
		h.log.Error("Transaction creation failed", "err", err)
		h.writeDomainError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.TransactionsCreated.Inc()
	}

	if result, err := h.screening.Screen(r.Context(), payload.FullName, payload.DOB); err != nil {
		h.log.Warn("Screening failed, record created without verdict", "err", err, "txID", rec.ID)
		if h.metrics != nil {
			h.metrics.ScreeningFailures.Inc()
		}
	} else {
		updated, err := h.repo.Update(r.Context(), rec.ID, interfaces.Patch{
			Fields: map[string]any{"sanctions": result},
		})
		if err != nil {
			h.log.Warn("Failed to attach screening verdict", "err", err, "txID", rec.ID)
		} else {
			rec = updated
		}
	}

	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "tx": rec})
}

// HandleGetByToken looks a record up by its signing token. The token is an
// unguessable capability: possession authorizes the signing portal to read
// the record.
//
// URL format: GET /api/tx/{token}
func (h *Handler) HandleGetByToken(w http.ResponseWriter, r *http.Request) {
	rec, err := h.repo.FindByToken(r.Context(), r.PathValue("token"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "tx": rec})
}

// HandleUploadFile attaches one evidence file to a transaction. The upload is
// encrypted and persisted through the artifact store, and the resulting
// reference is merged into the record's file map.
//
// URL format: POST /api/tx/{id}/files (multipart, form value "kind", file
// field "file")
func (h *Handler) HandleUploadFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	data, filename, kindStr, err := h.readUpload(w, r, "file")
	if err != nil {
		writeUploadError(w, err, "missing file upload")
		return
	}
	kind, err := interfaces.ParseFileKind(kindStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown file kind")
		return
	}

	rec, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	ref, err := h.artifacts.Save(r.Context(), kind, data, extOf(filename))
	if err != nil {
		h.log.Error("Artifact save failed", "err", err, "txID", id, "kind", kind)
		h.writeDomainError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.ArtifactsStored.Inc()
	}

	rec, err = h.attachFile(r.Context(), rec, kind, ref)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "tx": rec})
}

// attachFile merges the artifact reference into the record's file map,
// re-reading and retrying when a concurrent attach wins the race.
func (h *Handler) attachFile(ctx context.Context, rec *interfaces.TransactionRecord, kind interfaces.FileKind, ref interfaces.ArtifactRef) (*interfaces.TransactionRecord, error) {
	var err error
	for attempt := 0; attempt < updateRetries; attempt++ {
		var updated *interfaces.TransactionRecord
		updated, err = h.repo.Update(ctx, rec.ID, rec.FilePatch(kind, ref))
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, interfaces.ErrConflict) {
			return nil, err
		}
		rec, err = h.repo.FindByID(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: file attach lost %d races", interfaces.ErrConflict, updateRetries)
}

// HandleSign records the drawn signature image uploaded from the remote
// signing portal and moves the record to status signed. Lookup is by
// capability token, not id: the portal never learns internal ids.
//
// URL format: POST /api/sign/{token} (multipart, file field "signature")
func (h *Handler) HandleSign(w http.ResponseWriter, r *http.Request) {
	rec, err := h.repo.FindByToken(r.Context(), r.PathValue("token"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	data, filename, _, err := h.readUpload(w, r, "signature")
	if err != nil {
		writeUploadError(w, err, "missing file signature")
		return
	}

	ref, err := h.artifacts.Save(r.Context(), interfaces.FileSignature, data, extOf(filename))
	if err != nil {
		h.log.Error("Signature save failed", "err", err, "txID", rec.ID)
		h.writeDomainError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.ArtifactsStored.Inc()
	}

	// Attach the signature and flip the status in one atomic merge so the
	// transition guard sees the signature it requires.
	patch := rec.FilePatch(interfaces.FileSignature, ref)
	patch.Fields["status"] = interfaces.StatusSigned

	rec, err = h.repo.Update(r.Context(), rec.ID, patch)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "tx": rec})
}

// HandleFinalize moves a signed record to sent and dispatches receipt
// notifications over every configured channel. Notification failures are
// logged and counted but never fail the finalization.
//
// URL format: POST /api/tx/{id}/finalize
func (h *Handler) HandleFinalize(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	rec, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	// The repository treats sent -> sent as a no-op merge; reject it here
	// so a replayed finalize cannot re-send receipts.
	if rec.Status != interfaces.StatusSigned {
		h.writeDomainError(w, fmt.Errorf("%w: finalize requires status signed, have %s",
			interfaces.ErrInvalidTransition, rec.Status))
		return
	}

	rec, err = h.repo.Update(r.Context(), id, interfaces.Patch{
		Fields:          map[string]any{"status": interfaces.StatusSent},
		ExpectUpdatedAt: rec.UpdatedAt,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.sendReceipts(r.Context(), rec)

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "tx": rec})
}

// sendReceipts dispatches the purchase receipt over email, SMS, and WhatsApp
// for whichever contact fields the record carries. The stored PDF, when
// present, is decrypted and attached to the email.
func (h *Handler) sendReceipts(ctx context.Context, rec *interfaces.TransactionRecord) {
	body := fmt.Sprintf(
		"We received your %s purchase of $%.2f. Our team will process your order (up to 24h).",
		strings.ToUpper(rec.Asset), rec.USDAmount)

	if rec.Email != "" {
		var attachment []byte
		var filename string
		if pdfRef, ok := rec.Files[interfaces.FilePDF]; ok {
			plaintext, _, err := h.artifacts.Load(ctx, pdfRef)
			if err != nil {
				h.log.Warn("Receipt PDF unavailable, sending email without attachment", "err", err, "txID", rec.ID)
			} else {
				attachment = plaintext
				filename = "receipt.pdf"
			}
		}
		if err := h.notifier.SendEmail(ctx, rec.Email, "Your crypto purchase receipt", body, attachment, filename); err != nil {
			h.notificationFailed("email", rec.ID, err)
		}
	}

	if rec.Phone != "" {
		if err := h.notifier.SendSMS(ctx, rec.Phone, body); err != nil {
			h.notificationFailed("sms", rec.ID, err)
		}
		if err := h.notifier.SendWhatsApp(ctx, rec.Phone, body); err != nil {
			h.notificationFailed("whatsapp", rec.ID, err)
		}
	}
}

func (h *Handler) notificationFailed(channel, txID string, err error) {
	h.log.Warn("Receipt notification failed", "err", err, "channel", channel, "txID", txID)
	if h.metrics != nil {
		h.metrics.NotificationFailures.Inc()
	}
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(v)
}

// errUploadTooLarge marks an upload past maxUploadSize; it maps to 413
// instead of the generic 400 for a missing file part.
var errUploadTooLarge = errors.New("upload exceeds size limit")

// readUpload parses a multipart upload and returns the named file's bytes,
// its client-supplied filename, and the "kind" form value if present. An
// oversize file is rejected with errUploadTooLarge, never truncated: a
// silently clipped id image or PDF would be stored corrupt and only noticed
// at review time.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request, field string) (data []byte, filename, kind string, err error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+multipartOverhead)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return nil, "", "", errUploadTooLarge
		}
		return nil, "", "", err
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", "", err
	}
	defer func(file multipart.File) { _ = file.Close() }(file)

	data, err = io.ReadAll(io.LimitReader(file, maxUploadSize+1))
	if err != nil {
		return nil, "", "", err
	}
	if len(data) > maxUploadSize {
		return nil, "", "", errUploadTooLarge
	}
	return data, header.Filename, r.FormValue("kind"), nil
}

// writeUploadError distinguishes an oversize upload from a missing or
// malformed file part.
func writeUploadError(w http.ResponseWriter, err error, missingMsg string) {
	if errors.Is(err, errUploadTooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}
	writeError(w, http.StatusBadRequest, missingMsg)
}

// extOf extracts the bare extension from an uploaded filename.
func extOf(filename string) string {
	return strings.TrimPrefix(filepath.Ext(filename), ".")
}
