package httpserver

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/agmanagement/kyc-intake/cryptoutils"
	"github.com/agmanagement/kyc-intake/interfaces"
	"github.com/agmanagement/kyc-intake/providers"
	"github.com/agmanagement/kyc-intake/storage"
	"github.com/agmanagement/kyc-intake/txstore"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPricer struct {
	price float64
	err   error
}

func (p *stubPricer) USDPrice(ctx context.Context, asset string) (float64, error) {
	return p.price, p.err
}

// recordingNotifier captures dispatched receipts.
type recordingNotifier struct {
	emails    []string
	sms       []string
	whatsapps []string
}

func (n *recordingNotifier) SendEmail(ctx context.Context, to, subject, body string, attachment []byte, filename string) error {
	n.emails = append(n.emails, to)
	return nil
}

func (n *recordingNotifier) SendSMS(ctx context.Context, to, body string) error {
	n.sms = append(n.sms, to)
	return nil
}

func (n *recordingNotifier) SendWhatsApp(ctx context.Context, to, body string) error {
	n.whatsapps = append(n.whatsapps, to)
	return nil
}

type testEnv struct {
	router   http.Handler
	repo     *txstore.Repository
	notifier *recordingNotifier
	pricer   *stubPricer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	repo, err := txstore.Open(txstore.Config{
		Path:   filepath.Join(t.TempDir(), "tx.db"),
		Logger: logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	key := make([]byte, cryptoutils.KeySize)
	_, err = rand.Read(key)
	require.NoError(t, err)
	cipher, err := cryptoutils.NewCipher(key)
	require.NoError(t, err)

	backend, err := storage.NewFileBackend(t.TempDir(), logger)
	require.NoError(t, err)
	artifacts := storage.NewEncryptedStore(cipher, backend, logger)

	notifier := &recordingNotifier{}
	pricer := &stubPricer{price: 50000}

	handler := NewHandler(
		repo,
		artifacts,
		&providers.StubScreening{Log: logger},
		pricer,
		notifier,
		logger,
	)

	mux := chi.NewRouter()
	mux.Post("/api/quote", handler.HandleQuote)
	mux.Post("/api/ocr", handler.HandleOCR)
	mux.Post("/api/tx", handler.HandleCreateTransaction)
	mux.Get("/api/tx/{token}", handler.HandleGetByToken)
	mux.Post("/api/tx/{id}/files", handler.HandleUploadFile)
	mux.Post("/api/sign/{token}", handler.HandleSign)
	mux.Post("/api/tx/{id}/finalize", handler.HandleFinalize)

	return &testEnv{router: mux, repo: repo, notifier: notifier, pricer: pricer}
}

func (env *testEnv) postJSON(t *testing.T, url string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

// postUpload sends a multipart request with one file part and optional extra
// form values.
func (env *testEnv) postUpload(t *testing.T, url, field, filename string, data []byte, values map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	for k, v := range values {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, url, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func decodeTx(t *testing.T, w *httptest.ResponseRecorder) *interfaces.TransactionRecord {
	t.Helper()
	var resp struct {
		OK bool                          `json:"ok"`
		Tx *interfaces.TransactionRecord `json:"tx"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.OK)
	require.NotNil(t, resp.Tx)
	return resp.Tx
}

func TestHandleQuote(t *testing.T) {
	env := newTestEnv(t)

	w := env.postJSON(t, "/api/quote", map[string]any{"asset": "btc", "amountUsd": 1000.0})
	require.Equal(t, http.StatusOK, w.Code)

	var resp quoteResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, "BTC", resp.Asset)
	assert.Equal(t, float64(50000), resp.PriceUSD)
	assert.Equal(t, 0.05, resp.FeePct)
	assert.Equal(t, 50.0, resp.FeeUSD)
	assert.Equal(t, 950.0, resp.NetUSD)
	assert.Equal(t, 0.019, resp.AssetAmount)
	assert.NotEmpty(t, resp.Timestamp)
}

func TestHandleQuote_Validation(t *testing.T) {
	env := newTestEnv(t)

	w := env.postJSON(t, "/api/quote", map[string]any{"amountUsd": 100.0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.postJSON(t, "/api/quote", map[string]any{"asset": "BTC", "amountUsd": -5.0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleQuote_PriceUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.pricer.err = fmt.Errorf("%w: feed down", interfaces.ErrPriceUnavailable)

	w := env.postJSON(t, "/api/quote", map[string]any{"asset": "BTC", "amountUsd": 100.0})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestHandleOCR(t *testing.T) {
	env := newTestEnv(t)

	w := env.postUpload(t, "/api/ocr", "idImage", "id.jpg", []byte("jpeg bytes"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		OK   bool              `json:"ok"`
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, "John Michael Doe", resp.Data["fullName"])

	// missing file part
	w = env.postJSON(t, "/api/ocr", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleCreateTransaction(t *testing.T) {
	env := newTestEnv(t)

	w := env.postJSON(t, "/api/tx", map[string]any{
		"fullName":  "Jane Roe",
		"dob":       "1990-05-10",
		"email":     "jane@example.com",
		"asset":     "ETH",
		"usdAmount": 500.0,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	tx := decodeTx(t, w)
	assert.NotEmpty(t, tx.ID)
	assert.Len(t, tx.Token, 32)
	assert.Equal(t, interfaces.StatusCreated, tx.Status)
	require.NotNil(t, tx.Sanctions)
	assert.Equal(t, providers.VerdictClear, tx.Sanctions.Result)
}

func TestHandleCreateTransaction_Validation(t *testing.T) {
	env := newTestEnv(t)

	w := env.postJSON(t, "/api/tx", map[string]any{"asset": "BTC", "usdAmount": 100.0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleGetByToken_NotFound(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/tx/nosuchtoken", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleUploadFile_UnknownKind(t *testing.T) {
	env := newTestEnv(t)

	created := decodeTx(t, env.postJSON(t, "/api/tx", map[string]any{
		"fullName": "Jane Roe", "asset": "BTC", "usdAmount": 100.0,
	}))

	w := env.postUpload(t, "/api/tx/"+created.ID+"/files", "file", "x.jpg",
		[]byte("data"), map[string]string{"kind": "passportScan"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// Oversize uploads must be rejected outright, not clipped at the size limit
// and stored as a corrupt artifact.
func TestHandleUploadFile_OversizeRejected(t *testing.T) {
	env := newTestEnv(t)

	created := decodeTx(t, env.postJSON(t, "/api/tx", map[string]any{
		"fullName": "Jane Roe", "asset": "BTC", "usdAmount": 100.0,
	}))

	oversize := bytes.Repeat([]byte{0xAB}, maxUploadSize+1024)
	w := env.postUpload(t, "/api/tx/"+created.ID+"/files", "file", "huge.jpg",
		oversize, map[string]string{"kind": "idImage"})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	// Nothing was stored or attached.
	req := httptest.NewRequest(http.MethodGet, "/api/tx/"+created.Token, nil)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeTx(t, w).Files)
}

func TestHandleFinalize_RequiresSigned(t *testing.T) {
	env := newTestEnv(t)

	created := decodeTx(t, env.postJSON(t, "/api/tx", map[string]any{
		"fullName": "Jane Roe", "asset": "BTC", "usdAmount": 100.0,
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/tx/"+created.ID+"/finalize", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Empty(t, env.notifier.emails)
}

// TestIntakeFlow walks the full happy path: create, read via the signing
// token, upload the id image, sign, finalize with receipts.
func TestIntakeFlow(t *testing.T) {
	env := newTestEnv(t)

	created := decodeTx(t, env.postJSON(t, "/api/tx", map[string]any{
		"fullName":  "Jane Roe",
		"dob":       "1990-05-10",
		"address":   "42 Elm St",
		"phone":     "+15550100",
		"email":     "jane@example.com",
		"asset":     "BTC",
		"usdAmount": 1000.0,
		"wallet":    "bc1qexample",
	}))

	// The signing portal reads the record through the capability token.
	req := httptest.NewRequest(http.MethodGet, "/api/tx/"+created.Token, nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created.ID, decodeTx(t, w).ID)

	// Evidence upload.
	w = env.postUpload(t, "/api/tx/"+created.ID+"/files", "file", "passport.jpg",
		[]byte("fake jpeg"), map[string]string{"kind": "idImage"})
	require.Equal(t, http.StatusOK, w.Code)
	withFile := decodeTx(t, w)
	require.Contains(t, withFile.Files, interfaces.FileIDImage)
	assert.Equal(t, interfaces.StatusCreated, withFile.Status)

	// Finalizing before signing is rejected.
	req = httptest.NewRequest(http.MethodPost, "/api/tx/"+created.ID+"/finalize", nil)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// Remote signature by token.
	w = env.postUpload(t, "/api/sign/"+created.Token, "signature", "sig.png",
		[]byte("fake png"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	signed := decodeTx(t, w)
	assert.Equal(t, interfaces.StatusSigned, signed.Status)
	require.Contains(t, signed.Files, interfaces.FileSignature)
	assert.Contains(t, signed.Files, interfaces.FileIDImage)

	// Finalize dispatches receipts on every channel with a contact.
	req = httptest.NewRequest(http.MethodPost, "/api/tx/"+created.ID+"/finalize", nil)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	sent := decodeTx(t, w)
	assert.Equal(t, interfaces.StatusSent, sent.Status)

	assert.Equal(t, []string{"jane@example.com"}, env.notifier.emails)
	assert.Equal(t, []string{"+15550100"}, env.notifier.sms)
	assert.Equal(t, []string{"+15550100"}, env.notifier.whatsapps)

	// A second finalize is an invalid transition.
	req = httptest.NewRequest(http.MethodPost, "/api/tx/"+created.ID+"/finalize", nil)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}
