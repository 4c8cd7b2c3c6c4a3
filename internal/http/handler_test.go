package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nurpe/carbon-credits/internal/config"
	"github.com/nurpe/carbon-credits/internal/excel"
	"github.com/nurpe/carbon-credits/internal/http/middleware"
	"github.com/nurpe/carbon-credits/internal/ledger"
	"github.com/nurpe/carbon-credits/internal/ledger/ledgertest"
	"github.com/nurpe/carbon-credits/internal/media"
	"github.com/nurpe/carbon-credits/internal/model"
	"github.com/nurpe/carbon-credits/internal/oracle"
	"github.com/nurpe/carbon-credits/internal/pdf"
	"github.com/nurpe/carbon-credits/internal/service"
	"github.com/nurpe/carbon-credits/internal/tokens"
)

var (
	buyer  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	seller = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubParser map[string]model.Principal

func (p stubParser) Parse(token string) (model.Principal, error) {
	principal, ok := p[token]
	if !ok {
		return model.Principal{}, errors.New("unknown token")
	}
	return principal, nil
}

var tokensByRole = stubParser{
	"operator": {UserID: "u1", Role: model.RoleOperator},
	"viewer":   {UserID: "u2", Role: model.RoleViewer},
}

type stubEvidence struct{}

func (stubEvidence) Upload(_ context.Context, f media.File) (string, error) {
	if err := media.Validate(f, 0); err != nil {
		return "", err
	}
	return "QmEvidence", nil
}

type stubPredictor struct {
	value int64
	err   error
}

func (p stubPredictor) Predict(context.Context, oracle.Request) (int64, error) {
	return p.value, p.err
}

type stubMedia map[string][]byte

func (m stubMedia) Get(_ context.Context, hash string) ([]byte, bool, error) {
	data, ok := m[hash]
	return data, ok, nil
}

func whole(t *testing.T, n int64) *big.Int {
	t.Helper()
	v, err := tokens.FromWhole(n)
	require.NoError(t, err)
	return v
}

func newServer(l *ledgertest.Ledger, as common.Address, predictor stubPredictor) *gin.Engine {
	return newServerWithLog(l, as, predictor, zerolog.Nop())
}

func newServerWithLog(l *ledgertest.Ledger, as common.Address, predictor stubPredictor, log zerolog.Logger) *gin.Engine {
	cfg := &config.Config{
		Claims:    config.ClaimsConfig{Year: 2023},
		Requests:  config.RequestsConfig{UnitPrice: decimal.NewFromInt(50)},
		Directory: config.DirectoryConfig{PhotoConcurrency: 2},
	}
	claims := service.NewClaimService(stubEvidence{}, predictor, nil, pdf.NewGenerator(), cfg, log)
	requests := service.NewRequestService(excel.NewGenerator(), cfg, log)
	directory := service.NewDirectoryService(stubMedia{"QmLogo": pngData}, cfg, log)

	h := NewHandler(claims, requests, directory, ledger.NewSession(l.As(as), as), 0, log)
	return NewRouter(h, middleware.Auth(tokensByRole), "test", nil)
}

var pngData = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)

func do(t *testing.T, router *gin.Engine, method, path, token string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func postJSON(t *testing.T, router *gin.Engine, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return do(t, router, http.MethodPost, path, token, raw, "application/json")
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestAuthRequired(t *testing.T) {
	router := newServer(ledgertest.New(), buyer, stubPredictor{})

	assert.Equal(t, http.StatusUnauthorized, do(t, router, http.MethodGet, "/requests", "", nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, router, http.MethodGet, "/requests", "forged", nil, "").Code)
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/healthz", "", nil, "").Code)

	rec := postJSON(t, router, "/requests", "viewer", gin.H{"seller": seller.Hex(), "amount": "1"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequestFlow(t *testing.T) {
	l := ledgertest.New()
	l.Register(buyer, "Buyer", "", whole(t, 0))
	l.Register(seller, "Seller", "", whole(t, 20))
	asBuyer := newServer(l, buyer, stubPredictor{})
	asSeller := newServer(l, seller, stubPredictor{})

	for _, amount := range []any{"0", "-5", "abc", 0} {
		rec := postJSON(t, asBuyer, "/requests", "operator", gin.H{"seller": seller.Hex(), "amount": amount})
		assert.Equal(t, http.StatusBadRequest, rec.Code, "amount %v", amount)
	}
	assert.Equal(t, 0, l.Calls("createRequest"))

	rec := postJSON(t, asBuyer, "/requests", "operator", gin.H{"seller": seller.Hex(), "amount": 30})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "1", decode(t, rec)["request_id"])

	rec = do(t, asBuyer, http.MethodGet, "/requests", "viewer", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode(t, rec)["items"].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, "30", item["amount"])
	assert.Equal(t, "1500", item["price"])
	assert.Equal(t, "PENDING", item["status"])

	rec = do(t, asBuyer, http.MethodPost, "/requests/1/approve", "operator", nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, asSeller, http.MethodPost, "/requests/1/approve", "operator", nil, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	status, _ := l.RequestStatus(big.NewInt(1))
	assert.Equal(t, uint8(0), status)

	rec = do(t, asSeller, http.MethodPost, "/requests/1/decline", "operator", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DECLINED", decode(t, rec)["status"])

	rec = do(t, asSeller, http.MethodPost, "/requests/1/approve", "operator", nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, asSeller, http.MethodPost, "/requests/99/decline", "operator", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, asSeller, http.MethodGet, "/requests/export", "viewer", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")
}

func claimForm(t *testing.T, withPhoto bool) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := map[string]string{
		"coordinates_x":   "43",
		"coordinates_y":   "76",
		"acres":           "12",
		"demanded_tokens": "100",
		"project_name":    "Reforestation",
		"project_details": "Birch along the river",
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if withPhoto {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="photo"; filename="site.png"`)
		h.Set("Content-Type", "image/png")
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(pngData)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

func TestSubmitClaim(t *testing.T) {
	l := ledgertest.New()
	l.Register(buyer, "Green Acres", "QmLogo", whole(t, 0))

	body, contentType := claimForm(t, true)
	rec := do(t, newServer(l, buyer, stubPredictor{value: 75}), http.MethodPost, "/claims", "operator", body, contentType)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode(t, rec)
	assert.Equal(t, "APPROVED", resp["state"])
	assert.Equal(t, "QmEvidence", resp["evidence_hash"])
	assert.Equal(t, float64(75), resp["awarded_tokens"])
	assert.Equal(t, float64(75), resp["predicted_tokens"])
}

func TestSubmitClaim_ApprovalFailureIsAccepted(t *testing.T) {
	l := ledgertest.New()
	l.Register(buyer, "Green Acres", "", whole(t, 0))
	l.FailNext("approveClaim", &ledger.TxError{Method: "approveClaim", Reason: "execution reverted: paused"})

	body, contentType := claimForm(t, false)
	rec := do(t, newServer(l, buyer, stubPredictor{value: 75}), http.MethodPost, "/claims", "operator", body, contentType)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	resp := decode(t, rec)
	assert.Equal(t, "SUBMITTED_UNAPPROVED", resp["state"])
	assert.NotEmpty(t, resp["claim_id"])
	assert.Contains(t, resp["error"], "paused")
}

func TestSubmitClaim_Rejections(t *testing.T) {
	l := ledgertest.New()
	router := newServer(l, buyer, stubPredictor{value: 75})

	body, contentType := claimForm(t, true)
	rec := do(t, router, http.MethodPost, "/claims", "operator", body, contentType)
	assert.Equal(t, http.StatusForbidden, rec.Code, "unregistered organization")

	rec = do(t, router, http.MethodPost, "/claims", "operator", []byte("acres=abc"), "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, l.Calls("submitClaim"))
}

func TestOrganizationsAndMedia(t *testing.T) {
	l := ledgertest.New()
	l.Register(buyer, "Green Acres", "QmLogo", whole(t, 5))
	l.Register(seller, "Missing Logo", "QmMissing", whole(t, 0))
	router := newServer(l, buyer, stubPredictor{})

	rec := do(t, router, http.MethodGet, "/organizations", "viewer", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode(t, rec)["items"].([]any)
	require.Len(t, items, 2)
	first := items[0].(map[string]any)
	assert.Equal(t, "Green Acres", first["name"])
	assert.Equal(t, "5", first["balance"])
	assert.Equal(t, "/media/QmLogo", first["photo_url"])
	assert.Equal(t, false, items[1].(map[string]any)["has_photo"])

	rec = do(t, router, http.MethodGet, "/media/QmLogo", "viewer", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	rec = do(t, router, http.MethodGet, "/media/QmMissing", "viewer", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClaimEndpointsWithoutJournal(t *testing.T) {
	router := newServer(ledgertest.New(), buyer, stubPredictor{})

	rec := do(t, router, http.MethodGet, "/claims/unapproved", "viewer", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(t, rec)["items"])

	rec = do(t, router, http.MethodGet, "/claims/submissions/not-a-uuid/receipt", "viewer", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/claims/submissions/00000000-0000-0000-0000-000000000001/receipt", "viewer", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWritesAreAttributedToTheCaller(t *testing.T) {
	l := ledgertest.New()
	l.Register(buyer, "Buyer Org", "", whole(t, 0))
	l.Register(seller, "Seller Org", "", whole(t, 100))
	var logs bytes.Buffer
	router := newServerWithLog(l, buyer, stubPredictor{}, zerolog.New(&logs))

	rec := postJSON(t, router, "/requests", "operator", map[string]any{"seller": seller.Hex(), "amount": 5})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(logs.Bytes()), []byte("\n")) {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry))
		if entry["message"] == "borrow request created" {
			created = entry
		}
	}
	require.NotNil(t, created, logs.String())
	assert.Equal(t, "u1", created["actor"])
}
