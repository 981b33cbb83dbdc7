package rest

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/zlnvch/easel/api/response"
	blobmocks "github.com/zlnvch/easel/blob/mocks"
	cachemocks "github.com/zlnvch/easel/cache/mocks"
	"github.com/zlnvch/easel/models"
	"github.com/zlnvch/easel/service"
	"github.com/zlnvch/easel/store"
	storemocks "github.com/zlnvch/easel/store/mocks"
)

const (
	testUserId   = "018f0000-0000-7000-8000-000000000001"
	testCanvasId = "018f0000-0000-7000-8000-0000000000c1"
)

var testUser = models.User{Id: testUserId, Email: "owner@example.com", Name: "Owner", Provider: "github", ProviderId: "1"}

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router *gin.Engine
	store  *storemocks.MockStore
	blobs  *blobmocks.MockBlobStore
	token  string
}

func setupRouter(t *testing.T, limiter *RateLimiter) testEnv {
	mockStore := new(storemocks.MockStore)
	mockBlobs := new(blobmocks.MockBlobStore)
	mockCache := new(cachemocks.MockCache)
	mockCache.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	svc, err := service.NewService(mockStore, mockBlobs, mockCache, nil, nil, nil, nil,
		[]byte("0123456789abcdef0123456789abcdef"), service.DefaultOptions())
	require.NoError(t, err)

	token, err := svc.CreateJWT(testUser)
	require.NoError(t, err)
	mockStore.On("GetUser", mock.Anything, testUser.Provider, testUser.ProviderId).Return(testUser, nil).Maybe()

	router := gin.New()
	router.Use(Recovery(), RequestLogger(nil), CORS(""))

	h := NewHandler(svc)
	h.RegisterPublic(&router.RouterGroup)

	protected := router.Group("", Authenticate(svc))
	var uploads gin.HandlerFunc
	if limiter != nil {
		protected.Use(limiter.General())
		uploads = limiter.Uploads()
	}
	h.RegisterProtected(protected, uploads)

	return testEnv{router: router, store: mockStore, blobs: mockBlobs, token: token}
}

func (e testEnv) do(method string, path string, body string, authenticated bool) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if authenticated {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) response.Response[json.RawMessage] {
	t.Helper()
	var body response.Response[json.RawMessage]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func TestAuthenticate_MissingToken(t *testing.T) {
	env := setupRouter(t, nil)

	w := env.do(http.MethodGet, "/me", "", false)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, response.Unauthorized, decodeEnvelope(t, w).Code)
}

func TestAuthenticate_InvalidToken(t *testing.T) {
	env := setupRouter(t, nil)
	env.token = "not-a-jwt"

	w := env.do(http.MethodGet, "/me", "", true)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, response.InvalidToken, decodeEnvelope(t, w).Code)
}

func TestBearerToken(t *testing.T) {
	token, ok := bearerToken("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	token, ok = bearerToken("bearer   abc ")
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	_, ok = bearerToken("Basic abc")
	assert.False(t, ok)
	_, ok = bearerToken("Bearer ")
	assert.False(t, ok)
	_, ok = bearerToken("")
	assert.False(t, ok)
}

func TestHandleMe(t *testing.T) {
	env := setupRouter(t, nil)

	w := env.do(http.MethodGet, "/me", "", true)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeEnvelope(t, w)
	assert.Equal(t, response.OK, body.Code)
	var user models.User
	require.NoError(t, json.Unmarshal(body.Data, &user))
	assert.Equal(t, testUserId, user.Id)
}

func TestHandleLogin_Validation(t *testing.T) {
	env := setupRouter(t, nil)

	w := env.do(http.MethodPost, "/login", `{"provider":"gitlab","code":"x"}`, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "provider must be github or google", decodeEnvelope(t, w).Msg)

	w = env.do(http.MethodPost, "/login", `{"provider":"github"}`, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "code is required", decodeEnvelope(t, w).Msg)
}

func TestHandleCreateCanvas(t *testing.T) {
	env := setupRouter(t, nil)
	env.store.On("CreateCanvas", mock.Anything, mock.MatchedBy(func(c models.Canvas) bool {
		return c.OwnerId == testUserId && c.Name == "Sketch" && c.Version == 1
	})).Return(models.Canvas{Id: testCanvasId, OwnerId: testUserId, Name: "Sketch", Version: 1}, nil).Once()

	w := env.do(http.MethodPost, "/canvases", `{"name":"Sketch","documentData":{"elements":[]}}`, true)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var canvas models.Canvas
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &canvas))
	assert.Equal(t, testCanvasId, canvas.Id)
	assert.Equal(t, 1, canvas.Version)
	env.store.AssertExpectations(t)
}

func TestHandleCreateCanvas_InvalidDocument(t *testing.T) {
	env := setupRouter(t, nil)

	w := env.do(http.MethodPost, "/canvases", `{"name":"Sketch","documentData":[1,2]}`, true)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.InvalidRequest, decodeEnvelope(t, w).Code)
	env.store.AssertNotCalled(t, "CreateCanvas", mock.Anything, mock.Anything)
}

func TestHandleLoadCanvas_NotFound(t *testing.T) {
	env := setupRouter(t, nil)
	env.store.On("GetCanvasAccess", mock.Anything, testCanvasId, testUserId).
		Return(models.Canvas{}, (*models.CanvasShare)(nil), store.ErrItemNotFound)

	w := env.do(http.MethodGet, "/canvases/"+testCanvasId, "", true)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, response.NotFound, decodeEnvelope(t, w).Code)
}

func TestHandleSaveCanvas_ViewerForbidden(t *testing.T) {
	env := setupRouter(t, nil)
	canvas := models.Canvas{Id: testCanvasId, OwnerId: "someone-else", Version: 4}
	share := &models.CanvasShare{CanvasId: testCanvasId, GranteeUserId: testUserId, Level: models.PermissionView}
	env.store.On("GetCanvasAccess", mock.Anything, testCanvasId, testUserId).Return(canvas, share, nil)

	w := env.do(http.MethodPut, "/canvases/"+testCanvasId, `{"documentData":{"a":1}}`, true)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, response.PermissionDenied, decodeEnvelope(t, w).Code)
	env.store.AssertNotCalled(t, "SaveCanvas", mock.Anything, mock.Anything)
}

func TestHandleListCanvases_InternalErrorIsOpaque(t *testing.T) {
	env := setupRouter(t, nil)
	env.store.On("ListCanvases", mock.Anything, testUserId, 0, 20).
		Return([]models.Canvas(nil), int64(0), errors.New("connection refused"))

	w := env.do(http.MethodGet, "/canvases?page=1&perPage=20", "", true)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeEnvelope(t, w)
	assert.Equal(t, response.InternalError, body.Code)
	assert.NotContains(t, body.Msg, "connection refused")
}

func TestHandleListCanvases_BadQuery(t *testing.T) {
	env := setupRouter(t, nil)

	w := env.do(http.MethodGet, "/canvases?page=abc", "", true)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleRequestUpload_BindingMessages(t *testing.T) {
	env := setupRouter(t, nil)

	w := env.do(http.MethodPost, "/canvases/"+testCanvasId+"/assets/uploads", `{"fileName":"a.png","fileType":"image/png"}`, true)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "fileSize is required", decodeEnvelope(t, w).Msg)
	env.blobs.AssertNotCalled(t, "PresignPut", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleCleanupAssets_AbortedIsSuccess(t *testing.T) {
	env := setupRouter(t, nil)
	canvas := models.Canvas{
		Id:           testCanvasId,
		OwnerId:      testUserId,
		Version:      3,
		DocumentData: json.RawMessage(`{"elements":[]}`),
	}
	old := time.Now().Add(-time.Hour)
	env.store.On("GetCanvasAccess", mock.Anything, testCanvasId, testUserId).Return(canvas, (*models.CanvasShare)(nil), nil)
	env.store.On("GetCanvas", mock.Anything, testCanvasId).Return(canvas, nil)
	env.store.On("ListAssets", mock.Anything, testCanvasId).Return([]models.CanvasAsset{
		{Id: "a1", CanvasId: testCanvasId, ExternalAssetId: "f1", StorageKey: "k1", Created: old},
	}, nil)
	env.store.On("DeleteAssetsIfVersion", mock.Anything, testCanvasId, 3, []string{"a1"}).
		Return([]models.CanvasAsset(nil), store.ErrConditionFailed)

	w := env.do(http.MethodPost, "/canvases/"+testCanvasId+"/assets/cleanup", "", true)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result service.CleanupResult
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &result))
	assert.True(t, result.Aborted)
	assert.Empty(t, result.Deleted)
	env.blobs.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestHandleShareCanvas_InvalidEmail(t *testing.T) {
	env := setupRouter(t, nil)

	w := env.do(http.MethodPut, "/canvases/"+testCanvasId+"/shares", `{"granteeEmail":"nope","permissionLevel":"EDIT"}`, true)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "granteeEmail must be an email address", decodeEnvelope(t, w).Msg)
}

func TestCORS_Preflight(t *testing.T) {
	env := setupRouter(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/canvases", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestRateLimiter_General(t *testing.T) {
	limiter := NewRateLimiter(RateLimiterConfig{
		GeneralRate:  rate.Limit(0.5),
		GeneralBurst: 1,
		UploadRate:   rate.Limit(1),
		UploadBurst:  1,
	})
	defer limiter.Stop()
	env := setupRouter(t, limiter)

	first := env.do(http.MethodGet, "/me", "", true)
	second := env.do(http.MethodGet, "/me", "", true)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "2", second.Header().Get("Retry-After"))
	assert.Equal(t, response.TooManyRequests, decodeEnvelope(t, second).Code)
	assert.Equal(t, 1, limiter.general.len())
}

func TestRateLimiter_EvictIdle(t *testing.T) {
	set := newLimiterSet("general", rate.Limit(1), 1)
	set.get("a")
	set.get("b")
	set.limiters["a"].lastAccess = time.Now().Add(-time.Hour)

	set.evictIdle(time.Now(), time.Minute)

	assert.Equal(t, 1, set.len())
	_, ok := set.limiters["b"]
	assert.True(t, ok)
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 1, retryAfterSeconds(rate.Limit(10)))
	assert.Equal(t, 2, retryAfterSeconds(rate.Limit(30.0/60.0)))
	assert.Equal(t, 60, retryAfterSeconds(0))
}
