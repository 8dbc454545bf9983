package asset

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediastore/internal/domain/chat"
	"mediastore/internal/middleware"
	"mediastore/internal/pkg/jwt"
	"mediastore/internal/pkg/logger"
)

type httpEnv struct {
	*testEnv
	router *gin.Engine
	jwt    *jwt.Service
}

func newHTTPEnv(t *testing.T) *httpEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	env := newTestEnv(t, 15, nil)
	jwtService := jwt.New("test-secret", time.Hour)

	h := NewHandler(env.service, Limits{RawMaxBytes: 1 << 10, InlineMaxBytes: 4 << 10}, logger.NewNop())
	router := gin.New()
	api := router.Group("/api/v1")
	RegisterRoutes(api, h, middleware.JWTAuth(jwtService), middleware.OptionalJWTAuth(jwtService))

	return &httpEnv{testEnv: env, router: router, jwt: jwtService}
}

func (e *httpEnv) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := e.jwt.GenerateToken(userID, e.tenant)
	require.NoError(t, err)
	return tok
}

func (e *httpEnv) do(t *testing.T, method, path, userID string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(t, userID))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *httpEnv) doJSON(t *testing.T, method, path, userID string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	return e.do(t, method, path, userID, bytes.NewReader(b), "application/json")
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func (e *httpEnv) ingestHTTP(t *testing.T, userID, source string) IngestResult {
	t.Helper()
	convID, msgID := e.seedMessage(t, userID)
	w := e.doJSON(t, http.MethodPost, "/api/v1/assets", userID, gin.H{
		"conversation_id": convID,
		"message_id":      msgID,
		"data_url":        pixelDataURL,
		"source_type":     source,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var res IngestResult
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &res))
	return res
}

func TestScenarioA_InlinePixel(t *testing.T) {
	env := newHTTPEnv(t)
	alice := uuid.NewString()
	convID, msgID := env.seedMessage(t, alice)

	w := env.doJSON(t, http.MethodPost, "/api/v1/assets", alice, gin.H{
		"conversation_id": convID,
		"message_id":      msgID,
		"data_url":        pixelDataURL,
		"index":           0,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var res IngestResult
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &res))
	assert.Equal(t, "image/png", res.Mime)
	assert.Positive(t, res.Bytes)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), res.SHA256)
	assert.Equal(t, env.tenant+"/"+convID+"/"+msgID+"/0_"+res.SHA256[:16]+".png", res.StorageKey)

	_, err := os.Stat(mustResolve(t, env.root, res.StorageKey))
	assert.NoError(t, err)
}

func TestScenarioA_LiteralIDsUsePlaceholders(t *testing.T) {
	env := newHTTPEnv(t)
	alice := uuid.NewString()
	ctx := context.Background()
	require.NoError(t, env.chats.CreateConversation(ctx, &chat.Conversation{ID: "C", TenantID: env.tenant, UserID: alice}))
	require.NoError(t, env.chats.CreateMessage(ctx, &chat.Message{ID: "../M", ConversationID: "C", Role: chat.RoleUser}))

	w := env.doJSON(t, http.MethodPost, "/api/v1/assets", alice, gin.H{
		"conversation_id": "C",
		"message_id":      "../M",
		"data_url":        pixelDataURL,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var res IngestResult
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &res))
	assert.Equal(t, env.tenant+"/_no_conversation/_no_message/0_"+res.SHA256[:16]+".png", res.StorageKey)
}

func TestIngestValidationErrorsAre400(t *testing.T) {
	env := newHTTPEnv(t)
	alice := uuid.NewString()

	w := env.doJSON(t, http.MethodPost, "/api/v1/assets", alice, gin.H{"data_url": pixelDataURL})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
	assert.Equal(t, "required", body.Error.Details["conversation_id"])

	w = env.doJSON(t, http.MethodPost, "/api/v1/assets", alice, gin.H{
		"conversation_id": "c", "message_id": "m", "data_url": "data:;base64,AAAA",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w).Error.Message, "mime")

	w = env.doJSON(t, http.MethodPost, "/api/v1/assets", alice, gin.H{
		"conversation_id": "c", "message_id": "m", "data_url": pixelDataURL, "index": -2,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestRequiresAuth(t *testing.T) {
	env := newHTTPEnv(t)
	w := env.doJSON(t, http.MethodPost, "/api/v1/assets", "", gin.H{"data_url": pixelDataURL})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUploadRaw(t *testing.T) {
	env := newHTTPEnv(t)
	alice := uuid.NewString()

	w := env.do(t, http.MethodPost, "/api/v1/assets/upload?source_type=post_upload&index=3", alice,
		strings.NewReader("plain text body"), "text/plain; charset=utf-8")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var res IngestResult
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &res))
	assert.Equal(t, "text/plain", res.Mime)
	assert.True(t, strings.HasSuffix(res.StorageKey, "/3_"+res.SHA256[:16]+".txt"), res.StorageKey)

	w = env.do(t, http.MethodGet, "/api/v1/assets/"+res.AssetID, alice, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "plain text body", w.Body.String())
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
}

func TestUploadRawTooLarge(t *testing.T) {
	env := newHTTPEnv(t)
	w := env.do(t, http.MethodPost, "/api/v1/assets/upload", uuid.NewString(),
		bytes.NewReader(make([]byte, 2<<10)), "application/octet-stream")
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/assets/upload", uuid.NewString(), strings.NewReader(""), "image/png")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScenarioC_Visibility(t *testing.T) {
	env := newHTTPEnv(t)
	alice, bob := uuid.NewString(), uuid.NewString()
	res := env.ingestHTTP(t, alice, "attachment")

	w := env.do(t, http.MethodGet, "/api/v1/assets/"+res.AssetID, alice, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "private, max-age=300", w.Header().Get("Cache-Control"))
	assert.Equal(t, int(res.Bytes), w.Body.Len())

	other := env.do(t, http.MethodGet, "/api/v1/assets/"+res.AssetID, bob, nil, "")
	missing := env.do(t, http.MethodGet, "/api/v1/assets/"+uuid.NewString(), bob, nil, "")
	anon := env.do(t, http.MethodGet, "/api/v1/assets/"+res.AssetID, "", nil, "")

	assert.Equal(t, http.StatusNotFound, other.Code)
	assert.Equal(t, http.StatusNotFound, missing.Code)
	assert.Equal(t, http.StatusNotFound, anon.Code)
	assert.Equal(t, missing.Body.String(), other.Body.String())
	assert.Equal(t, missing.Body.String(), anon.Body.String())
}

func TestGetWithQueryToken(t *testing.T) {
	env := newHTTPEnv(t)
	alice := uuid.NewString()
	res := env.ingestHTTP(t, alice, "attachment")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/assets/"+res.AssetID+"?token="+env.token(t, alice), nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/assets/"+res.AssetID+"?token=garbage", nil)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetRedirectsHTTPAssets(t *testing.T) {
	env := newHTTPEnv(t)
	alice := uuid.NewString()

	w := env.doJSON(t, http.MethodPost, "/api/v1/assets/link", alice, gin.H{"url": "https://cdn.example.com/cat.gif"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var res IngestResult
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &res))

	w = env.do(t, http.MethodGet, "/api/v1/assets/"+res.AssetID, "", nil, "")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://cdn.example.com/cat.gif", w.Header().Get("Location"))

	w = env.do(t, http.MethodDelete, "/api/v1/assets/"+res.AssetID, alice, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodGet, "/api/v1/assets/"+res.AssetID, "", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetaEndpoint(t *testing.T) {
	env := newHTTPEnv(t)
	alice := uuid.NewString()
	res := env.ingestHTTP(t, alice, "ai_generated")

	w := env.do(t, http.MethodGet, "/api/v1/assets/"+res.AssetID+"/meta", alice, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var row map[string]any
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &row))
	assert.Equal(t, res.AssetID, row["id"])
	assert.Equal(t, "ai_generated", row["source_type"])
	assert.NotContains(t, row, "storage_key")

	w = env.do(t, http.MethodGet, "/api/v1/assets/"+res.AssetID+"/meta", uuid.NewString(), nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFavoriteAndPinAreIdempotent(t *testing.T) {
	env := newHTTPEnv(t)
	alice, bob := uuid.NewString(), uuid.NewString()
	res := env.ingestHTTP(t, alice, "ai_generated")
	path := "/api/v1/assets/" + res.AssetID

	for i := 0; i < 2; i++ {
		w := env.doJSON(t, http.MethodPatch, path+"/favorite", alice, gin.H{"favorite": true})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		w = env.doJSON(t, http.MethodPatch, path+"/pin", alice, gin.H{"pinned": true})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	row, err := env.repo.GetByID(context.Background(), res.AssetID)
	require.NoError(t, err)
	assert.True(t, row.IsFavorite)
	assert.True(t, row.IsPinned)

	w := env.doJSON(t, http.MethodPatch, path+"/favorite", alice, gin.H{"favorite": false})
	require.Equal(t, http.StatusOK, w.Code)
	row, err = env.repo.GetByID(context.Background(), res.AssetID)
	require.NoError(t, err)
	assert.False(t, row.IsFavorite)
	assert.True(t, row.IsPinned)

	w = env.doJSON(t, http.MethodPatch, path+"/favorite", bob, gin.H{"favorite": true})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.doJSON(t, http.MethodPatch, path+"/pin", alice, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteWithMissingBlob(t *testing.T) {
	env := newHTTPEnv(t)
	alice, bob := uuid.NewString(), uuid.NewString()
	res := env.ingestHTTP(t, alice, "attachment")
	require.NoError(t, os.Remove(mustResolve(t, env.root, res.StorageKey)))

	w := env.do(t, http.MethodDelete, "/api/v1/assets/"+res.AssetID, bob, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodDelete, "/api/v1/assets/"+res.AssetID, alice, nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "deleted", decode(t, w).Message)

	_, err := env.repo.GetByID(context.Background(), res.AssetID)
	assert.ErrorIs(t, err, ErrAssetNotFound)
}

func TestDeleteRemovesFile(t *testing.T) {
	env := newHTTPEnv(t)
	alice := uuid.NewString()
	res := env.ingestHTTP(t, alice, "post_upload")
	abs := mustResolve(t, env.root, res.StorageKey)

	w := env.do(t, http.MethodDelete, "/api/v1/assets/"+res.AssetID, alice, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	_, err := os.Stat(abs)
	assert.True(t, os.IsNotExist(err))
}

func TestZipExportPartialSuccess(t *testing.T) {
	env := newHTTPEnv(t)
	alice, bob := uuid.NewString(), uuid.NewString()
	mine1 := env.ingestHTTP(t, alice, "attachment")
	mine2 := env.ingestHTTP(t, alice, "ai_generated")
	theirs := env.ingestHTTP(t, bob, "attachment")

	w := env.doJSON(t, http.MethodPost, "/api/v1/assets/zip", alice, gin.H{
		"ids": []string{mine1.AssetID, theirs.AssetID, uuid.NewString(), mine2.AssetID, mine1.AssetID},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	assert.Regexp(t, `attachment; filename="assets-\d{8}-\d{6}\.zip"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "2", w.Header().Get("X-Export-Included"))
	assert.Equal(t, "2", w.Header().Get("X-Export-Skipped"))

	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	require.NoError(t, err)
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		assert.Len(t, data, int(mine1.Bytes))
	}
	assert.ElementsMatch(t, []string{mine1.AssetID + ".png", mine2.AssetID + ".png"}, names)

	w = env.doJSON(t, http.MethodPost, "/api/v1/assets/zip", alice, gin.H{"ids": []string{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListScopesAndTotals(t *testing.T) {
	env := newHTTPEnv(t)
	alice, bob := uuid.NewString(), uuid.NewString()

	a1 := env.ingestHTTP(t, alice, "attachment")
	env.clock.Advance(time.Minute)
	a2 := env.ingestHTTP(t, alice, "ai_generated")
	env.clock.Advance(time.Minute)
	a3 := env.ingestHTTP(t, alice, "attachment")
	env.clock.Advance(time.Minute)
	b1 := env.ingestHTTP(t, bob, "attachment")
	b2 := env.ingestHTTP(t, bob, "ai_generated")
	require.NoError(t, env.db.Model(&FileAsset{}).Where("id = ?", b2.AssetID).Update("is_private", false).Error)

	type page struct {
		Items      []FileAsset `json:"items"`
		TotalBytes int64       `json:"total_bytes"`
		TotalCount int64       `json:"total_count"`
	}
	list := func(query string) page {
		w := env.do(t, http.MethodGet, "/api/v1/assets"+query, alice, nil, "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var p page
		require.NoError(t, json.Unmarshal(decode(t, w).Data, &p))
		return p
	}
	ids := func(p page) []string {
		out := make([]string, 0, len(p.Items))
		for _, it := range p.Items {
			out = append(out, it.ID)
		}
		return out
	}

	p := list("")
	assert.Equal(t, []string{a3.AssetID, a2.AssetID, a1.AssetID}, ids(p))
	assert.EqualValues(t, 3, p.TotalCount)
	assert.Equal(t, 3*a1.Bytes, p.TotalBytes)

	p = list("?limit=1&offset=1")
	assert.Equal(t, []string{a2.AssetID}, ids(p))
	assert.EqualValues(t, 3, p.TotalCount)
	assert.Equal(t, 3*a1.Bytes, p.TotalBytes)

	p = list("?source_type=attachment")
	assert.ElementsMatch(t, []string{a1.AssetID, a3.AssetID}, ids(p))

	p = list("?scope=tenant")
	assert.ElementsMatch(t, []string{a1.AssetID, a2.AssetID, a3.AssetID, b2.AssetID}, ids(p))
	assert.NotContains(t, ids(p), b1.AssetID)

	w := env.doJSON(t, http.MethodPatch, "/api/v1/assets/"+a1.AssetID+"/pin", alice, gin.H{"pinned": true})
	require.Equal(t, http.StatusOK, w.Code)
	w = env.doJSON(t, http.MethodPatch, "/api/v1/assets/"+a2.AssetID+"/favorite", alice, gin.H{"favorite": true})
	require.Equal(t, http.StatusOK, w.Code)

	p = list("")
	assert.Equal(t, []string{a1.AssetID, a3.AssetID, a2.AssetID}, ids(p))

	p = list("?favorite=true&kind=image")
	assert.Equal(t, []string{a2.AssetID}, ids(p))

	for _, bad := range []string{"?scope=world", "?kind=hologram", "?favorite=maybe", "?limit=x", "?source_type=bogus"} {
		w := env.do(t, http.MethodGet, "/api/v1/assets"+bad, alice, nil, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
	}
}

func mustResolve(t *testing.T, root *Root, key string) string {
	t.Helper()
	abs, err := root.Resolve(key)
	require.NoError(t, err)
	return abs
}

func TestIngestIntoForeignMessageIs404(t *testing.T) {
	env := newHTTPEnv(t)
	alice, bob := uuid.NewString(), uuid.NewString()
	convID, msgID := env.seedMessage(t, alice)

	w := env.doJSON(t, http.MethodPost, "/api/v1/assets", bob, gin.H{
		"conversation_id": convID,
		"message_id":      msgID,
		"data_url":        pixelDataURL,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decode(t, w).Error.Code)

	w = env.do(t, http.MethodPost, "/api/v1/assets/upload?conversation_id="+convID+"&message_id="+msgID, bob,
		strings.NewReader("payload"), "text/plain")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/assets", alice, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var page ListPage
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &page))
	assert.Zero(t, page.TotalCount)
}

func TestIngestInlineTooLarge(t *testing.T) {
	env := newHTTPEnv(t)
	alice := uuid.NewString()
	convID, msgID := env.seedMessage(t, alice)

	w := env.doJSON(t, http.MethodPost, "/api/v1/assets", alice, gin.H{
		"conversation_id": convID,
		"message_id":      msgID,
		"data_url":        "data:application/octet-stream;base64," + strings.Repeat("A", 8<<10),
	})
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code, w.Body.String())
	assert.Equal(t, "PAYLOAD_TOO_LARGE", decode(t, w).Error.Code)

	entries, err := os.ReadDir(env.root.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}
