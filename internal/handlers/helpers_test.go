package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inventory-service/internal/ledger"
	"inventory-service/internal/models"
	"inventory-service/internal/repository"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testContext(query string) (*gin.Context, *httptest.ResponseRecorder) {
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest(http.MethodGet, "/test"+query, nil)
	return c, recorder
}

func decodeError(t *testing.T, recorder *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	return resp
}

func TestWriteErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", repository.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"insufficient stock", repository.ErrInsufficientStock, http.StatusConflict, "INSUFFICIENT_STOCK"},
		{"version conflict", repository.ErrVersionConflict, http.StatusConflict, "CONFLICT"},
		{"invalid movement", ledger.ErrInvalidMovement, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"string match is not enough", errors.New("wrap: " + repository.ErrNotFound.Error()), http.StatusInternalServerError, "PERSISTENCE_FAILURE"},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError, "PERSISTENCE_FAILURE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, recorder := testContext("")
			writeError(c, tt.err)

			assert.Equal(t, tt.wantStatus, recorder.Code)
			resp := decodeError(t, recorder)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestWriteErrorPreservesWrappedSentinels(t *testing.T) {
	c, recorder := testContext("")
	writeError(c, errors.Join(errors.New("loading item"), repository.ErrNotFound))

	assert.Equal(t, http.StatusNotFound, recorder.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, recorder).Error.Code)
}

func TestParseIDParam(t *testing.T) {
	id := uuid.New()
	c, _ := testContext("")
	c.Params = gin.Params{{Key: "id", Value: id.String()}}

	parsed, ok := parseIDParam(c, "id")
	require.True(t, ok)
	assert.Equal(t, id, parsed)

	c, recorder := testContext("")
	c.Params = gin.Params{{Key: "id", Value: "not-a-uuid"}}
	_, ok = parseIDParam(c, "id")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "INVALID_ID", decodeError(t, recorder).Error.Code)
}

func TestParsePagination(t *testing.T) {
	c, _ := testContext("?page=2&limit=25")
	page, limit := parsePagination(c)
	assert.Equal(t, 2, page)
	assert.Equal(t, 25, limit)

	c, _ = testContext("")
	page, limit = parsePagination(c)
	assert.Zero(t, page)
	assert.Zero(t, limit)

	c, _ = testContext("?page=-1&limit=500")
	page, limit = parsePagination(c)
	assert.Zero(t, page, "negative pages are ignored")
	assert.Zero(t, limit, "limits above 100 are ignored")
}

func TestPaginationMeta(t *testing.T) {
	assert.Nil(t, paginationMeta(0, 0, 10), "unpaginated requests carry no meta")

	meta := paginationMeta(2, 25, 51)
	require.NotNil(t, meta)
	assert.Equal(t, 2, meta.Page)
	assert.Equal(t, int64(51), meta.TotalItems)
	assert.Equal(t, 3, meta.TotalPages)

	assert.Equal(t, 2, paginationMeta(1, 25, 50).TotalPages)
}

func TestActorFrom(t *testing.T) {
	c, _ := testContext("")
	assert.Equal(t, "system", actorFrom(c))

	c.Set("user_id", "user-7")
	assert.Equal(t, "user-7", actorFrom(c))
}
