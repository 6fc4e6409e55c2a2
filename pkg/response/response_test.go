package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-api/internal/models"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
)

func testContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, w
}

func TestJSONTypedNilIsNull(t *testing.T) {
	c, w := testContext()
	var snapshot *models.WidgetSnapshot
	JSON(c, http.StatusOK, snapshot, nil)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.JSONEq(t, "null", string(body["data"]))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestErrorUsesAppErrorStatus(t *testing.T) {
	c, w := testContext()
	Error(c, appErrors.Clone(appErrors.ErrConflict, "duplicate cross reference"))

	assert.Equal(t, http.StatusConflict, w.Code)
	var body Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	assert.Equal(t, "duplicate cross reference", body.Error.Message)
	assert.Nil(t, body.Data)
}

func TestAttachment(t *testing.T) {
	c, w := testContext()
	Attachment(c, "timetable_Week A.csv", "text/csv", []byte("Day,Time\n"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="timetable_Week A.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, "Day,Time\n", w.Body.String())
}

func TestEventStreamHeaders(t *testing.T) {
	c, w := testContext()
	EventStream(c)

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no", w.Header().Get("X-Accel-Buffering"))
}
