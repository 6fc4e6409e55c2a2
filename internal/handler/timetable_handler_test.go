package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-api/internal/dto"
	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/internal/service"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
)

func sampleTimetable() models.Timetable {
	return models.Timetable{ID: "tt", Name: "Week", NumberOfDays: 1, StartingDay: models.Monday, StartTime: 8, EndTime: 10}
}

func sampleView() *models.TimetableView {
	t := sampleTimetable()
	return &models.TimetableView{
		Timetable:    t,
		Days:         t.Days(),
		PeriodStarts: t.PeriodStarts(),
		Schedules: [][]models.Schedule{{
			{DayOfWeek: models.Monday, StartTime: 8, PeriodSpan: 2, Content: models.VacantContent{}},
		}},
	}
}

type timetableServiceStub struct {
	created  service.TimetableRequest
	updated  service.TimetableRequest
	getErr   error
	viewErr  error
	streamed []*models.TimetableView
}

func (s *timetableServiceStub) List(ctx context.Context, filter models.TimetableFilter) ([]models.Timetable, *models.Pagination, error) {
	return []models.Timetable{sampleTimetable()}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, nil
}

func (s *timetableServiceStub) Get(ctx context.Context, id string) (*models.Timetable, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	t := sampleTimetable()
	return &t, nil
}

func (s *timetableServiceStub) Create(ctx context.Context, req service.TimetableRequest) (*models.Timetable, error) {
	s.created = req
	t := sampleTimetable()
	return &t, nil
}

func (s *timetableServiceStub) UpdateLayout(ctx context.Context, id string, req service.TimetableRequest) (*models.Timetable, error) {
	s.updated = req
	t := sampleTimetable()
	return &t, nil
}

func (s *timetableServiceStub) View(ctx context.Context, id string) (*models.TimetableView, error) {
	if s.viewErr != nil {
		return nil, s.viewErr
	}
	return sampleView(), nil
}

func (s *timetableServiceStub) Watch(ctx context.Context, id string, onErr func(error)) <-chan *models.TimetableView {
	out := make(chan *models.TimetableView, len(s.streamed))
	for _, v := range s.streamed {
		out <- v
	}
	close(out)
	return out
}

type sessionEditorStub struct {
	timetableID string
	req         service.SetSessionsRequest
	err         error
}

func (s *sessionEditorStub) SetContent(ctx context.Context, timetableID string, req service.SetSessionsRequest) error {
	s.timetableID = timetableID
	s.req = req
	return s.err
}

type timetableDeleterStub struct{}

func (timetableDeleterStub) DeleteTimetable(ctx context.Context, id string) (*models.TimetableDeletion, error) {
	return &models.TimetableDeletion{Timetable: sampleTimetable()}, nil
}

type exporterStub struct {
	format service.ExportFormat
}

func (s *exporterStub) Export(ctx context.Context, timetableID string, format service.ExportFormat) (*service.ExportResult, error) {
	s.format = format
	if format == "docx" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	return &service.ExportResult{Filename: "timetable_Week.csv", ContentType: "text/csv", Payload: []byte("Period,MONDAY\n")}, nil
}

type timetableFixture struct {
	timetables *timetableServiceStub
	sessions   *sessionEditorStub
	exports    *exporterStub
	router     http.Handler
}

func newTimetableFixture() *timetableFixture {
	f := &timetableFixture{
		timetables: &timetableServiceStub{},
		sessions:   &sessionEditorStub{},
		exports:    &exporterStub{},
	}
	h := NewTimetableHandler(f.timetables, f.sessions, timetableDeleterStub{}, f.exports, nil)
	r := newTestRouter()
	r.GET("/timetables", h.List)
	r.POST("/timetables", h.Create)
	r.GET("/timetables/:id", h.Get)
	r.PUT("/timetables/:id", h.Update)
	r.DELETE("/timetables/:id", h.Delete)
	r.GET("/timetables/:id/schedule", h.Schedule)
	r.GET("/timetables/:id/stream", h.Stream)
	r.PUT("/timetables/:id/sessions", h.SetSessions)
	r.GET("/timetables/:id/export", h.Export)
	f.router = r
	return f
}

func TestTimetableHandlerCreateDecodesLayout(t *testing.T) {
	f := newTimetableFixture()
	body := `{"name":"Week","number_of_days":5,"starting_day":"MONDAY","start_time":"08:00","end_time":"16:00"}`

	w := performRequest(f.router, http.MethodPost, "/timetables", body)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, models.HourOfDay(8), f.timetables.created.StartTime)
	assert.Equal(t, models.HourOfDay(16), f.timetables.created.EndTime)
	assert.Equal(t, models.Monday, f.timetables.created.StartingDay)

	w = performRequest(f.router, http.MethodPut, "/timetables/tt", `{"name":"Week","number_of_days":2,"starting_day":"MONDAY","start_time":"25:00","end_time":"16:00"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTimetableHandlerSchedule(t *testing.T) {
	f := newTimetableFixture()

	w := performRequest(f.router, http.MethodGet, "/timetables/tt/schedule", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var view models.TimetableView
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &view))
	assert.Equal(t, []models.DayOfWeek{models.Monday}, view.Days)
	require.Len(t, view.Schedules[0], 1)
	assert.Equal(t, 2, view.Schedules[0][0].PeriodSpan)

	f.timetables.viewErr = appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
	w = performRequest(f.router, http.MethodGet, "/timetables/tt/schedule", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTimetableHandlerSetSessions(t *testing.T) {
	f := newTimetableFixture()
	body := `{"day_of_week":"MONDAY","start_time":"08:00","period_span":2,"content":{"kind":"SUBJECT","cross_ref_id":"r1"}}`

	w := performRequest(f.router, http.MethodPut, "/timetables/tt/sessions", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tt", f.sessions.timetableID)
	assert.Equal(t, 2, f.sessions.req.PeriodSpan)
	assert.Equal(t, models.SessionKindSubject, f.sessions.req.Content.Kind)

	f.sessions.err = appErrors.Clone(appErrors.ErrValidation, "span outside the grid")
	w = performRequest(f.router, http.MethodPut, "/timetables/tt/sessions", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTimetableHandlerDelete(t *testing.T) {
	f := newTimetableFixture()

	w := performRequest(f.router, http.MethodDelete, "/timetables/tt", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body dto.DeletionResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &body))
	assert.Equal(t, "tt", body.Deleted)
	assert.Equal(t, models.UndoKindTimetableDeleted, body.Undo.Type)
	require.NotNil(t, body.Undo.Timetable)
}

func TestTimetableHandlerExport(t *testing.T) {
	f := newTimetableFixture()

	w := performRequest(f.router, http.MethodGet, "/timetables/tt/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.ExportFormatCSV, f.exports.format)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "timetable_Week.csv")
	assert.Equal(t, "Period,MONDAY\n", w.Body.String())

	w = performRequest(f.router, http.MethodGet, "/timetables/tt/export?format=docx", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type closeNotifyingRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *closeNotifyingRecorder) CloseNotify() <-chan bool {
	return r.closed
}

func TestTimetableHandlerStream(t *testing.T) {
	f := newTimetableFixture()
	f.timetables.streamed = []*models.TimetableView{sampleView(), sampleView()}

	req := httptest.NewRequest(http.MethodGet, "/timetables/tt/stream", nil)
	w := &closeNotifyingRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool, 1)}
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, 2, strings.Count(w.Body.String(), "event:schedule"))

	f.timetables.getErr = appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
	rec := performRequest(f.router, http.MethodGet, "/timetables/missing/stream", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
