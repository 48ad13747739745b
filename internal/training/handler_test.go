package training

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cragclub/backend/internal/telemetry/metrics"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/golang/mock/gomock"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handlerTestSetup struct {
	router   *mux.Router
	repoMock *MocksessionsRepo
	tracker  *Tracker
}

func newHandlerTestSetup(t *testing.T) *handlerTestSetup {
	t.Helper()

	ctrl := gomock.NewController(t)
	repoMock := NewMocksessionsRepo(ctrl)

	tracker := NewTracker(repoMock, metrics.NewTestManager())
	t.Cleanup(tracker.Close)

	router := mux.NewRouter()
	NewHandler(tracker).SetupRoutes(router)

	return &handlerTestSetup{
		router:   router,
		repoMock: repoMock,
		tracker:  tracker,
	}
}

func (s *handlerTestSetup) request(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func TestHandler_SessionFlow(t *testing.T) {
	setup := newHandlerTestSetup(t)
	user := gofakeit.Username()

	setup.repoMock.EXPECT().List(gomock.Any(), user).Return([]Session{}, nil)
	setup.repoMock.EXPECT().Save(gomock.Any(), user, gomock.Any()).Return(nil).AnyTimes()

	// nothing open yet
	rr := setup.request("GET", fmt.Sprintf("/training/%s/session/current", user), "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = setup.request("POST", fmt.Sprintf("/training/%s/session/start", user), "")
	require.Equal(t, http.StatusCreated, rr.Code)
	var started Session
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &started))
	assert.NotEmpty(t, started.ID)
	assert.True(t, started.IsOpen())

	// a second start is rejected
	rr = setup.request("POST", fmt.Sprintf("/training/%s/session/start", user), "")
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = setup.request(
		"POST", fmt.Sprintf("/training/%s/climb", user),
		`{"grade": "5.10a", "durationMinutes": 10, "numberOfTakes": 1}`,
	)
	require.Equal(t, http.StatusCreated, rr.Code)
	var climb Climb
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &climb))
	assert.Equal(t, "5.10a", climb.Grade)

	rr = setup.request(
		"PUT", fmt.Sprintf("/training/%s/climb/%s", user, climb.ID),
		`{"numberOfTakes": 2}`,
	)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = setup.request(
		"PUT", fmt.Sprintf("/training/%s/climb/unknown-climb", user),
		`{"numberOfTakes": 2}`,
	)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = setup.request(
		"POST", fmt.Sprintf("/training/%s/session/end", user),
		`{"workoutMetrics": {"maxHangTime": 10, "maxPullUps": 5, "maxLockoff": 5}, "recoveryFeeling": 4}`,
	)
	require.Equal(t, http.StatusOK, rr.Code)
	var endResp EndSessionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &endResp))
	assert.False(t, endResp.Session.IsOpen())
	require.NotNil(t, endResp.Session.SII)
	assert.Positive(t, *endResp.Session.SII)
	assert.Equal(t, "Moderate", endResp.Intensity)

	// no open session anymore
	rr = setup.request("POST", fmt.Sprintf("/training/%s/session/end", user), "")
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = setup.request("GET", fmt.Sprintf("/training/%s/sessions", user), "")
	require.Equal(t, http.StatusOK, rr.Code)
	var listResp ListSessionsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listResp))
	assert.Equal(t, 1, listResp.Total)
}

func TestHandler_AddClimb_NoOpenSession(t *testing.T) {
	setup := newHandlerTestSetup(t)
	user := gofakeit.Username()

	setup.repoMock.EXPECT().List(gomock.Any(), user).Return([]Session{}, nil)

	rr := setup.request(
		"POST", fmt.Sprintf("/training/%s/climb", user),
		`{"grade": "5.10a", "durationMinutes": 10, "numberOfTakes": 1}`,
	)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestHandler_AddClimb_InvalidParams(t *testing.T) {
	setup := newHandlerTestSetup(t)
	user := gofakeit.Username()

	setup.repoMock.EXPECT().List(gomock.Any(), user).Return([]Session{}, nil).AnyTimes()
	setup.repoMock.EXPECT().Save(gomock.Any(), user, gomock.Any()).Return(nil).AnyTimes()

	rr := setup.request("POST", fmt.Sprintf("/training/%s/session/start", user), "")
	require.Equal(t, http.StatusCreated, rr.Code)

	for name, body := range map[string]string{
		"empty grade":       `{"grade": "", "durationMinutes": 10}`,
		"zero duration":     `{"grade": "5.10a", "durationMinutes": 0}`,
		"negative duration": `{"grade": "5.10a", "durationMinutes": -5}`,
		"negative takes":    `{"grade": "5.10a", "durationMinutes": 10, "numberOfTakes": -1}`,
	} {
		t.Run(name, func(t *testing.T) {
			rr := setup.request("POST", fmt.Sprintf("/training/%s/climb", user), body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestHandler_RejectsNonJSONBody(t *testing.T) {
	setup := newHandlerTestSetup(t)
	user := gofakeit.Username()

	setup.repoMock.EXPECT().List(gomock.Any(), user).Return([]Session{}, nil).AnyTimes()
	setup.repoMock.EXPECT().Save(gomock.Any(), user, gomock.Any()).Return(nil).AnyTimes()

	rr := setup.request("POST", fmt.Sprintf("/training/%s/session/start", user), "")
	require.Equal(t, http.StatusCreated, rr.Code)

	for name, target := range map[string]struct {
		method string
		path   string
	}{
		"add climb":    {method: "POST", path: fmt.Sprintf("/training/%s/climb", user)},
		"update climb": {method: "PUT", path: fmt.Sprintf("/training/%s/climb/some-climb", user)},
		"end session":  {method: "POST", path: fmt.Sprintf("/training/%s/session/end", user)},
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(target.method, target.path, strings.NewReader("grade=5.10a"))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rr := httptest.NewRecorder()
			setup.router.ServeHTTP(rr, req)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestHandler_EndSession_InvalidRecoveryFeeling(t *testing.T) {
	setup := newHandlerTestSetup(t)
	user := gofakeit.Username()

	setup.repoMock.EXPECT().List(gomock.Any(), user).Return([]Session{}, nil)
	setup.repoMock.EXPECT().Save(gomock.Any(), user, gomock.Any()).Return(nil).AnyTimes()

	rr := setup.request("POST", fmt.Sprintf("/training/%s/session/start", user), "")
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = setup.request(
		"POST", fmt.Sprintf("/training/%s/session/end", user),
		`{"recoveryFeeling": 6}`,
	)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandler_DeleteSession(t *testing.T) {
	setup := newHandlerTestSetup(t)
	user := gofakeit.Username()

	sii := 1.3
	closed := closedSession(gofakeit.Date(), []string{"5.10a"}, &WorkoutMetrics{MaxHangTime: 10})
	closed.ID = "s1"
	closed.SII = &sii

	setup.repoMock.EXPECT().List(gomock.Any(), user).Return([]Session{closed}, nil)
	setup.repoMock.EXPECT().Delete(gomock.Any(), user, "s1").Return(nil)

	rr := setup.request("DELETE", fmt.Sprintf("/training/%s/session/s1", user), "")
	require.Equal(t, http.StatusOK, rr.Code)
	var deleteResp DeleteSessionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &deleteResp))
	assert.Equal(t, "s1", deleteResp.DeletedID)

	rr = setup.request("DELETE", fmt.Sprintf("/training/%s/session/s1", user), "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandler_Recommendation_NewUser(t *testing.T) {
	setup := newHandlerTestSetup(t)
	user := gofakeit.Username()

	setup.repoMock.EXPECT().List(gomock.Any(), user).Return([]Session{}, nil)

	rr := setup.request("GET", fmt.Sprintf("/training/%s/recommendation", user), "")
	require.Equal(t, http.StatusOK, rr.Code)

	var rec RecoveryRecommendation
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	assert.Equal(t, 1, rec.RecommendedRestDays)
	assert.Equal(t, ConfidenceLow, rec.ConfidenceLevel)
}

func TestHandler_RepoLoadError(t *testing.T) {
	setup := newHandlerTestSetup(t)
	user := gofakeit.Username()

	setup.repoMock.EXPECT().List(gomock.Any(), user).Return(nil, assert.AnError)

	rr := setup.request("POST", fmt.Sprintf("/training/%s/session/start", user), "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
