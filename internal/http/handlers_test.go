package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lawvriksh/referral-engine/internal/engine"
	"github.com/lawvriksh/referral-engine/internal/models"
	"github.com/lawvriksh/referral-engine/internal/rank"
	"github.com/lawvriksh/referral-engine/internal/repository/memory"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*gin.Engine, *engine.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetOutput(io.Discard)
	eng := engine.New(memory.New(), models.DefaultRewardTable(), rank.FirstToReach, 32*24*time.Hour, log)
	return Router(eng, log), eng
}

func syncUser(t *testing.T, r *gin.Engine, id, name string) {
	t.Helper()
	body := `{"id":"` + id + `","name":"` + name + `"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/users", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func postShare(r *gin.Engine, userID, platform string) *httptest.ResponseRecorder {
	body := `{"userId":"` + userID + `","platform":"` + platform + `"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/shares", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestPostShare(t *testing.T) {
	r, _ := newTestRouter(t)
	syncUser(t, r, "alice", "Alice")

	w := postShare(r, "alice", "linkedin")
	require.Equal(t, http.StatusOK, w.Code)

	var res models.ShareResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.Rewarded)
	assert.Equal(t, 75, res.PointsAwarded)
	assert.Equal(t, 75, res.NewTotal)

	// Retry is safe: same key, no double reward.
	w = postShare(r, "alice", "linkedin")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.False(t, res.Rewarded)
	assert.Equal(t, 75, res.NewTotal)
}

func TestPostShareInvalidPlatform(t *testing.T) {
	r, _ := newTestRouter(t)
	syncUser(t, r, "alice", "Alice")

	w := postShare(r, "alice", "myspace")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPostShareUnknownUser(t *testing.T) {
	r, _ := newTestRouter(t)

	w := postShare(r, "ghost", "facebook")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPostShareMalformedBody(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/shares", strings.NewReader(`{"userId":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetLeaderboard(t *testing.T) {
	r, _ := newTestRouter(t)
	syncUser(t, r, "alice", "Alice")
	syncUser(t, r, "bob", "Bob")
	postShare(r, "bob", "linkedin")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/leaderboard?page=1&limit=10", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var page models.LeaderboardPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Entries, 2)
	assert.Equal(t, "Bob", page.Entries[0].Name)
	assert.Equal(t, 75, page.Entries[0].Points)
	assert.Equal(t, 1, page.Entries[0].SharesCount)
	assert.Equal(t, models.Pagination{Page: 1, Limit: 10, Total: 2, Pages: 1}, page.Pagination)
}

func TestGetLeaderboardBadPagination(t *testing.T) {
	r, _ := newTestRouter(t)

	for _, query := range []string{"page=0", "limit=0", "limit=101", "page=abc"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/leaderboard?"+query, nil)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, "query %q", query)
	}
}

func TestGetAroundMe(t *testing.T) {
	r, _ := newTestRouter(t)
	syncUser(t, r, "alice", "Alice")
	syncUser(t, r, "bob", "Bob")
	postShare(r, "alice", "twitter")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/leaderboard/around-me?userId=bob&radius=2", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var view models.AroundMeView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	require.Len(t, view.Entries, 2)
	assert.True(t, view.Entries[1].IsCurrentUser)
	assert.Equal(t, 2, view.Stats.Rank)
	assert.Equal(t, 25, view.Stats.PointsToNextRank)
}

func TestGetAroundMeRequiresUserID(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/leaderboard/around-me", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetTopPerformers(t *testing.T) {
	r, _ := newTestRouter(t)
	syncUser(t, r, "alice", "Alice")
	postShare(r, "alice", "whatsapp")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/leaderboard/top-performers?period=daily&limit=5", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var view models.TopPerformersView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, models.PeriodDaily, view.Period)
	require.Len(t, view.Entries, 1)
	assert.Equal(t, 30, view.Entries[0].PointsGained)
	assert.Equal(t, 1, view.Stats.ActiveUsers)
}

func TestGetTopPerformersBadPeriod(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/leaderboard/top-performers?period=quarterly", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
