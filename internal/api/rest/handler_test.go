package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/captvenkat/xainik-tracking/internal/domain"
	"github.com/captvenkat/xainik-tracking/internal/store"
	"github.com/captvenkat/xainik-tracking/internal/store/schema"
	"github.com/captvenkat/xainik-tracking/internal/tracking"
)

// stubPipeline records submissions and returns canned results
type stubPipeline struct {
	result      *tracking.Result
	err         error
	submissions []domain.Submission
	pixels      []domain.Submission
}

func (s *stubPipeline) Process(_ context.Context, sub domain.Submission) (*tracking.Result, error) {
	s.submissions = append(s.submissions, sub)
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubPipeline) ProcessPixel(sub domain.Submission) {
	s.pixels = append(s.pixels, sub)
}

// stubStore overrides only the read methods the handlers touch
type stubStore struct {
	store.Store
	performance []*schema.SupporterPerformance
	chains      []*schema.AttributionChain
	err         error
}

func (s *stubStore) ListSupporterPerformance(_ context.Context, _ string) ([]*schema.SupporterPerformance, error) {
	return s.performance, s.err
}

func (s *stubStore) ListAttributionChains(_ context.Context, _ string) ([]*schema.AttributionChain, error) {
	return s.chains, s.err
}

func setupTestRouter(pipeline tracking.Pipeline, s store.Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	SetupRoutes(router, NewHandler(pipeline, s))
	return router
}

func performJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "handler-test")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSubmitEvent(t *testing.T) {
	t.Run("returns the assigned ids on success", func(t *testing.T) {
		pipeline := &stubPipeline{result: &tracking.Result{EventID: "evt-1", ReferralID: "ref-1"}}
		router := setupTestRouter(pipeline, &stubStore{})

		w := performJSON(router, http.MethodPost, "/api/v1/events", map[string]interface{}{
			"event_type": "PITCH_VIEWED",
			"pitch_id":   "pitch-1",
			"visitor_id": "visitor-1",
			"platform":   "web",
		})

		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Success    bool   `json:"success"`
			EventID    string `json:"eventId"`
			ReferralID string `json:"referralId"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, "evt-1", resp.EventID)
		assert.Equal(t, "ref-1", resp.ReferralID)

		require.Len(t, pipeline.submissions, 1)
		assert.Equal(t, domain.EventTypePitchViewed, pipeline.submissions[0].EventType)
		require.NotNil(t, pipeline.submissions[0].UserAgent)
	})

	t.Run("malformed body is a bad request", func(t *testing.T) {
		pipeline := &stubPipeline{}
		router := setupTestRouter(pipeline, &stubStore{})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader([]byte("{not json")))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, pipeline.submissions)
	})

	t.Run("maps pipeline errors onto status codes", func(t *testing.T) {
		cases := []struct {
			err  error
			code int
		}{
			{domain.ErrInvalidSubmission, http.StatusBadRequest},
			{fmt.Errorf("referral x: %w", domain.ErrReferralNotFound), http.StatusNotFound},
			{fmt.Errorf("create event: %w", domain.ErrStorageUnavailable), http.StatusServiceUnavailable},
			{errors.New("boom"), http.StatusInternalServerError},
		}

		for _, tc := range cases {
			pipeline := &stubPipeline{err: tc.err}
			router := setupTestRouter(pipeline, &stubStore{})

			w := performJSON(router, http.MethodPost, "/api/v1/events", map[string]interface{}{
				"event_type": "PITCH_VIEWED",
				"pitch_id":   "pitch-1",
				"visitor_id": "visitor-1",
			})
			assert.Equal(t, tc.code, w.Code)

			var resp struct {
				Success bool `json:"success"`
				Error   struct {
					Code    string `json:"code"`
					Message string `json:"message"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Error.Code)
		}
	})
}

func TestTrackPixel(t *testing.T) {
	t.Run("valid beacon submits and returns the gif", func(t *testing.T) {
		pipeline := &stubPipeline{}
		router := setupTestRouter(pipeline, &stubStore{})

		req := httptest.NewRequest(http.MethodGet,
			"/api/v1/events/pixel.gif?event=PITCH_VIEWED&pitch=pitch-1&user=visitor-1&platform=email&session=sess-1", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "image/gif", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Header().Get("Cache-Control"), "no-store")
		assert.Equal(t, transparentGIF, w.Body.Bytes())

		require.Len(t, pipeline.pixels, 1)
		sub := pipeline.pixels[0]
		assert.Equal(t, domain.EventTypePitchViewed, sub.EventType)
		assert.Equal(t, "pitch-1", sub.PitchID)
		assert.Equal(t, "visitor-1", sub.VisitorID)
		assert.Equal(t, domain.PlatformEmail, sub.Platform)
		require.NotNil(t, sub.SessionID)
		assert.Equal(t, "sess-1", *sub.SessionID)
	})

	t.Run("carries referral and parent references", func(t *testing.T) {
		pipeline := &stubPipeline{}
		router := setupTestRouter(pipeline, &stubStore{})

		req := httptest.NewRequest(http.MethodGet,
			"/api/v1/events/pixel.gif?event=PITCH_VIEWED&pitch=pitch-1&user=visitor-2&parent=parent-ref", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		require.Len(t, pipeline.pixels, 1)
		require.NotNil(t, pipeline.pixels[0].ParentReferralID)
		assert.Equal(t, "parent-ref", *pipeline.pixels[0].ParentReferralID)
	})

	t.Run("unusable beacon still returns 200 and the gif", func(t *testing.T) {
		pipeline := &stubPipeline{}
		router := setupTestRouter(pipeline, &stubStore{})

		// Missing pitch and user, bogus event type
		req := httptest.NewRequest(http.MethodGet, "/api/v1/events/pixel.gif?event=BOGUS", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, transparentGIF, w.Body.Bytes())
		assert.Empty(t, pipeline.pixels)
	})
}

func TestListSupporterPerformance(t *testing.T) {
	t.Run("returns the ledger rows", func(t *testing.T) {
		s := &stubStore{performance: []*schema.SupporterPerformance{
			{OwnerID: "owner-1", PitchID: "pitch-1", SupporterID: "supporter-1", TotalAttributedConversions: 3, LastActivityAt: time.Now().UTC()},
			{OwnerID: "owner-1", PitchID: "pitch-1", SupporterID: "supporter-2", TotalAttributedConversions: 1, LastActivityAt: time.Now().UTC()},
		}}
		router := setupTestRouter(&stubPipeline{}, s)

		w := performJSON(router, http.MethodGet, "/api/v1/pitches/pitch-1/supporters", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Supporters []struct {
				SupporterID                string `json:"supporter_id"`
				TotalAttributedConversions int64  `json:"total_attributed_conversions"`
			} `json:"supporters"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Supporters, 2)
		assert.Equal(t, "supporter-1", resp.Supporters[0].SupporterID)
		assert.Equal(t, int64(3), resp.Supporters[0].TotalAttributedConversions)
	})

	t.Run("storage failure maps to 503", func(t *testing.T) {
		s := &stubStore{err: fmt.Errorf("list: %w", domain.ErrStorageUnavailable)}
		router := setupTestRouter(&stubPipeline{}, s)

		w := performJSON(router, http.MethodGet, "/api/v1/pitches/pitch-1/supporters", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestListAttributionChains(t *testing.T) {
	supporter := "supporter-1"
	s := &stubStore{chains: []*schema.AttributionChain{
		{OwnerID: "owner-1", PitchID: "pitch-1", OriginalReferralID: "ref-1", OriginalSupporterID: &supporter, ChainDepth: 4, LastActivityAt: time.Now().UTC()},
	}}
	router := setupTestRouter(&stubPipeline{}, s)

	w := performJSON(router, http.MethodGet, "/api/v1/pitches/pitch-1/chains", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Chains []struct {
			OriginalReferralID  string  `json:"original_referral_id"`
			OriginalSupporterID *string `json:"original_supporter_id"`
			ChainDepth          int     `json:"chain_depth"`
		} `json:"chains"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Chains, 1)
	assert.Equal(t, "ref-1", resp.Chains[0].OriginalReferralID)
	assert.Equal(t, 4, resp.Chains[0].ChainDepth)
	require.NotNil(t, resp.Chains[0].OriginalSupporterID)
}

func TestHealthCheck(t *testing.T) {
	router := setupTestRouter(&stubPipeline{}, &stubStore{})

	w := performJSON(router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}
