package rest

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/captvenkat/xainik-tracking/internal/domain"
	"github.com/captvenkat/xainik-tracking/internal/logger"
	"github.com/captvenkat/xainik-tracking/internal/store"
	"github.com/captvenkat/xainik-tracking/internal/store/schema"
	"github.com/captvenkat/xainik-tracking/internal/tracking"
)

// transparentGIF is a static 1x1 transparent GIF. The pixel endpoint
// returns it unconditionally; tracking pixels must never error visibly.
var transparentGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// Handler defines the interface for REST API handlers
type Handler interface {
	// SubmitEvent ingests one interaction event from a JS-capable client
	// POST /api/v1/events
	SubmitEvent(c *gin.Context)

	// TrackPixel ingests one interaction event from a JS-incapable
	// context (email, amp) via an image beacon
	// GET /api/v1/events/pixel.gif?event=&pitch=&user=&ref=&parent=&platform=&session=&meta=
	TrackPixel(c *gin.Context)

	// ListSupporterPerformance returns the per-pitch conversion ledger
	// GET /api/v1/pitches/:pitch_id/supporters
	ListSupporterPerformance(c *gin.Context)

	// ListAttributionChains returns the per-root chain roll-ups for a pitch
	// GET /api/v1/pitches/:pitch_id/chains
	ListAttributionChains(c *gin.Context)

	// HealthCheck returns the health status of the API
	// GET /health
	HealthCheck(c *gin.Context)
}

// handler implements the Handler interface
type handler struct {
	processor tracking.Pipeline
	store     store.Store
}

// NewHandler creates a new REST API handler
func NewHandler(processor tracking.Pipeline, s store.Store) Handler {
	return &handler{processor: processor, store: s}
}

// submitEventResponse is the JSON channel success envelope
type submitEventResponse struct {
	Success    bool   `json:"success"`
	EventID    string `json:"eventId"`
	ReferralID string `json:"referralId"`
}

// SubmitEvent ingests one event via the JSON channel. Critical-path
// failures (referral resolution, event record) surface as structured
// errors; derived-state failures were already swallowed by the pipeline.
func (h *handler) SubmitEvent(c *gin.Context) {
	var sub domain.Submission
	if err := c.ShouldBindJSON(&sub); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}

	if sub.UserAgent == nil {
		if ua := c.Request.UserAgent(); ua != "" {
			sub.UserAgent = &ua
		}
	}

	result, err := h.processor.Process(c.Request.Context(), sub)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidSubmission), errors.Is(err, domain.ErrInvalidEvent):
			respondBadRequest(c, "Missing or invalid submission fields")
		case errors.Is(err, domain.ErrReferralNotFound):
			respondNotFound(c, "Referral not found")
		case errors.Is(err, domain.ErrStorageUnavailable):
			respondUnavailable(c, err, "Storage unavailable, retry later")
		default:
			respondInternalError(c, err, "Failed to record event")
		}
		return
	}

	c.JSON(http.StatusOK, submitEventResponse{
		Success:    true,
		EventID:    result.EventID,
		ReferralID: result.ReferralID,
	})
}

// TrackPixel ingests one event via the image-beacon channel. The
// response is always the 1x1 GIF with a 200, whatever happens inside;
// failures are logged only.
func (h *handler) TrackPixel(c *gin.Context) {
	sub, ok := pixelSubmission(c)
	if ok {
		h.processor.ProcessPixel(sub)
	}

	c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
	c.Data(http.StatusOK, "image/gif", transparentGIF)
}

// pixelSubmission maps beacon query parameters onto the internal
// submission contract. A submission that cannot be mapped is dropped
// silently (logged at debug), never rejected.
func pixelSubmission(c *gin.Context) (domain.Submission, bool) {
	sub := domain.Submission{
		EventType: domain.EventType(c.Query("event")),
		PitchID:   c.Query("pitch"),
		VisitorID: c.Query("user"),
		Platform:  domain.Platform(c.Query("platform")),
	}

	if ref := c.Query("ref"); ref != "" {
		sub.ReferralID = &ref
	}
	if parent := c.Query("parent"); parent != "" {
		sub.ParentReferralID = &parent
	}
	if session := c.Query("session"); session != "" {
		sub.SessionID = &session
	}
	if ua := c.Request.UserAgent(); ua != "" {
		sub.UserAgent = &ua
	}
	if meta := c.Query("meta"); meta != "" {
		if decoded, err := base64.RawURLEncoding.DecodeString(meta); err == nil {
			var metadata map[string]string
			if err := json.Unmarshal(decoded, &metadata); err == nil {
				sub.Metadata = metadata
			}
		}
	}

	if err := sub.Validate(); err != nil {
		logger.Debug("pixel request with unusable submission, returning pixel only",
			zap.String("pitch_id", sub.PitchID),
			zap.String("event_type", string(sub.EventType)),
		)
		return sub, false
	}

	return sub, true
}

// supporterPerformanceResponse is one row of the per-pitch conversion ledger
type supporterPerformanceResponse struct {
	OwnerID                    string    `json:"owner_id"`
	PitchID                    string    `json:"pitch_id"`
	SupporterID                string    `json:"supporter_id"`
	TotalAttributedConversions int64     `json:"total_attributed_conversions"`
	LastActivityAt             time.Time `json:"last_activity_at"`
}

// ListSupporterPerformance returns per-pitch conversion counts by
// supporter. A plain table read for external dashboards.
func (h *handler) ListSupporterPerformance(c *gin.Context) {
	pitchID := c.Param("pitch_id")
	if pitchID == "" {
		respondBadRequest(c, "Pitch id is required")
		return
	}

	rows, err := h.store.ListSupporterPerformance(c.Request.Context(), pitchID)
	if err != nil {
		respondUnavailable(c, err, "Storage unavailable, retry later")
		return
	}

	out := make([]supporterPerformanceResponse, len(rows))
	for i, row := range rows {
		out[i] = supporterPerformanceResponse{
			OwnerID:                    row.OwnerID,
			PitchID:                    row.PitchID,
			SupporterID:                row.SupporterID,
			TotalAttributedConversions: row.TotalAttributedConversions,
			LastActivityAt:             row.LastActivityAt,
		}
	}

	c.JSON(http.StatusOK, gin.H{"supporters": out})
}

// attributionChainResponse is one per-root chain roll-up row
type attributionChainResponse struct {
	OwnerID             string    `json:"owner_id"`
	PitchID             string    `json:"pitch_id"`
	OriginalReferralID  string    `json:"original_referral_id"`
	OriginalSupporterID *string   `json:"original_supporter_id,omitempty"`
	ChainDepth          int       `json:"chain_depth"`
	LastActivityAt      time.Time `json:"last_activity_at"`
}

func mapAttributionChain(row *schema.AttributionChain) attributionChainResponse {
	return attributionChainResponse{
		OwnerID:             row.OwnerID,
		PitchID:             row.PitchID,
		OriginalReferralID:  row.OriginalReferralID,
		OriginalSupporterID: row.OriginalSupporterID,
		ChainDepth:          row.ChainDepth,
		LastActivityAt:      row.LastActivityAt,
	}
}

// ListAttributionChains returns per-root chain depth and activity for a
// pitch. A plain table read for external dashboards.
func (h *handler) ListAttributionChains(c *gin.Context) {
	pitchID := c.Param("pitch_id")
	if pitchID == "" {
		respondBadRequest(c, "Pitch id is required")
		return
	}

	rows, err := h.store.ListAttributionChains(c.Request.Context(), pitchID)
	if err != nil {
		respondUnavailable(c, err, "Storage unavailable, retry later")
		return
	}

	out := make([]attributionChainResponse, len(rows))
	for i, row := range rows {
		out[i] = mapAttributionChain(row)
	}

	c.JSON(http.StatusOK, gin.H{"chains": out})
}

// HealthCheck returns the health status of the API
func (h *handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
