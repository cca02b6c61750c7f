package handlers

import (
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/39george/multisig-ecdsa/internal/ceremony"
	"github.com/39george/multisig-ecdsa/internal/session"
)

type createSessionRequest struct {
	Digest     string   `json:"digest" binding:"required"`
	PublicKeys []string `json:"public_keys" binding:"required"`
	Threshold  int      `json:"threshold" binding:"required"`
	TTLSeconds int      `json:"ttl_seconds"`
}

type submitShareRequest struct {
	PublicKey string `json:"public_key" binding:"required"`
	R         string `json:"r" binding:"required"`
	S         string `json:"s" binding:"required"`
}

// CreateSession handles POST /sessions.
func CreateSession(svc *ceremony.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		id, err := svc.Open(req.Digest, req.PublicKeys, req.Threshold, time.Duration(req.TTLSeconds)*time.Second)
		if err != nil {
			c.JSON(statusCode(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"session_id": id})
	}
}

// SubmitShare handles POST /sessions/:id/shares.
func SubmitShare(svc *ceremony.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := sessionID(c)
		if !ok {
			return
		}
		var req submitShareRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		status, err := svc.Contribute(c.Request.Context(), id, req.PublicKey, req.R, req.S)
		if err != nil {
			c.JSON(statusCode(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, statusView(status))
	}
}

// GetSession handles GET /sessions/:id.
func GetSession(svc *ceremony.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := sessionID(c)
		if !ok {
			return
		}
		status, err := svc.Status(id)
		if err != nil {
			c.JSON(statusCode(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, statusView(status))
	}
}

// ListSessions handles GET /sessions.
func ListSessions(svc *ceremony.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		statuses := svc.List()
		views := make([]gin.H, 0, len(statuses))
		for _, st := range statuses {
			views = append(views, statusView(st))
		}
		c.JSON(http.StatusOK, gin.H{"sessions": views})
	}
}

// CancelSession handles POST /sessions/:id/cancel.
func CancelSession(svc *ceremony.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := sessionID(c)
		if !ok {
			return
		}
		status, err := svc.Cancel(id)
		if err != nil {
			c.JSON(statusCode(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, statusView(status))
	}
}

func sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown session id"})
		return uuid.Nil, false
	}
	return id, true
}

func statusView(st ceremony.Status) gin.H {
	view := gin.H{
		"session_id": st.ID,
		"state":      st.State,
		"accepted":   st.Accepted,
		"threshold":  st.Threshold,
		"key_count":  st.KeyCount,
		"deadline":   st.Deadline,
	}
	if st.Record != nil {
		view["record"] = recordView(st.Record)
	}
	return view
}

func recordView(rec *session.Record) gin.H {
	shares := make([]gin.H, 0, len(rec.Shares))
	for _, sh := range rec.Shares {
		shares = append(shares, gin.H{
			"public_key":   sh.PubKey,
			"r":            hexEncode(sh.R),
			"s":            hexEncode(sh.S),
			"submitted_at": sh.SubmittedAt,
		})
	}
	return gin.H{
		"session_id":   rec.SessionID,
		"digest":       hexEncode(rec.Digest),
		"threshold":    rec.Threshold,
		"key_count":    len(rec.Authorized),
		"shares":       shares,
		"finalized_at": rec.FinalizedAt,
	}
}

func hexEncode(b [32]byte) string {
	return hex.EncodeToString(b[:])
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrUnauthorizedKey):
		return http.StatusForbidden
	case errors.Is(err, session.ErrInvalidSignature):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, session.ErrInvalidPolicy), errors.Is(err, ceremony.ErrBadEncoding):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
