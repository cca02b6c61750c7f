package handlers

import (
	"encoding/hex"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/39george/multisig-ecdsa/internal/keys"
)

type createIdentityRequest struct {
	Index uint32 `json:"index"`
}

type signDigestRequest struct {
	Digest string `json:"digest" binding:"required"`
}

// CreateIdentity handles POST /identities: derive the identity at the given
// index from the configured mnemonic.
func CreateIdentity(ring *keys.Keyring) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createIdentityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		id, err := ring.Provision(req.Index)
		if err != nil {
			c.JSON(identityStatusCode(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, identityView(id))
	}
}

// ListIdentities handles GET /identities.
func ListIdentities(ring *keys.Keyring) gin.HandlerFunc {
	return func(c *gin.Context) {
		ids := ring.List()
		views := make([]gin.H, 0, len(ids))
		for _, id := range ids {
			views = append(views, identityView(id))
		}
		c.JSON(http.StatusOK, gin.H{"identities": views})
	}
}

// SignDigest handles POST /identities/:addr/sign: produce a signature share
// over a 32-byte digest with a locally held identity.
func SignDigest(ring *keys.Keyring) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req signDigestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		digest, err := hex.DecodeString(req.Digest)
		if err != nil || len(digest) != keys.DigestSize {
			c.JSON(http.StatusBadRequest, gin.H{"error": "digest must be 32 bytes of hex"})
			return
		}
		id, r, s, err := ring.Sign(c.Param("addr"), digest)
		if err != nil {
			c.JSON(identityStatusCode(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"address":    id.Address,
			"public_key": id.PublicKey,
			"r":          hex.EncodeToString(r[:]),
			"s":          hex.EncodeToString(s[:]),
		})
	}
}

// RevokeIdentity handles DELETE /identities/:addr: zeroize and forget the
// identity's secret material.
func RevokeIdentity(ring *keys.Keyring) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := ring.Revoke(c.Param("addr")); err != nil {
			c.JSON(identityStatusCode(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "identity revoked"})
	}
}

func identityView(id keys.IdentityInfo) gin.H {
	return gin.H{
		"address":    id.Address,
		"public_key": id.PublicKey,
		"index":      id.Index,
	}
}

func identityStatusCode(err error) int {
	switch {
	case errors.Is(err, keys.ErrUnknownIdentity):
		return http.StatusNotFound
	case errors.Is(err, keys.ErrInvalidMnemonic):
		return http.StatusBadRequest
	case errors.Is(err, keys.ErrSigningUnavailable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
