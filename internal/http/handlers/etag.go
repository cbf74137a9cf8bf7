package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"

	"github.com/geocoder89/scribe/internal/domain/document"
	"github.com/gin-gonic/gin"
)

// respondDocument writes d with a strong ETag and answers 304 when the
// client already holds this version.
func respondDocument(ctx *gin.Context, d document.Document) {
	tag := documentETag(d)

	ctx.Header("ETag", tag)
	ctx.Header("Cache-Control", "private, no-cache")

	if etagMatches(ctx.GetHeader("If-None-Match"), tag) {
		ctx.Status(http.StatusNotModified)
		return
	}

	ctx.JSON(http.StatusOK, d)
}

// documentETag covers every field a reader sees. Rename and trash do not bump
// modified_at, so title and trash state are hashed too.
func documentETag(d document.Document) string {
	h := sha256.New()
	h.Write([]byte(d.DocID))
	h.Write([]byte{0})
	h.Write([]byte(d.Title))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatBool(d.InTrash)))
	h.Write([]byte(strconv.FormatInt(d.ModifiedAt.UnixNano(), 10)))
	h.Write(d.Body)

	return `"` + hex.EncodeToString(h.Sum(nil)[:16]) + `"`
}

// etagMatches applies If-None-Match weak comparison.
func etagMatches(header, tag string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}

	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == tag {
			return true
		}
	}
	return false
}
