package asset

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	placeholderTenant       = "_no_tenant"
	placeholderConversation = "_no_conversation"
	placeholderMessage      = "_no_message"
	defaultExt              = "bin"
	defaultMime             = "application/octet-stream"
)

var mimeExt = map[string]string{
	"image/png":        "png",
	"image/jpeg":       "jpg",
	"image/jpg":        "jpg",
	"image/gif":        "gif",
	"image/webp":       "webp",
	"image/svg+xml":    "svg",
	"image/heic":       "heic",
	"image/avif":       "avif",
	"audio/mpeg":       "mp3",
	"audio/mp3":        "mp3",
	"audio/wav":        "wav",
	"audio/x-wav":      "wav",
	"audio/ogg":        "ogg",
	"audio/webm":       "weba",
	"audio/mp4":        "m4a",
	"video/mp4":        "mp4",
	"video/webm":       "webm",
	"video/quicktime":  "mov",
	"application/pdf":  "pdf",
	"application/json": "json",
	"application/zip":  "zip",
	"text/plain":       "txt",
	"text/csv":         "csv",
	"text/markdown":    "md",
}

// NormalizeMime lowercases a media type and strips parameters.
func NormalizeMime(m string) string {
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = m[:i]
	}
	return strings.ToLower(strings.TrimSpace(m))
}

func ExtForMime(m string) string {
	if ext, ok := mimeExt[NormalizeMime(m)]; ok {
		return ext
	}
	return defaultExt
}

func KindForMime(m string) Kind {
	top, _, _ := strings.Cut(NormalizeMime(m), "/")
	switch top {
	case "image":
		return KindImage
	case "audio":
		return KindAudio
	case "video":
		return KindVideo
	default:
		return KindFile
	}
}

// safeSegment passes through well-formed UUIDs and substitutes anything else.
func safeSegment(id, placeholder string) string {
	if len(id) != 36 {
		return placeholder
	}
	if _, err := uuid.Parse(id); err != nil {
		return placeholder
	}
	return strings.ToLower(id)
}

// StorageKey derives tenant/conversation/message/{index}_{hash16}.{ext}, always slash-separated.
func StorageKey(tenantID, conversationID, messageID string, index int, sha256Hex, ext string) string {
	return fmt.Sprintf("%s/%s/%s/%d_%s.%s",
		safeSegment(tenantID, placeholderTenant),
		safeSegment(conversationID, placeholderConversation),
		safeSegment(messageID, placeholderMessage),
		index,
		sha256Hex[:16],
		ext,
	)
}
