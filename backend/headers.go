package backend

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// FindHeader does a case-insensitive header lookup that reports absence
// rather than panicking.
func FindHeader(headers http.Header, name string) (string, bool) {
	v := headers.Get(name)
	if v == "" {
		return "", false
	}
	return v, true
}

// HeadResult is the decoded subset of a HEAD response that the Orchestrator
// folds into an Entry.
type HeadResult struct {
	Size          uint64
	IsDirectory   bool
	Mode          *uint32
	Ctime         *time.Time
	ETag          string
	VersionID     string
	ContentType   string
}

// ParseHeadHeaders decodes a HEAD response's headers: Content-Length
// clamped to non-negative, the x-directory content-type promotion,
// x-amz-meta-mode/date overrides, and the xattr mirror fields.
func ParseHeadHeaders(h http.Header) HeadResult {
	var r HeadResult

	if cl, ok := FindHeader(h, "Content-Length"); ok {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n > 0 {
			r.Size = uint64(n)
		}
	}

	ct, _ := FindHeader(h, "Content-Type")
	if ct == "application/x-directory" {
		r.IsDirectory = true
	}
	r.ContentType = ct

	if modeStr, ok := FindHeader(h, "x-amz-meta-mode"); ok {
		if m, err := strconv.ParseUint(modeStr, 10, 32); err == nil {
			mode := uint32(m)
			r.Mode = &mode
		}
	}

	if dateStr, ok := FindHeader(h, "x-amz-meta-date"); ok {
		if t, err := time.Parse(time.RFC1123, dateStr); err == nil {
			r.Ctime = &t
		} else if t, err := time.Parse("Mon, 02 Jan 2006 15:04:05 -0700", dateStr); err == nil {
			r.Ctime = &t
		}
	}

	if etag, ok := FindHeader(h, "ETag"); ok {
		r.ETag = strings.Trim(etag, `"`)
	}
	if vid, ok := FindHeader(h, "x-amz-version-id"); ok {
		r.VersionID = vid
	}

	return r
}
