package blob

import (
	"fmt"
	"mime"
	"strings"
	"time"
	"unicode"

	"github.com/oklog/ulid/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// KeyTimeFormat is the compact UTC timestamp embedded in object keys.
const KeyTimeFormat = "20060102T150405Z"

var extensions = map[string]string{
	"application/pdf":    "pdf",
	"application/msword": "doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": "docx",
	"application/vnd.oasis.opendocument.text":                                 "odt",
	"image/jpeg": "jpg",
	"image/png":  "png",
	"text/plain": "txt",
}

// KeyParts are the inputs of an attachment key.
type KeyParts struct {
	Role        string
	NationalID  string
	Name        string
	At          time.Time
	ContentType string
}

// BuildKey derives a collision-resistant key of the form
// {role}/{national id or random}-{name}-{timestamp}-{ulid}.{ext}.
func BuildKey(p KeyParts) string {
	id := p.NationalID
	if id == "" {
		id = strings.ToLower(ulid.Make().String())
	}
	return fmt.Sprintf("%s/%s-%s-%s-%s.%s",
		Slugify(p.Role),
		id,
		Slugify(p.Name),
		p.At.UTC().Format(KeyTimeFormat),
		strings.ToLower(ulid.Make().String()),
		ExtensionFor(p.ContentType),
	)
}

// Slugify lower-cases s, strips accents and joins alphanumeric runs with
// hyphens. An empty result becomes "unknown".
func Slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}

	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(stripped) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			pendingDash = false
			continue
		}
		pendingDash = true
	}

	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}

// ExtensionFor maps a declared content type to a file extension; unknown
// types get "bin".
func ExtensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	if ext, ok := extensions[mediaType]; ok {
		return ext
	}
	return "bin"
}
