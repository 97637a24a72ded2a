package converter

import (
	"fmt"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/samber/lo"
)

// SniffLen is how much of a payload is needed to detect its type.
const SniffLen = 3072

var supportedTypes = []string{
	"application/pdf",
	"video/mp4",
	"video/mpeg",
	"video/quicktime",
	"video/webm",
	"audio/mpeg",
	"audio/wav",
	"audio/ogg",
	"audio/flac",
	"image/png",
	"image/jpeg",
	"image/webp",
	"text/plain",
	"text/markdown",
	"text/csv",
	"text/html",
}

var aliases = map[string]string{
	"application/x-pdf":   "application/pdf",
	"application/acrobat": "application/pdf",
	"video/x-mp4":         "video/mp4",
	"video/mp4v-es":       "video/mp4",
	"application/mp4":     "video/mp4",
	"video/x-m4v":         "video/mp4",
	"video/x-quicktime":   "video/quicktime",
	"audio/mp3":           "audio/mpeg",
	"audio/x-mp3":         "audio/mpeg",
	"audio/x-wav":         "audio/wav",
	"audio/wave":          "audio/wav",
	"audio/vnd.wave":      "audio/wav",
	"audio/x-flac":        "audio/flac",
	"image/jpg":           "image/jpeg",
	"image/pjpeg":         "image/jpeg",
	"text/x-markdown":     "text/markdown",
}

// IsSupported reports whether the provider accepts mimeType as is.
func IsSupported(mimeType string) bool {
	return lo.Contains(supportedTypes, mimeType)
}

// Canonical strips parameters from mimeType, lower-cases it and resolves
// known aliases. It does not look at the payload.
func Canonical(mimeType string) string {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(mimeType))
	}
	if alias, ok := aliases[mediaType]; ok {
		return alias
	}
	return mediaType
}

// Sniff detects the content type of a payload prefix.
func Sniff(sample []byte) string {
	if len(sample) > SniffLen {
		sample = sample[:SniffLen]
	}
	return Canonical(mimetype.Detect(sample).String())
}

// Normalize returns the nearest supported content type for a payload
// declared as mimeType. A supported declared type wins unless the payload is
// recognisably a supported type of another family, such as a PDF declared as
// video/mp4. Unsupported declarations fall back to the sniffed type.
func Normalize(mimeType string, sample []byte) (string, error) {
	declared := Canonical(mimeType)
	sniffed := ""
	if len(sample) > 0 {
		sniffed = Sniff(sample)
	}

	if IsSupported(declared) {
		if IsSupported(sniffed) && family(sniffed) != family(declared) {
			return sniffed, nil
		}
		return declared, nil
	}
	if IsSupported(sniffed) {
		return sniffed, nil
	}

	return "", fmt.Errorf("unsupported content type %q", mimeType)
}

// Correct picks the content type to retry with after a provider refused
// mimeType. The payload's own signature wins over any declaration.
func Correct(mimeType string, sample []byte) (string, error) {
	if len(sample) > 0 {
		if sniffed := Sniff(sample); IsSupported(sniffed) {
			return sniffed, nil
		}
	}
	if c := Canonical(mimeType); IsSupported(c) {
		return c, nil
	}
	return "", fmt.Errorf("no supported content type for %q", mimeType)
}

func family(mimeType string) string {
	top, _, _ := strings.Cut(mimeType, "/")
	return top
}
