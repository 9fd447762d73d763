package crawler

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	unknownIssuer       = "unknown"
	uncategorizedColumn = "uncategorized"
	documentExt         = ".pdf"
)

var (
	titleDisallowed   = regexp.MustCompile(`[^\x{4e00}-\x{9fa5}a-zA-Z0-9]`)
	noticeDatePattern = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)
	unsafePathChars   = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
)

// SanitizeTitle keeps CJK ideographs, ASCII letters and digits.
func SanitizeTitle(title string) string {
	return titleDisallowed.ReplaceAllString(title, "")
}

// NormalizeDate turns "2018-01-18 00:00:00" into "20180118". Unrecognized
// input yields an empty string.
func NormalizeDate(raw string) string {
	m := noticeDatePattern.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	return m[1] + m[2] + m[3]
}

// SafeComponent makes s usable as a single path segment.
func SafeComponent(s, fallback string) string {
	s = unsafePathChars.ReplaceAllString(s, "_")
	s = strings.Trim(s, ". ")
	if s == "" {
		return fallback
	}
	return s
}

// DocumentFilename builds <date>_<prefix><title>.pdf, where prefix holds the
// issuer code and short name unless the title already mentions them.
func DocumentFilename(ref DocumentReference) string {
	title := SanitizeTitle(ref.Title)
	var prefix strings.Builder
	if ref.StockCode != "" && !strings.Contains(title, ref.StockCode) {
		prefix.WriteString(ref.StockCode)
	}
	if ref.ShortName != "" && !strings.Contains(title, ref.ShortName) {
		prefix.WriteString(ref.ShortName)
	}
	name := fmt.Sprintf("%s_%s%s", NormalizeDate(ref.NoticeDate), prefix.String(), title)
	return SafeComponent(name, ref.ArtCode) + documentExt
}

// DestinationPath is the deterministic local path for ref under root:
// <root>/<issuer>/<column>/<filename>. Equal references always map to equal
// paths, which is what makes existence checks a valid resume mechanism.
func DestinationPath(root string, ref DocumentReference) string {
	issuer := SafeComponent(ref.ShortName, SafeComponent(ref.StockCode, unknownIssuer))
	column := SafeComponent(ref.Column, uncategorizedColumn)
	return filepath.Join(root, issuer, column, DocumentFilename(ref))
}
