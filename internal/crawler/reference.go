package crawler

import (
	"fmt"
	"strings"
)

// DocumentReference is a record resolved to a downloadable document.
type DocumentReference struct {
	ArtCode    string
	URL        string
	DeclaredKB int64
	StockCode  string
	ShortName  string
	Title      string
	NoticeDate string
	Column     string
}

// NewDocumentReference combines a listing record with its resolved detail.
func NewDocumentReference(rec Record, detail Detail) (DocumentReference, error) {
	artCode := firstNonEmpty(rec.ArtCode, detail.ArtCode)
	url := strings.TrimSpace(detail.AttachURL)
	if url == "" {
		return DocumentReference{}, &Failure{
			Kind:    ErrLogical,
			Op:      "resolve document",
			ArtCode: artCode,
			Err:     fmt.Errorf("no attachment url"),
		}
	}
	if detail.AttachSize < 0 {
		return DocumentReference{}, &Failure{
			Kind:    ErrLogical,
			Op:      "resolve document",
			ArtCode: artCode,
			Err:     fmt.Errorf("negative attach_size %d", detail.AttachSize),
		}
	}
	if len(detail.Security) == 0 {
		return DocumentReference{}, &Failure{
			Kind:    ErrLogical,
			Op:      "resolve document",
			ArtCode: artCode,
			Err:     fmt.Errorf("no security entry"),
		}
	}
	ref := DocumentReference{
		ArtCode:    artCode,
		URL:        url,
		DeclaredKB: int64(detail.AttachSize),
		Title:      firstNonEmpty(strings.TrimSpace(detail.NoticeTitle), strings.TrimSpace(rec.Title)),
		NoticeDate: firstNonEmpty(detail.NoticeDate, rec.NoticeDate),
		Column:     rec.Label(),
		StockCode:  strings.TrimSpace(detail.Security[0].Stock),
		ShortName:  strings.TrimSpace(detail.Security[0].ShortName),
	}
	return ref, nil
}
