package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/announcement-crawler/internal/crawler"
)

// fakeRemote serves listing pages by page_index and details by art_code.
type fakeRemote struct {
	mu          sync.Mutex
	pages       map[int]string
	details     map[string]string
	failPages   map[int]error
	failDetails map[string]error
	listingHits []int
	detailHits  []string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		pages:       map[int]string{},
		details:     map[string]string{},
		failPages:   map[int]error{},
		failDetails: map[string]error{},
	}
}

func (f *fakeRemote) FetchJSON(_ context.Context, rawURL string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	switch crawler.ClassifyPath(u.Path) {
	case crawler.KindListing:
		page, _ := strconv.Atoi(q.Get("page_index"))
		f.listingHits = append(f.listingHits, page)
		if err := f.failPages[page]; err != nil {
			return nil, err
		}
		body, ok := f.pages[page]
		if !ok {
			return nil, &crawler.Failure{Kind: crawler.ErrTransport, Op: "fake", Err: fmt.Errorf("no page %d", page)}
		}
		return json.RawMessage(body), nil
	case crawler.KindDetail:
		code := q.Get("art_code")
		f.detailHits = append(f.detailHits, code)
		if err := f.failDetails[code]; err != nil {
			return nil, err
		}
		body, ok := f.details[code]
		if !ok {
			return nil, &crawler.Failure{Kind: crawler.ErrTransport, Op: "fake", Err: fmt.Errorf("no detail %s", code)}
		}
		return json.RawMessage(body), nil
	default:
		return nil, errors.New("unexpected url " + rawURL)
	}
}

func (f *fakeRemote) addPage(t *testing.T, page, totalHits int, codes ...string) {
	t.Helper()
	list := make([]map[string]any, 0, len(codes))
	for _, code := range codes {
		rec := map[string]any{"title": "title " + code, "columns": []map[string]string{{"column_name": "临时公告"}}}
		if code != "" {
			rec["art_code"] = code
		}
		list = append(list, rec)
	}
	body, err := json.Marshal(map[string]any{
		"success": 1,
		"data":    map[string]any{"total_hits": totalHits, "list": list},
	})
	require.NoError(t, err)
	f.pages[page] = string(body)
}

func (f *fakeRemote) addDetail(t *testing.T, code, title string, sizeKB int) {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"success": 1,
		"data": map[string]any{
			"art_code":     code,
			"attach_url":   "https://pdf.example.com/" + code + ".pdf",
			"attach_size":  strconv.Itoa(sizeKB),
			"notice_title": title,
			"notice_date":  "2024-03-28 00:00:00",
			"security":     []map[string]string{{"stock": "601225", "short_name": "陕西煤业"}},
		},
	})
	require.NoError(t, err)
	f.details[code] = string(body)
}

// sizedDownloader writes sizeKB kilobytes for every download.
type sizedDownloader struct {
	mu     sync.Mutex
	sizeKB int
	calls  []string
}

func (d *sizedDownloader) Download(_ context.Context, url string, dest string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, url)
	return os.WriteFile(dest, make([]byte, d.sizeKB*1000), 0o644)
}

func (d *sizedDownloader) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

type recordingSleeper struct {
	mu   sync.Mutex
	naps []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.naps = append(s.naps, d)
	return ctx.Err()
}

func (s *recordingSleeper) count(d time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, nap := range s.naps {
		if nap == d {
			n++
		}
	}
	return n
}

type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%d", g.n), nil
}

type fakeLedger struct {
	mu      sync.Mutex
	records []crawler.DocumentRecord
	err     error
}

func (l *fakeLedger) RecordDocument(_ context.Context, rec crawler.DocumentRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	return l.err
}

type fakeHasher struct{}

func (fakeHasher) Hash(data []byte) (string, error) {
	return fmt.Sprintf("%064x", len(data)), nil
}

func (fakeHasher) HashReader(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%064x", len(data)), nil
}
