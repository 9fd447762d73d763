package discovery

import (
	"net/url"
	"strconv"

	"github.com/JakeFAU/announcement-crawler/internal/crawler"
)

// Default endpoint base URLs.
const (
	DefaultListingURL = "https://np-anotice-stock.eastmoney.com/api/security/ann"
	DefaultDetailURL  = "https://np-cnotice-stock.eastmoney.com/api/content/ann"
)

const callbackPrefix = "jQuery1123"

// Endpoints holds the two remote base URLs.
type Endpoints struct {
	ListingURL string
	DetailURL  string
}

// Target holds the stable listing parameters.
type Target struct {
	StockCode    string
	FNode        string
	SNode        string
	PageSize     int
	AnnType      string
	ClientSource string
}

// URLBuilder renders request URLs, stamping each with a fresh callback name
// and timestamp.
type URLBuilder struct {
	endpoints Endpoints
	target    Target
	clock     crawler.Clock
}

// NewURLBuilder returns a URLBuilder.
func NewURLBuilder(endpoints Endpoints, target Target, clock crawler.Clock) *URLBuilder {
	if endpoints.ListingURL == "" {
		endpoints.ListingURL = DefaultListingURL
	}
	if endpoints.DetailURL == "" {
		endpoints.DetailURL = DefaultDetailURL
	}
	return &URLBuilder{endpoints: endpoints, target: target, clock: clock}
}

// ListingURL returns the listing request for page (1-based).
func (b *URLBuilder) ListingURL(page int) string {
	cb, ts := b.volatile()
	q := url.Values{}
	q.Set(crawler.ParamCallback, cb)
	q.Set("sr", "-1")
	q.Set("page_size", strconv.Itoa(b.target.PageSize))
	q.Set("page_index", strconv.Itoa(page))
	q.Set("ann_type", b.target.AnnType)
	q.Set("client_source", b.target.ClientSource)
	q.Set("stock_list", b.target.StockCode)
	q.Set("f_node", b.target.FNode)
	q.Set("s_node", b.target.SNode)
	q.Set(crawler.ParamTimestamp, ts)
	return b.endpoints.ListingURL + "?" + q.Encode()
}

// DetailURL returns the detail request for artCode.
func (b *URLBuilder) DetailURL(artCode string) string {
	cb, ts := b.volatile()
	q := url.Values{}
	q.Set(crawler.ParamCallback, cb)
	q.Set("art_code", artCode)
	q.Set("client_source", b.target.ClientSource)
	q.Set("page_index", "1")
	q.Set(crawler.ParamTimestamp, ts)
	return b.endpoints.DetailURL + "?" + q.Encode()
}

// volatile returns the callback name and millisecond timestamp for one request.
func (b *URLBuilder) volatile() (string, string) {
	ts := strconv.FormatInt(b.clock.Now().UnixMilli(), 10)
	head := ts
	if len(head) > 10 {
		head = head[:10]
	}
	return callbackPrefix + head + "_" + ts, ts
}
