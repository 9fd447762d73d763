package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveSignatureIgnoresVolatileParams(t *testing.T) {
	t.Parallel()

	a := "https://np-anotice-stock.eastmoney.com/api/security/ann?cb=jQuery1123017000000_1700000000001&sr=-1&page_size=50&page_index=2&ann_type=A&client_source=web&stock_list=601225&f_node=0&s_node=0&_=1700000000001"
	b := "https://np-anotice-stock.eastmoney.com/api/security/ann?cb=jQuery1123017999999_1799999999999&sr=-1&page_size=50&page_index=2&ann_type=A&client_source=web&stock_list=601225&f_node=0&s_node=0&_=1799999999999"

	sigA, err := DeriveSignature(a)
	require.NoError(t, err)
	sigB, err := DeriveSignature(b)
	require.NoError(t, err)

	require.Equal(t, sigA, sigB)
	require.Equal(t, KindListing, sigA.Kind)
	require.Equal(t, "2", sigA.Key)
	require.NotContains(t, sigA.Normalized, "cb=")
	require.NotContains(t, sigA.Normalized, "_=")
}

func TestDeriveSignatureKinds(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		url  string
		kind RequestKind
		key  string
	}{
		{"listing default page", "https://host/api/security/ann?stock_list=1", KindListing, "1"},
		{"detail", "https://host/api/content/ann?cb=x&art_code=AN202401011234&_=1", KindDetail, "AN202401011234"},
		{"detail missing code", "https://host/api/content/ann?cb=x", KindDetail, "unknown"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			sig, err := DeriveSignature(tc.url)
			require.NoError(t, err)
			require.Equal(t, tc.kind, sig.Kind)
			require.Equal(t, tc.key, sig.Key)
		})
	}
}

func TestDeriveSignatureOtherUsesDigest(t *testing.T) {
	t.Parallel()

	a, err := DeriveSignature("https://Example.com:443/other?b=2&a=1&cb=one&_=1")
	require.NoError(t, err)
	b, err := DeriveSignature("https://example.com/other?a=1&b=2&cb=two&_=2")
	require.NoError(t, err)
	c, err := DeriveSignature("https://example.com/other?a=1&b=3")
	require.NoError(t, err)

	require.Equal(t, KindOther, a.Kind)
	require.Len(t, a.Key, 16)
	require.Equal(t, a, b)
	require.NotEqual(t, a.Key, c.Key)
}

func TestDeriveSignatureInvalidURL(t *testing.T) {
	t.Parallel()

	_, err := DeriveSignature("http://%zz")
	require.Error(t, err)
}

func TestSignatureString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "detail:AN1", Signature{Kind: KindDetail, Key: "AN1"}.String())
}
