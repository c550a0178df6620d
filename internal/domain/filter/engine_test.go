package filter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const testList = `[Adblock Plus 2.0]
! Title: test list
||ads.example.net^
||tracker.example^$third-party
/banner/*/img^
|https://exact.example/pixel.gif|
||cdn.example.org/ads/$script
||popup.example^$document
@@||ads.example.net/allowed/*
example.com##.ad-slot
||regex.example^$rewrite=abp-resource:blank-js
`

func TestEngine_Check(t *testing.T) {
	e := New(testList)

	cases := []struct {
		name    string
		req     Request
		blocked bool
	}{
		{"host anchor", Request{URL: "https://ads.example.net/x.js", SourceURL: "https://news.example/", Type: TypeScript}, true},
		{"host anchor subdomain", Request{URL: "https://eu.ads.example.net/x.js", SourceURL: "https://news.example/", Type: TypeScript}, true},
		{"host anchor needs label boundary", Request{URL: "https://badads.example.net/x.js", SourceURL: "https://news.example/", Type: TypeScript}, false},
		{"exception overrides", Request{URL: "https://ads.example.net/allowed/a.js", SourceURL: "https://news.example/", Type: TypeScript}, false},
		{"third party only", Request{URL: "https://tracker.example/t.js", SourceURL: "https://news.example/", Type: TypeScript}, true},
		{"first party not blocked", Request{URL: "https://tracker.example/t.js", SourceURL: "https://www.tracker.example/", Type: TypeScript}, false},
		{"wildcard and separator", Request{URL: "https://site.example/banner/big/img?x=1", SourceURL: "https://site.example/", Type: TypeImage}, true},
		{"separator rejects letters", Request{URL: "https://site.example/banner/big/imgs", SourceURL: "https://site.example/", Type: TypeImage}, false},
		{"start and end anchors", Request{URL: "https://exact.example/pixel.gif", Type: TypeImage}, true},
		{"end anchor rejects suffix", Request{URL: "https://exact.example/pixel.gif?x", Type: TypeImage}, false},
		{"type restriction", Request{URL: "https://cdn.example.org/ads/a.js", SourceURL: "https://x.example/", Type: TypeScript}, true},
		{"type restriction other type", Request{URL: "https://cdn.example.org/ads/a.png", SourceURL: "https://x.example/", Type: TypeImage}, false},
		{"untyped rules skip documents", Request{URL: "https://ads.example.net/", Type: TypeDocument}, false},
		{"document rule blocks page", Request{URL: "https://popup.example/landing", Type: TypeDocument}, true},
		{"case insensitive", Request{URL: "HTTPS://ADS.EXAMPLE.NET/X.JS", SourceURL: "https://news.example/", Type: TypeScript}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.blocked, e.Check(tc.req).Blocked)
		})
	}
}

func TestEngine_SkipsUnsupportedLines(t *testing.T) {
	e := New(testList)
	// Header, comment, cosmetic filter and the rule with an unknown option.
	require.Equal(t, 7, e.Len())
}

func TestEngine_DocumentException(t *testing.T) {
	e := New("||ads.example.net^")
	req := Request{URL: "https://ads.example.net/a.js", SourceURL: "https://blog.news.example/post", Type: TypeScript}
	require.True(t, e.Check(req).Blocked)

	require.Equal(t, 1, e.AddRules(ExceptionRules([]string{"news.example"})))
	got := e.Check(req)
	require.False(t, got.Blocked)
	require.Equal(t, "@@||news.example^$document", got.Exception)

	// Other pages still get blocking.
	req.SourceURL = "https://other.example/"
	require.True(t, e.Check(req).Blocked)
}

func TestEngine_DomainOption(t *testing.T) {
	e := New("/widget.js$domain=a.example|~b.a.example")
	require.True(t, e.Check(Request{URL: "https://cdn.example/widget.js", SourceURL: "https://a.example/", Type: TypeScript}).Blocked)
	require.False(t, e.Check(Request{URL: "https://cdn.example/widget.js", SourceURL: "https://b.a.example/", Type: TypeScript}).Blocked)
	require.False(t, e.Check(Request{URL: "https://cdn.example/widget.js", SourceURL: "https://c.example/", Type: TypeScript}).Blocked)
}

func TestEngine_SerializeRoundTrip(t *testing.T) {
	e := New(testList)
	e.AddRules(ExceptionRules([]string{"news.example"}))

	blob, err := e.Serialize()
	require.NoError(t, err)
	restored, err := Deserialize(blob)
	require.NoError(t, err)
	require.Equal(t, e.Rules(), restored.Rules())

	requests := []Request{
		{URL: "https://ads.example.net/x.js", SourceURL: "https://news.example/", Type: TypeScript},
		{URL: "https://ads.example.net/x.js", SourceURL: "https://shop.example/", Type: TypeScript},
		{URL: "https://tracker.example/t.js", SourceURL: "https://shop.example/", Type: TypeXHR},
		{URL: "https://site.example/banner/x/img", SourceURL: "https://site.example/", Type: TypeImage},
		{URL: "https://exact.example/pixel.gif", Type: TypeImage},
		{URL: "https://popup.example/", Type: TypeDocument},
		{URL: "https://cdn.example.org/ads/a.js", SourceURL: "https://x.example/", Type: TypeScript},
		{URL: "https://clean.example/app.js", SourceURL: "https://clean.example/", Type: TypeScript},
	}
	for _, p := range requests {
		require.Equal(t, e.Check(p), restored.Check(p), p.URL)
	}
}

func TestDeserialize_Corrupt(t *testing.T) {
	_, err := Deserialize([]byte("nope"))
	require.ErrorIs(t, err, ErrCorruptEngine)

	_, err = Deserialize(append([]byte("BHFE"), 9))
	require.ErrorIs(t, err, ErrCorruptEngine)

	_, err = Deserialize(append([]byte("BHFE\x01"), []byte("not zstd")...))
	require.ErrorIs(t, err, ErrCorruptEngine)
}
