package enrich

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathiasgse/screenfree/internal/fetcher"
	"github.com/mathiasgse/screenfree/internal/rubric"
)

const berghofHTML = `<!doctype html>
<html><head>
<title>Berghof Alleinlage</title>
<meta name="geo.position" content="47.123;11.456">
<meta property="og:image" content="https://cdn.berghof.at/hero.jpg">
<script type="application/ld+json">{not valid json</script>
<script type="application/ld+json">{"@context":"https://schema.org","@type":"Hotel","name":"Berghof"}</script>
<style>.resort { color: red }</style>
<script>var x = "Resort all inclusive";</script>
</head>
<body>
<h1>Berghof</h1>
<p>Unser Haus in Alleinlage, abgelegen und ruhig. Kein WLAN auf den Zimmern.</p>
<p>Nur 8 Zimmer. Jetzt buchen!</p>
<img src="/img/stube.jpg"><img src="/img/stube.jpg"><img src="data:image/png;base64,AAAA">
<a href="mailto:Info@Berghof.at?subject=Anfrage">Schreiben Sie uns</a>
<p>Technik: webmaster@berghof.at</p>
</body></html>`

func newTestEnricher(retries int) *Enricher {
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Timeout:     2 * time.Second,
		MaxRetries:  retries,
		HostRate:    1000,
		HostBurst:   100,
		BackoffBase: time.Millisecond,
	})
	return New(rubric.MustLoad(), f)
}

func TestEnrich_ExtractsSignals(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "StilleOrteBot")
		_, _ = w.Write([]byte(berghofHTML))
	}))
	defer srv.Close()

	e := newTestEnricher(1).Enrich(context.Background(), srv.URL+"/")

	assert.Empty(t, e.FetchError)
	assert.True(t, e.Fetched())
	assert.Equal(t, []string{"alleinlage", "abgelegen", "kein wlan", "ruhig"}, e.OffgridCues)
	assert.Empty(t, e.ResortPenalties, "script and style text is not visible")
	require.NotNil(t, e.RoomCount)
	assert.Equal(t, 8, *e.RoomCount)
	require.NotNil(t, e.Coordinates)
	assert.InDelta(t, 47.123, e.Coordinates.Lat, 1e-9)
	assert.InDelta(t, 11.456, e.Coordinates.Lng, 1e-9)
	assert.Equal(t, []string{"https://cdn.berghof.at/hero.jpg", srv.URL + "/img/stube.jpg"}, e.Images)
	require.NotNil(t, e.IsAccommodation)
	assert.True(t, *e.IsAccommodation)
	assert.Equal(t, "Hotel", e.AccommodationType)
	assert.True(t, e.HasBookingSignals)
	assert.Equal(t, "info@berghof.at", e.ContactEmail)
	assert.True(t, strings.HasPrefix(e.AboutText, "Berghof Alleinlage Berghof Unser Haus"))
}

func TestEnrich_BlockedDomainIsNotFetched(t *testing.T) {
	f := &countingFetcher{}
	en := New(rubric.MustLoad(), f)

	e := en.Enrich(context.Background(), "https://www.booking.com/hotel/at/berghof.html")

	assert.Equal(t, BlockedFetchError, e.FetchError)
	require.NotNil(t, e.IsAccommodation)
	assert.False(t, *e.IsAccommodation)
	assert.Zero(t, f.calls)
}

func TestEnrich_HTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	e := newTestEnricher(1).Enrich(context.Background(), srv.URL)

	assert.Equal(t, "HTTP 403", e.FetchError)
	assert.Nil(t, e.IsAccommodation)
	assert.Empty(t, e.OffgridCues)
}

func TestEnrich_TransportError(t *testing.T) {
	en := New(rubric.MustLoad(), &countingFetcher{err: errors.New("dial tcp: connection refused")})

	e := en.Enrich(context.Background(), "https://berghof.at")

	assert.Equal(t, "dial tcp: connection refused", e.FetchError)
	assert.False(t, e.Fetched())
	assert.Nil(t, e.RoomCount)
}

func TestEnrich_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte("<p>zu spät</p>"))
	}))
	defer srv.Close()

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{Timeout: 50 * time.Millisecond, HostRate: 1000, HostBurst: 10})
	e := New(rubric.MustLoad(), f).Enrich(context.Background(), srv.URL)

	assert.NotEmpty(t, e.FetchError)
	assert.Nil(t, e.IsAccommodation)
}

func TestNewFetcher_SingleGetOnServerError(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	res := New(rubric.MustLoad(), NewFetcher("", time.Second)).Enrich(context.Background(), srv.URL)
	assert.Equal(t, "HTTP 502", res.FetchError)
	assert.Equal(t, int32(1), requests.Load())
}

func TestNewFetcher_SingleGetOnTimeout(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte("late"))
	}))
	defer srv.Close()

	start := time.Now()
	res := New(rubric.MustLoad(), NewFetcher("", 100*time.Millisecond)).Enrich(context.Background(), srv.URL)
	elapsed := time.Since(start)

	assert.NotEmpty(t, res.FetchError)
	assert.Equal(t, int32(1), requests.Load())
	assert.Less(t, elapsed, 250*time.Millisecond)
}

func TestExtract_NoSchemaLeavesAccommodationUnknown(t *testing.T) {
	e, err := New(rubric.MustLoad(), nil).Extract([]byte(`<p>Ein Resort mit Kids Club und Therme.</p>`), "https://x.at")
	require.NoError(t, err)

	assert.Nil(t, e.IsAccommodation)
	assert.Empty(t, e.AccommodationType)
	assert.Equal(t, []string{"resort", "kids club", "therme"}, e.ResortPenalties)
	assert.False(t, e.HasBookingSignals)
}

func TestExtract_SchemaTypeVariants(t *testing.T) {
	tests := []struct {
		name string
		json string
		want string
	}{
		{"array of items", `[{"@type":"Organization"},{"@type":"BedAndBreakfast"}]`, "BedAndBreakfast"},
		{"type array", `{"@type":["LocalBusiness","LodgingBusiness"]}`, "LodgingBusiness"},
		{"graph", `{"@graph":[{"@type":"WebSite"},{"@type":"Hostel"}]}`, "Hostel"},
		{"not lodging", `{"@type":"Restaurant"}`, ""},
	}
	en := New(rubric.MustLoad(), nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html := `<script type="application/ld+json">` + tt.json + `</script>`
			e, err := en.Extract([]byte(html), "https://x.at")
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.AccommodationType)
		})
	}
}

func TestRoomCount(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"Nur 12 Zimmer im Haus", 12},
		{"5 Suiten mit Blick", 5},
		{"We have 3 rooms", 3},
		{"Zimmer: 14", 14},
		{"camere 7", 0},
		{"0 Zimmer", 0},
		{"Keine Angabe", 0},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := roomCount(tt.text)
			if tt.want == 0 {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestCoordinates_Priority(t *testing.T) {
	meta := map[string][]string{
		"place:location:latitude":  {"46.5"},
		"place:location:longitude": {"11.3"},
		"icbm":                     {"47.0, 13.0"},
	}
	p := coordinates(meta)
	require.NotNil(t, p)
	assert.InDelta(t, 46.5, p.Lat, 1e-9)

	delete(meta, "place:location:latitude")
	p = coordinates(meta)
	require.NotNil(t, p)
	assert.InDelta(t, 47.0, p.Lat, 1e-9)
	assert.InDelta(t, 13.0, p.Lng, 1e-9)

	assert.Nil(t, coordinates(map[string][]string{"geo.position": {"abc;def"}}))
}

func TestContactEmail_Filtering(t *testing.T) {
	en := New(rubric.MustLoad(), nil)
	html := `<p>noreply@berghof.at hello@example.com logo.png@2x.de
		anna@berghof.at kontakt@berghof.at</p>`
	e, err := en.Extract([]byte(html), "https://berghof.at")
	require.NoError(t, err)
	assert.Equal(t, "kontakt@berghof.at", e.ContactEmail)

	e, err = en.Extract([]byte(`<p>anna@berghof.at</p>`), "https://berghof.at")
	require.NoError(t, err)
	assert.Equal(t, "anna@berghof.at", e.ContactEmail)

	e, err = en.Extract([]byte(`<p>postmaster@berghof.at</p>`), "https://berghof.at")
	require.NoError(t, err)
	assert.Empty(t, e.ContactEmail)
}

func TestAboutText_Truncated(t *testing.T) {
	en := New(rubric.MustLoad(), nil)
	e, err := en.Extract([]byte("<p>"+strings.Repeat("ä", 2500)+"</p>"), "https://x.at")
	require.NoError(t, err)
	assert.Equal(t, 2000, len([]rune(e.AboutText)))
}

type countingFetcher struct {
	calls int
	err   error
}

func (f *countingFetcher) Fetch(context.Context, string, ...fetcher.RequestOption) (*fetcher.Page, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &fetcher.Page{StatusCode: http.StatusOK}, nil
}
