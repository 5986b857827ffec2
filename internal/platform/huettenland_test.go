package platform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const kogelHTML = `<html><head><title>Almhütte Kogel | Hüttenland</title>
<meta name="description" content="Almhütte in den Nockbergen.">
</head><body>
<h1>Almhütte Kogel</h1>
<div class="location">ÖSTERREICH | Kärnten | Nockberge</div>
<p>Die Hütte liegt auf 1.450 m Seehöhe und bietet Platz für 6 Personen.</p>
<p>Homepage: <a href="https://www.kogel-alm.at">www.kogel-alm.at</a></p>
<img src="https://www.huettenland.com/uploads/kogel-1.jpg">
<img src="https://cdn.example.net/banner.jpg">
</body></html>`

func huettenlandServer(t *testing.T, gallery http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/huette/4711/almhuette-kogel.html", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(kogelHTML))
	})
	mux.HandleFunc("/services/myservices.php", gallery)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHuettenland_Scrape(t *testing.T) {
	srv := huettenlandServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "getimgs", r.URL.Query().Get("todo"))
		assert.Equal(t, "4711", r.URL.Query().Get("objektID"))
		assert.Equal(t, "XMLHttpRequest", r.Header.Get("X-Requested-With"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"src":"https://img.huettenland.com/1.jpg"},{"url":"https://img.huettenland.com/2.jpg"},{"caption":"x"}]`))
	})
	pageURL := srv.URL + "/huette/4711/almhuette-kogel.html"

	l, err := NewHuettenland(testFetcher(), srv.URL).Scrape(context.Background(), pageURL)
	require.NoError(t, err)

	assert.Equal(t, "Almhütte Kogel", l.Name)
	assert.Equal(t, pageURL, l.PlatformURL)
	assert.Equal(t, "https://www.kogel-alm.at", l.OwnWebsiteURL)
	assert.Equal(t, "Kärnten, Nockberge", l.Region)
	assert.Equal(t, "1.450 m Seehöhe", l.Elevation)
	assert.Equal(t, "für 6 Personen", l.Capacity)
	assert.Equal(t, "Almhütte in den Nockbergen.", l.Description)
	assert.Equal(t, []string{"https://img.huettenland.com/1.jpg", "https://img.huettenland.com/2.jpg"}, l.Images)
	assert.Nil(t, l.Coordinates)
	assert.Empty(t, l.Price)
	assert.Nil(t, l.Rating)
	assert.Equal(t, HuettenlandDomain, l.Platform)
}

func TestHuettenland_GalleryHTMLFragment(t *testing.T) {
	srv := huettenlandServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<div><img src="https://img.huettenland.com/a.jpg"><img data-src="https://img.huettenland.com/b.png"></div>`))
	})

	l, err := NewHuettenland(testFetcher(), srv.URL).Scrape(context.Background(), srv.URL+"/huette/4711/almhuette-kogel.html")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://img.huettenland.com/a.jpg", "https://img.huettenland.com/b.png"}, l.Images)
}

func TestHuettenland_GalleryFailureFallsBackToPage(t *testing.T) {
	srv := huettenlandServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	l, err := NewHuettenland(testFetcher(), srv.URL).Scrape(context.Background(), srv.URL+"/huette/4711/almhuette-kogel.html")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.huettenland.com/uploads/kogel-1.jpg"}, l.Images)
}

func TestHuettenlandElevation(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Lage auf 1.450 m ü. M. im Wald", "1.450 m ü. M."},
		{"Höhe: 1200 m, Zufahrt", "1200 m"},
		{"Parkplatz 50 m entfernt, Hütte auf 1.800 m gelegen", "1.800 m"},
		{"Parkplatz 50 m entfernt", ""},
		{"keine Angabe", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, huettenlandElevation(tt.text), tt.text)
	}
}
