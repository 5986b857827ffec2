package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathiasgse/screenfree/internal/model"
	"github.com/mathiasgse/screenfree/internal/rubric"
)

func TestReadURLs(t *testing.T) {
	in := `# Tirol
https://www.huetten.com/at/tirol/a

  https://www.huettenland.com/huette/1/  
# done
`
	urls, err := readURLs(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://www.huetten.com/at/tirol/a",
		"https://www.huettenland.com/huette/1/",
	}, urls)
}

func TestFormatRuns(t *testing.T) {
	var buf bytes.Buffer
	formatRuns(&buf, []model.Run{
		{
			ID:        "0f8c2a8e-1111-2222-3333-444455556666",
			Preset:    "Tirol",
			Status:    model.RunRunning,
			StartedAt: time.Now(),
			Progress:  model.RunProgress{Phase: model.PhaseProcessing, Processed: 5, Total: 40},
			Stats:     model.RunStats{CandidatesFound: 40, NewCandidates: 3},
		},
		{
			ID:           "short",
			Preset:       "All regions",
			Status:       model.RunFailed,
			StartedAt:    time.Now(),
			ErrorMessage: strings.Repeat("x", 80),
		},
	})

	out := buf.String()
	assert.Contains(t, out, "0f8c2a8e ")
	assert.NotContains(t, out, "0f8c2a8e-1111")
	assert.Contains(t, out, "processing 5/40")
	assert.Contains(t, out, strings.Repeat("x", 47)+"...")
	assert.NotContains(t, out, strings.Repeat("x", 48))
}

func TestFormatCandidates(t *testing.T) {
	var buf bytes.Buffer
	formatCandidates(&buf, []model.Candidate{{
		ID:           "c1",
		Name:         "Berghof Alleinlage",
		QualityScore: 82,
		Status:       model.StatusMaybe,
		RegionGuess:  "Tirol / Ötztal",
		WebsiteURL:   "https://berghof.at/",
		RiskFlags:    []string{"a", "b"},
	}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[2], "82")
	assert.Contains(t, lines[2], "Berghof Alleinlage")
	assert.True(t, strings.HasSuffix(lines[2], "2"))
}

func TestClip(t *testing.T) {
	assert.Equal(t, "Seehaus", clip("Seehaus", 10))
	assert.Equal(t, "Almhü...", clip("Almhütte Sonnberg", 8))
}

func TestFormatPresets(t *testing.T) {
	var buf bytes.Buffer
	formatPresets(&buf, rubric.MustLoad())
	out := buf.String()
	assert.Contains(t, out, "KEY")
	assert.Contains(t, out, "tyrol")
	assert.Contains(t, out, "AT")
}
