package pipeline

import (
	"errors"
	"flag"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseTestFlags(t *testing.T, args ...string) (*PipelineConfig, error) {
	t.Helper()
	fs := flag.NewFlagSet("pipeline", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return parseFlags(fs, args)
}

func TestParseFlags_Defaults(t *testing.T) {
	cfg, err := parseTestFlags(t)
	require.NoError(t, err)

	assert.Equal(t, DefaultKeywordsFile, cfg.Input.KeywordsFile)
	assert.Equal(t, DefaultCountriesFile, cfg.Input.CountriesFile)
	assert.Equal(t, ProviderOpenAI, cfg.Search.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.Search.OpenAIModel)
	assert.Equal(t, "weekly", cfg.Matching.Scan)
	assert.Equal(t, 2.0, cfg.FetchRate)
	assert.False(t, cfg.Output.NotionClip)
}

func TestParseFlags_Values(t *testing.T) {
	cfg, err := parseTestFlags(t,
		"-searchProvider", "gnews",
		"-daysBack", "10",
		"-threshold", "0.8",
		"-maxQueries", "5",
		"-csv", "out/scan",
		"-notionClip",
		"-debug",
	)
	require.NoError(t, err)
	assert.Equal(t, ProviderGNews, cfg.Search.Provider)
	assert.Equal(t, 10, cfg.Matching.DaysBack)
	assert.Equal(t, 0.8, cfg.Matching.Threshold)
	assert.Equal(t, 5, cfg.Search.MaxQueries)
	assert.Equal(t, "out/scan", cfg.Output.CSVPrefix)
	assert.True(t, cfg.Output.NotionClip)
	assert.True(t, cfg.Debug)

	_, err = parseTestFlags(t, "-unknown")
	assert.Error(t, err)
	_, err = parseTestFlags(t, "-h")
	assert.True(t, errors.Is(err, flag.ErrHelp))
}

func TestResolveDaysBack(t *testing.T) {
	tests := []struct {
		name     string
		scan     string
		daysBack int
		want     int
		wantErr  bool
	}{
		{"default", "", 0, 7, false},
		{"quick", "quick", 0, 3, false},
		{"case insensitive", " Extended ", 0, 14, false},
		{"custom overrides scan", "quick", 20, 20, false},
		{"custom lower bound", "", 1, 1, false},
		{"custom upper bound", "", 30, 30, false},
		{"custom too large", "", 31, 0, true},
		{"custom negative", "", -1, 0, true},
		{"unknown scan", "monthly", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &PipelineConfig{Matching: MatchingConfig{Scan: tt.scan, DaysBack: tt.daysBack}}
			got, err := cfg.ResolveDaysBack()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveDaysBack_UnknownListsPresets(t *testing.T) {
	cfg := &PipelineConfig{Matching: MatchingConfig{Scan: "monthly"}}
	_, err := cfg.ResolveDaysBack()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extended, quick, weekly")
}

func TestApplyTo(t *testing.T) {
	base := DefaultPolicy()

	p := (&PipelineConfig{}).ApplyTo(base)
	assert.Equal(t, base, p)

	cfg := &PipelineConfig{
		Search:   SearchConfig{MaxQueries: 4},
		Matching: MatchingConfig{Threshold: 0.85},
	}
	p = cfg.ApplyTo(base)
	assert.Equal(t, 4, p.Query.MaxQueries)
	assert.Equal(t, 0.85, p.DuplicateThreshold)
	assert.Equal(t, 15, base.Query.MaxQueries, "input policy untouched")
}

func validSetupConfig(t *testing.T) *PipelineConfig {
	t.Helper()
	return &PipelineConfig{
		Input: InputConfig{
			KeywordsFile:  writeTempFile(t, "keywords.csv", testKeywordsCSV),
			CountriesFile: writeTempFile(t, "countries.csv", testCountriesCSV),
		},
		Search:   SearchConfig{Provider: ProviderGNews},
		Matching: MatchingConfig{Scan: "weekly"},
	}
}

func TestVerifySetup(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("NOTION_TOKEN", "")
	t.Setenv("EMAIL_FROM", "")
	t.Setenv("EMAIL_PASSWORD", "")
	t.Setenv("EMAIL_TO", "")

	assert.NoError(t, validSetupConfig(t).VerifySetup())

	tests := []struct {
		name   string
		mutate func(*PipelineConfig)
		want   string
	}{
		{"missing keywords path", func(c *PipelineConfig) { c.Input.KeywordsFile = "" }, "keywords file is required"},
		{"missing countries file", func(c *PipelineConfig) { c.Input.CountriesFile = filepath.Join(t.TempDir(), "none.csv") }, "countries file"},
		{"missing policy file", func(c *PipelineConfig) { c.Input.PolicyFile = filepath.Join(t.TempDir(), "p.yaml") }, "policy file"},
		{"openai without key", func(c *PipelineConfig) { c.Search.Provider = ProviderOpenAI }, "OPENAI_API_KEY"},
		{"unknown provider", func(c *PipelineConfig) { c.Search.Provider = "bing" }, "unknown search provider"},
		{"notion without token", func(c *PipelineConfig) { c.Output.NotionClip = true }, "NOTION_TOKEN"},
		{"email without env", func(c *PipelineConfig) { c.Notify.SendEmail = true }, "EMAIL_PASSWORD"},
		{"bad days back", func(c *PipelineConfig) { c.Matching.DaysBack = 99 }, "daysBack"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validSetupConfig(t)
			tt.mutate(cfg)
			err := cfg.VerifySetup()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestVerifySetup_ReportsAllProblems(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("NOTION_TOKEN", "")

	cfg := validSetupConfig(t)
	cfg.Search.Provider = ProviderOpenAI
	cfg.Output.NotionClip = true
	err := cfg.VerifySetup()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
	assert.Contains(t, err.Error(), "NOTION_TOKEN")

	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("NOTION_TOKEN", "secret")
	assert.NoError(t, cfg.VerifySetup())
}

func TestConfigFromEnv(t *testing.T) {
	env := map[string]string{
		"SEARCH_PROVIDER":     "gnews",
		"SCAN":                "quick",
		"MAX_QUERIES":         "6",
		"DUPLICATE_THRESHOLD": "0.8",
		"FETCH_RATE":          "0.5",
		"NOTION_TOKEN":        "secret",
		"NOTION_DATABASE_ID":  "db-1",
		"EMAIL_FROM":          "bot@example.com",
		"EMAIL_PASSWORD":      "p",
	}
	cfg, err := ConfigFromEnv(func(k string) string { return env[k] })
	require.NoError(t, err)

	assert.Equal(t, DefaultKeywordsFile, cfg.Input.KeywordsFile)
	assert.Equal(t, ProviderGNews, cfg.Search.Provider)
	assert.Equal(t, "quick", cfg.Matching.Scan)
	assert.Equal(t, 6, cfg.Search.MaxQueries)
	assert.Equal(t, 0.8, cfg.Matching.Threshold)
	assert.Equal(t, 0.5, cfg.FetchRate)
	assert.True(t, cfg.Output.NotionClip)
	assert.Equal(t, "db-1", cfg.Output.NotionDatabaseID)
	assert.False(t, cfg.Notify.SendEmail, "EMAIL_TO is missing")

	days, err := cfg.ResolveDaysBack()
	require.NoError(t, err)
	assert.Equal(t, 3, days)
}

func TestConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := ConfigFromEnv(func(string) string { return "" })
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, cfg.Search.Provider)
	assert.Equal(t, "weekly", cfg.Matching.Scan)
	assert.Equal(t, 2.0, cfg.FetchRate)
	assert.False(t, cfg.Output.NotionClip)
}

func TestConfigFromEnv_InvalidNumbers(t *testing.T) {
	for _, key := range []string{"MAX_QUERIES", "DAYS_BACK", "DUPLICATE_THRESHOLD", "FETCH_RATE"} {
		_, err := ConfigFromEnv(func(k string) string {
			if k == key {
				return "abc"
			}
			return ""
		})
		require.Error(t, err, key)
		assert.Contains(t, err.Error(), key)
	}
}
