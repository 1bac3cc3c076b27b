package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// テスト用の検索結果とページ
// -----------------------------------------------------------------------------

const callaoContent = "Publicado el 15/03/2024\n" +
	"La policía del Peru incautó 500 kg de cocaína en Callao, Lima. Se detuvo a dos personas."

var testSearchBlob = joinSections([]string{
	"## cocaína decomiso\nPolicía Nacional del Peru\n" +
		formatLink("Decomiso de cocaína en Callao", "https://a.pe/1") + "\n" +
		formatLink("Decomiso de cocaína en Callao", "https://b.pe/2"),
	"## lluvias\n" + formatLink("Lluvias en Quito", "https://c.ec/3"),
	"## marihuana\n" + formatLink("Incautan marihuana en Colombia", "https://d.co/4"),
	"## reunión\n" + formatLink("Reunión en Lima sobre Peru", "https://e.pe/5"),
	"## tusi\n" + formatLink("Decomiso de cocaína en Callao", "https://a.pe/1") + "\n" +
		formatLink("Decomisan tusi en Cuba", "https://f.cu/6"),
	"## narcos\n" + formatLink("Capturan narcos en Mexico", "https://g.mx/7"),
})

// fakeWeb は URL → 本文の固定マップで、取得したURLを記録する
type fakeWeb struct {
	mu      sync.Mutex
	pages   map[string]string
	fetched []string
}

func newFakeWeb() *fakeWeb {
	return &fakeWeb{pages: map[string]string{
		"https://a.pe/1": callaoContent,
		"https://b.pe/2": callaoContent,
		"https://c.ec/3": "Lluvias intensas en Quito.",
		// d.co/4 は取得失敗
		"https://e.pe/5": "Reunión diplomática sin relación con el tema central.",
		"https://f.cu/6": "Publicado el 10/03/2024\nDecomisan tusi en La Habana, Cuba",
		"https://g.mx/7": "Incautan cocaína en Sinaloa",
	}}
}

func (w *fakeWeb) Fetch(_ context.Context, url, _ string) (string, error) {
	w.mu.Lock()
	w.fetched = append(w.fetched, url)
	w.mu.Unlock()
	if c, ok := w.pages[url]; ok {
		return c, nil
	}
	return "", errors.New("connection refused")
}

func (w *fakeWeb) fetchedURLs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string{}, w.fetched...)
}

func staticSearcher(blob string) SearcherFunc {
	return func(context.Context, []string) (string, error) { return blob, nil }
}

func newTestPipeline(t *testing.T, s Searcher, f Fetcher, opts ...Option) *IncidentPipeline {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewIncidentPipeline(testReferenceData(t), s, f, opts...)
}

func incidentIDs(incs []Incident) []string {
	ids := make([]string, 0, len(incs))
	for _, i := range incs {
		ids = append(ids, i.ID)
	}
	return ids
}

// -----------------------------------------------------------------------------
// Run
// -----------------------------------------------------------------------------

func TestIncidentPipeline_Run(t *testing.T) {
	web := newFakeWeb()
	var gotQueries []string
	s := SearcherFunc(func(_ context.Context, qs []string) (string, error) {
		gotQueries = qs
		return testSearchBlob, nil
	})

	res, err := newTestPipeline(t, s, web).Run(context.Background(), 3)
	require.NoError(t, err)

	require.Len(t, gotQueries, 15)
	assert.Equal(t, gotQueries, res.Queries)
	assert.Contains(t, gotQueries[0], "últimos 3 días")
	assert.NotEmpty(t, res.RunID)

	// A0000004（キーワードなし）と A0000006（国不明）は検証で不合格
	assert.Equal(t, []string{"A0000001", "A0000002", "A0000003", "A0000005"}, incidentIDs(res.Incidents))
	assert.Equal(t, 6, res.Considered)

	first := res.Incidents[0]
	assert.Equal(t, "Decomiso de cocaína en Callao", first.Title)
	assert.Equal(t, "15/03/2024", first.PublicationDate)
	assert.Equal(t, "a.pe", first.SourceDomain)
	assert.Equal(t, "Peru", first.OriginCountry)
	assert.Equal(t, "PE", first.ISOCode)
	assert.Equal(t, "America del Sur", first.Region)
	assert.Equal(t, RelevanceHigh, first.Relevance)
	assert.Equal(t, []string{"cocaína"}, first.Keywords)
	assert.Equal(t, "Cocaína", first.SubstanceCategory)
	assert.Equal(t, "cocaína", first.SubstanceType)
	assert.Equal(t, "500", first.Quantity)
	assert.Equal(t, "kg", first.Unit)
	assert.Equal(t, Location{Country: "Peru", Province: "Lima", District: "Callao"}, first.Location)
	assert.Equal(t, Coordinates{Country: "-9.19, -75.0152"}, first.Coordinates)
	assert.False(t, first.IsDuplicate())
	assert.Zero(t, first.SimilarityScore)

	dup := res.Incidents[1]
	assert.Equal(t, "A0000001", dup.DuplicateOf)
	assert.InDelta(t, 1.0, dup.SimilarityScore, 1e-9)

	// 取得に失敗しても検索結果の文脈だけで受理されうる
	colombia := res.Incidents[2]
	assert.Equal(t, "Colombia", colombia.OriginCountry)
	assert.Equal(t, "", colombia.Description)
	assert.Equal(t, "20/03/2024", colombia.PublicationDate)
	assert.Equal(t, "4.5709, -74.2973", colombia.Coordinates.Country)

	cuba := res.Incidents[3]
	assert.Equal(t, "Cuba", cuba.OriginCountry)
	assert.Equal(t, Location{Country: "Cuba", Province: "Cuba", District: "La Habana"}, cuba.Location)
	assert.Empty(t, cuba.Coordinates.Country, "Cuba has no Geo column")
	assert.False(t, cuba.IsDuplicate())

	fetched := web.fetchedURLs()
	assert.NotContains(t, fetched, "https://c.ec/3", "prefilter must skip before fetching")
	assert.Len(t, fetched, 6, "repeated URLs are fetched once")

	assert.Equal(t, 4, res.Summary.Total)
	assert.Equal(t, 1, res.Summary.Duplicates)
	assert.False(t, res.FinishedAt.Before(res.StartedAt))
}

func TestIncidentPipeline_Run_ReferencePrefilter(t *testing.T) {
	p := DefaultPolicy()
	p.PrefilterCountries = nil

	web := newFakeWeb()
	res, err := newTestPipeline(t, staticSearcher(testSearchBlob), web, WithPolicy(p)).Run(context.Background(), 7)
	require.NoError(t, err)

	// Mexico は参照データの対象国に無いので取得前に落ちる
	assert.NotContains(t, web.fetchedURLs(), "https://g.mx/7")
	assert.Equal(t, 5, res.Considered)
	assert.Len(t, res.Incidents, 4)
}

func TestIncidentPipeline_Run_DefaultDaysBack(t *testing.T) {
	res, err := newTestPipeline(t, staticSearcher(""), newFakeWeb()).Run(context.Background(), 0)
	require.NoError(t, err)
	require.NotEmpty(t, res.Queries)
	assert.Contains(t, res.Queries[0], "últimos 7 días")
}

func TestIncidentPipeline_Run_SearchFailure(t *testing.T) {
	s := SearcherFunc(func(context.Context, []string) (string, error) {
		return "", errors.New("quota exceeded")
	})
	res, err := newTestPipeline(t, s, newFakeWeb()).Run(context.Background(), 7)
	require.NoError(t, err)
	assert.NotNil(t, res.Incidents)
	assert.Empty(t, res.Incidents)
	assert.Zero(t, res.Considered)
	assert.Zero(t, res.Summary.Total)
}

func TestIncidentPipeline_Run_PartialSearch(t *testing.T) {
	s := SearcherFunc(func(context.Context, []string) (string, error) {
		return testSearchBlob, errors.New("2 of 15 queries failed")
	})
	res, err := newTestPipeline(t, s, newFakeWeb()).Run(context.Background(), 7)
	require.NoError(t, err)
	assert.Len(t, res.Incidents, 4)
}

func TestIncidentPipeline_Run_PanicIsContained(t *testing.T) {
	g := GeocoderFunc(func(_ context.Context, p Place) (GeoPoint, bool, error) {
		if p.Country == "Cuba" {
			panic("geocoder exploded")
		}
		return GeoPoint{Latitude: "-12.0500", Longitude: "-77.1200"}, true, nil
	})

	res, err := newTestPipeline(t, staticSearcher(testSearchBlob), newFakeWeb(), WithGeocoder(g)).
		Run(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, []string{"A0000001", "A0000002", "A0000003"}, incidentIDs(res.Incidents))
	assert.Equal(t, 6, res.Considered)
	assert.Equal(t, Coordinates{
		Country:  "-9.19, -75.0152",
		Province: "-12.0500, -77.1200",
		District: "-12.0500, -77.1200",
	}, res.Incidents[0].Coordinates)
}

func TestIncidentPipeline_Run_GeocoderFailureIgnored(t *testing.T) {
	var mu sync.Mutex
	var places []string
	g := GeocoderFunc(func(_ context.Context, p Place) (GeoPoint, bool, error) {
		mu.Lock()
		places = append(places, p.String())
		mu.Unlock()
		if p.Country == "Cuba" {
			return GeoPoint{}, false, errors.New("no results")
		}
		return GeoPoint{}, false, nil
	})

	res, err := newTestPipeline(t, staticSearcher(testSearchBlob), newFakeWeb(), WithGeocoder(g)).
		Run(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, res.Incidents, 4)
	assert.Equal(t, Coordinates{Country: "-9.19, -75.0152"}, res.Incidents[0].Coordinates)
	assert.Empty(t, res.Incidents[3].Coordinates.Country)

	// 国の座標は Geo 列が無い場合だけ問い合わせる
	assert.Contains(t, places, "Cuba")
	assert.Contains(t, places, "Callao, Lima, Peru")
	assert.NotContains(t, places, "Peru")
	assert.NotContains(t, places, "Colombia")
}

func TestIncidentPipeline_Run_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	web := newFakeWeb()
	f := FetcherFunc(func(ctx context.Context, url, goal string) (string, error) {
		cancel()
		return web.Fetch(ctx, url, goal)
	})

	res, err := newTestPipeline(t, staticSearcher(testSearchBlob), f).Run(ctx, 7)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"A0000001"}, incidentIDs(res.Incidents))
	assert.Equal(t, 1, res.Summary.Total)
}

func TestIncidentPipeline_Run_CancelledDuringSearch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := SearcherFunc(func(ctx context.Context, _ []string) (string, error) { return "", ctx.Err() })

	res, err := newTestPipeline(t, s, newFakeWeb()).Run(ctx, 7)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotNil(t, res.Incidents)
	assert.Empty(t, res.Incidents)
}

// 同じパイプラインで並行に Run しても、IDと重複判定は実行ごとに独立
func TestIncidentPipeline_Run_Concurrent(t *testing.T) {
	ip := newTestPipeline(t, staticSearcher(testSearchBlob), newFakeWeb())

	const runs = 4
	results := make([]RunResult, runs)
	errs := make([]error, runs)
	var wg sync.WaitGroup
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = ip.Run(context.Background(), 7)
		}(i)
	}
	wg.Wait()

	for i := 0; i < runs; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, []string{"A0000001", "A0000002", "A0000003", "A0000005"}, incidentIDs(results[i].Incidents))
		assert.Equal(t, 1, results[i].Summary.Duplicates)
	}
	assert.NotEqual(t, results[0].RunID, results[1].RunID)
}

func TestIncidentPipeline_Run_Threshold(t *testing.T) {
	p := DefaultPolicy()
	p.DuplicateThreshold = 1
	res, err := newTestPipeline(t, staticSearcher(testSearchBlob), newFakeWeb(), WithPolicy(p)).
		Run(context.Background(), 7)
	require.NoError(t, err)

	// 完全一致（1.0）はしきい値 1 でも重複
	require.Len(t, res.Incidents, 4)
	assert.Equal(t, "A0000001", res.Incidents[1].DuplicateOf)
}

func TestValidIncident(t *testing.T) {
	ok := Incident{Title: "t", OriginCountry: "Peru", Relevance: RelevanceLow, Keywords: []string{"tusi"}}
	assert.True(t, validIncident(ok))

	for name, mutate := range map[string]func(*Incident){
		"no title":          func(i *Incident) { i.Title = "  " },
		"unspecified":       func(i *Incident) { i.OriginCountry = Unspecified },
		"invalid relevance": func(i *Incident) { i.Relevance = "Critical" },
		"no keywords":       func(i *Incident) { i.Keywords = nil },
	} {
		inc := ok
		mutate(&inc)
		assert.False(t, validIncident(inc), name)
	}
}
