// =============================================================================
// pipeline.go - インシデント抽出パイプライン（オーケストレーター）
// =============================================================================
//
// 1回の実行（Run）で以下を順番に行います。
//
//   ┌────────────┐   ┌────────────┐   ┌────────────┐   ┌────────────┐
//   │ 1. クエリ  │ → │ 2. 検索    │ → │ 3. リンク  │ → │ 4. 国      │
//   │    生成    │   │   （1回）  │   │    抽出    │   │  プレフィルタ│
//   └────────────┘   └────────────┘   └────────────┘   └────────────┘
//                                                             │
//   ┌────────────┐   ┌────────────┐   ┌────────────┐   ┌────────────┐
//   │ 8. 追加    │ ← │ 7. 重複    │ ← │ 6. 抽出・  │ ← │ 5. ページ  │
//   │  （出力へ）│   │    判定    │   │   分類・検証│   │    取得    │
//   └────────────┘   └────────────┘   └────────────┘   └────────────┘
//
// =============================================================================
// 【実行ごとの状態】
// =============================================================================
//
// ID連番・処理済みURL・DuplicateDetector は runState として Run の中で作り、
// 実行が終われば捨てます。IncidentPipeline 自体は参照データとポリシーしか
// 持たないので、同じインスタンスで複数の Run を並行に呼んでも干渉しません。
//
// =============================================================================
// 【失敗の扱い】
// =============================================================================
//
//	検索の失敗        → 警告ログ。検索結果なしとして続行（空のバッチ）
//	ページ取得の失敗  → 本文なし（""）として続行
//	抽出中のpanic     → *ExtractionError として警告ログ、その候補だけ破棄
//	検証で不合格      → ログ（debug）のみで破棄。エラーではない
//	ctx のキャンセル  → それまでのバッチと ctx.Err() を返す
//
// ID は検証の前に採番するため、出力のIDは連続しないことがある。
//
// =============================================================================
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IncidentPipeline は検索 → 取得 → 抽出 → 分類 → 重複判定を行うオーケストレーター
type IncidentPipeline struct {
	ref        *ReferenceData
	policy     Policy
	searcher   Searcher
	fetcher    Fetcher
	geocoder   Geocoder
	classifier RelevanceClassifier
	extractor  FieldExtractor
	logger     *zap.Logger
	now        func() time.Time
}

// Option は IncidentPipeline の任意設定
type Option func(*IncidentPipeline)

// WithPolicy はポリシーを差し替える（既定は DefaultPolicy）
func WithPolicy(p Policy) Option {
	return func(ip *IncidentPipeline) { ip.policy = p }
}

// WithGeocoder は座標解決に使う Geocoder を設定する
//
// 未設定の場合、国レベルの座標だけを国テーブルの Geo 列から埋める。
func WithGeocoder(g Geocoder) Option {
	return func(ip *IncidentPipeline) { ip.geocoder = g }
}

// WithLogger はロガーを設定する（既定は zap.NewNop）
func WithLogger(l *zap.Logger) Option {
	return func(ip *IncidentPipeline) {
		if l != nil {
			ip.logger = l
		}
	}
}

// WithClock は「現在時刻」の取得関数を差し替える（日付の既定値に使う）
func WithClock(now func() time.Time) Option {
	return func(ip *IncidentPipeline) {
		if now != nil {
			ip.now = now
		}
	}
}

// NewIncidentPipeline はパイプラインを作成する
func NewIncidentPipeline(ref *ReferenceData, s Searcher, f Fetcher, opts ...Option) *IncidentPipeline {
	ip := &IncidentPipeline{
		ref:      ref,
		policy:   DefaultPolicy(),
		searcher: s,
		fetcher:  f,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(ip)
	}
	ip.classifier = NewRelevanceClassifier(ip.policy.Relevance)
	ip.extractor = NewFieldExtractor(ref)
	return ip
}

// Policy は使用中のポリシーを返す
func (ip *IncidentPipeline) Policy() Policy { return ip.policy }

// runState は1回の実行だけが持つ可変状態
type runState struct {
	counter   int
	seenURLs  map[string]bool
	detector  *DuplicateDetector
	incidents []Incident
}

func (st *runState) nextID() string {
	st.counter++
	return fmt.Sprintf("A%07d", st.counter)
}

// Run は過去 daysBack 日を対象に1回の収集を実行する
//
// 返すエラーは ctx のキャンセルのみ。その場合も途中までの結果を返す。
func (ip *IncidentPipeline) Run(ctx context.Context, daysBack int) (RunResult, error) {
	if daysBack <= 0 {
		daysBack = DefaultDaysBack
	}
	res := RunResult{
		RunID:     uuid.NewString(),
		StartedAt: ip.now(),
		Queries:   BuildSearchQueries(ip.policy.Query, daysBack),
	}
	log := ip.logger.With(zap.String("run_id", res.RunID))
	st := &runState{
		seenURLs: map[string]bool{},
		detector: NewDuplicateDetector(ip.policy.DuplicateThreshold),
	}

	finish := func(err error) (RunResult, error) {
		res.Considered = st.counter
		res.Incidents = st.incidents
		if res.Incidents == nil {
			res.Incidents = []Incident{}
		}
		res.Summary = Summarize(res.Incidents)
		res.FinishedAt = ip.now()
		return res, err
	}

	log.Info("search started", zap.Int("queries", len(res.Queries)), zap.Int("days_back", daysBack))
	blob, err := ip.searcher.Search(ctx, res.Queries)
	if err != nil {
		if ctx.Err() != nil {
			return finish(ctx.Err())
		}
		log.Warn("search failed, continuing with whatever was returned", zap.Error(err))
	}

	for _, section := range SplitSections(blob) {
		for _, link := range ExtractLinks(section) {
			if err := ctx.Err(); err != nil {
				return finish(err)
			}
			ip.handleLink(ctx, log, st, link)
		}
	}

	log.Info("run completed",
		zap.Int("considered", st.counter),
		zap.Int("incidents", len(st.incidents)),
		zap.Int("originals", st.detector.Len()))
	return finish(nil)
}

// handleLink は候補リンク1件を処理し、受理されれば st.incidents に追加する
func (ip *IncidentPipeline) handleLink(ctx context.Context, log *zap.Logger, st *runState, link CandidateLink) {
	if link.URL == "" || st.seenURLs[link.URL] {
		return
	}
	st.seenURLs[link.URL] = true

	if !ip.passesCountryPrefilter(link.Title + " " + link.Section) {
		log.Debug("skipped by country prefilter", zap.String("url", link.URL))
		return
	}

	content, err := ip.fetcher.Fetch(ctx, link.URL, ip.policy.FetchGoal)
	if err != nil {
		log.Warn("fetch failed, treating as no content", zap.String("url", link.URL), zap.Error(err))
		content = ""
	}

	inc, ok, err := ip.processCandidate(ctx, st, link, content)
	if err != nil {
		var xe *ExtractionError
		if errors.As(err, &xe) {
			log.Warn("candidate dropped", zap.String("id", xe.ID), zap.String("url", xe.URL), zap.Error(xe.Err))
		}
		return
	}
	if !ok {
		log.Debug("candidate rejected by validation", zap.String("id", inc.ID), zap.String("url", link.URL))
		return
	}

	if dup, of, score := st.detector.Evaluate(inc); dup {
		inc.DuplicateOf = of
		inc.SimilarityScore = score
		log.Info("duplicate detected",
			zap.String("id", inc.ID), zap.String("duplicate_of", of), zap.Float64("similarity", score))
	} else {
		st.detector.Add(inc)
	}
	st.incidents = append(st.incidents, inc)
	log.Info("incident accepted",
		zap.String("id", inc.ID),
		zap.String("country", inc.OriginCountry),
		zap.String("relevance", string(inc.Relevance)),
		zap.String("title", truncateString(inc.Title, 60)))
}

// passesCountryPrefilter は検索結果の文脈が対象国に触れているかを返す
//
// ポリシーにプレフィルタ国名が無い場合は参照データの国一覧で判定する。
func (ip *IncidentPipeline) passesCountryPrefilter(text string) bool {
	if len(ip.policy.PrefilterCountries) == 0 {
		return ip.ref.IsTargetCountry(text)
	}
	lower := strings.ToLower(text)
	for _, c := range ip.policy.PrefilterCountries {
		if c != "" && strings.Contains(lower, strings.ToLower(c)) {
			return true
		}
	}
	return false
}

// processCandidate はIDを採番し、フィールド抽出・分類・検証・座標解決を行う
//
// ok=false は検証で不合格。抽出中の panic は *ExtractionError に変換する。
func (ip *IncidentPipeline) processCandidate(ctx context.Context, st *runState, link CandidateLink, content string) (inc Incident, ok bool, err error) {
	id := st.nextID()
	defer func() {
		if r := recover(); r != nil {
			inc, ok = Incident{ID: id, URL: link.URL}, false
			err = &ExtractionError{ID: id, URL: link.URL, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	inc = ip.buildIncident(id, link, content)
	if !validIncident(inc) {
		return inc, false, nil
	}
	inc.Coordinates = ip.resolveCoordinates(ctx, inc.Location)
	return inc, true, nil
}

// buildIncident は本文と検索文脈からインシデントを組み立てる
func (ip *IncidentPipeline) buildIncident(id string, link CandidateLink, content string) Incident {
	fx := ip.extractor
	titleContent := link.Title + " " + content

	country := fx.Country(content + " " + link.Section)
	keywords := fx.Keywords(titleContent)
	category, substance := fx.Substance(titleContent)
	quantity, unit := ExtractQuantity(content)

	inc := Incident{
		ID:                id,
		Title:             strings.TrimSpace(link.Title),
		Description:       ExtractDescription(content),
		PublicationDate:   ExtractDate(content, ip.now()),
		SourceDomain:      ExtractMediaSource(link.URL),
		URL:               link.URL,
		OriginCountry:     country,
		Relevance:         ip.classifier.Classify(link.Title, content, keywords),
		Keywords:          keywords,
		SubstanceCategory: category,
		SubstanceType:     substance,
		Quantity:          quantity,
		Unit:              unit,
		Location:          ExtractLocation(content, country),
	}
	if info, found := ip.ref.CountryInfo(country); found && country != Unspecified {
		inc.ISOCode = info.Code
		inc.Region = info.Region
	}
	return inc
}

// validIncident は受理条件（タイトルあり・国が特定済み・関連度が有効・キーワード1件以上）
func validIncident(i Incident) bool {
	return strings.TrimSpace(i.Title) != "" &&
		i.OriginCountry != Unspecified && i.OriginCountry != "" &&
		i.Relevance.Valid() &&
		len(i.Keywords) > 0
}

// resolveCoordinates は国・州/県・地区それぞれの座標を埋める
//
// 国レベルは国テーブルの Geo 列を優先する。ジオコーディングの失敗は無視する。
func (ip *IncidentPipeline) resolveCoordinates(ctx context.Context, loc Location) Coordinates {
	var c Coordinates
	if info, ok := ip.ref.CountryInfo(loc.Country); ok {
		if pt, ok := ParseGeoColumn(info.Coordinates); ok {
			c.Country = pt.String()
		}
	}
	if ip.geocoder == nil {
		return c
	}

	lookup := func(p Place) string {
		pt, found, err := ip.geocoder.Geocode(ctx, p)
		if err != nil {
			ip.logger.Debug("geocode failed", zap.String("place", p.String()), zap.Error(err))
			return ""
		}
		if !found {
			return ""
		}
		return pt.String()
	}

	if c.Country == "" && loc.Country != "" {
		c.Country = lookup(Place{Country: loc.Country})
	}
	if loc.Province != "" {
		c.Province = lookup(Place{Country: loc.Country, Province: loc.Province})
	}
	if loc.District != "" {
		c.District = lookup(Place{Country: loc.Country, Province: loc.Province, District: loc.District})
	}
	return c
}
