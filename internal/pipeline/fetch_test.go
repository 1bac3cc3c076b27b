package pipeline

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testArticleHTML = `<html><head><title>Incautan cocaína | Diario</title>
<meta property="article:published_time" content="2024-03-15T10:00:00Z"></head>
<body>
<nav><p>Menú principal</p></nav>
<header><h1>Diario</h1></header>
<article>
  <h1>Incautan cocaína en el Callao</h1>
  <p>La policía incautó 500 kilogramos de cocaína.</p>
  <script>var tracking = 1;</script>
  <ul><li>Dato   uno</li><li><p>Dato dos</p></li></ul>
  <p>La policía incautó 500 kilogramos de cocaína.</p>
</article>
<footer><p>Copyright</p></footer>
</body></html>`

func newTestFetcher(srv *httptest.Server) *HTTPFetcher {
	return NewHTTPFetcher(HTTPConfig{UserAgent: "narco-relay-test", Client: srv.Client()}, 0, nil)
}

func TestHTTPFetcher_FetchHTML(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, testArticleHTML)
	}))
	defer srv.Close()

	text, err := newTestFetcher(srv).Fetch(context.Background(), srv.URL+"/nota", "goal")
	require.NoError(t, err)
	assert.Equal(t, "narco-relay-test", gotUA)
	assert.Equal(t, strings.Join([]string{
		"Incautan cocaína | Diario",
		"Incautan cocaína en el Callao",
		"La policía incautó 500 kilogramos de cocaína.",
		"Dato uno",
		"Dato dos",
		"2024-03-15T10:00:00Z",
	}, "\n"), text)
}

func TestHTTPFetcher_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newTestFetcher(srv).Fetch(context.Background(), srv.URL+"/missing", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestHTTPFetcher_InvalidURL(t *testing.T) {
	f := NewHTTPFetcher(HTTPConfig{}, 0, nil)
	_, err := f.Fetch(context.Background(), "not a url", "")
	assert.Error(t, err)
}

func TestHTTPFetcher_CircuitOpensAfterConsecutiveFailures(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	f := newTestFetcher(srv)
	for i := 0; i < 3; i++ {
		_, err := f.Fetch(context.Background(), srv.URL, "")
		require.Error(t, err)
	}
	_, err := f.Fetch(context.Background(), srv.URL, "")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestHTTPFetcher_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, testArticleHTML)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPConfig{Client: srv.Client()}, 0.001, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Fetch(ctx, srv.URL, "")
	assert.Error(t, err)
}

func TestExtractPageText_BodyFallback(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		"<html><body><div>Hola   mundo</div>\n\n<div>\tsegunda línea</div></body></html>"))
	require.NoError(t, err)
	assert.Equal(t, "Hola mundo\nsegunda línea", ExtractPageText(doc))
}

func TestIsPDF(t *testing.T) {
	assert.True(t, isPDF("application/pdf", "https://a.pe/x"))
	assert.True(t, isPDF("", "https://a.pe/informe.PDF"))
	assert.False(t, isPDF("text/html", "https://a.pe/nota"))
}
