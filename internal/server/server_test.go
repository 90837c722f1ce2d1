package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/54b3r/shopgenie-go/internal/agent"
	"github.com/54b3r/shopgenie-go/internal/cart"
	"github.com/54b3r/shopgenie-go/internal/retrieval"
)

// fakeRetriever records the last search and returns canned results.
type fakeRetriever struct {
	mu             sync.Mutex
	results        *retrieval.Results
	err            error
	categories     []string
	lastQueries    []string
	lastImage      string
	lastCategories []string
	lastK          int
}

func (f *fakeRetriever) RetrieveIn(ctx context.Context, queries []string, image string, categories []string, k int) (*retrieval.Results, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQueries = queries
	f.lastImage = image
	f.lastCategories = categories
	f.lastK = k
	if f.err != nil {
		return nil, f.err
	}
	if f.results != nil {
		return f.results, nil
	}
	return &retrieval.Results{}, nil
}

func (f *fakeRetriever) Categories() []string {
	return f.categories
}

// fakeChatter returns a canned chat response.
type fakeChatter struct {
	resp *agent.Response
	err  error
}

func (f *fakeChatter) Chat(ctx context.Context, userID, message, image string) (*agent.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func sampleResults() *retrieval.Results {
	return &retrieval.Results{
		Texts:        []string{"Red Dress | summer dress | Apparel,Dresses"},
		IDs:          []string{"p1"},
		Similarities: []float32{0.92},
		Names:        []string{"Red Dress"},
		Images:       []string{"img1"},
	}
}

type testServerOpts struct {
	retriever *fakeRetriever
	chatter   chatter
	carts     cart.Store
	cfg       *Config
}

func newTestServer(t *testing.T, opts testServerOpts) (*Server, *fakeRetriever) {
	t.Helper()
	if opts.retriever == nil {
		opts.retriever = &fakeRetriever{results: sampleResults()}
	}
	if opts.cfg == nil {
		opts.cfg = &Config{}
	}
	if opts.cfg.RateLimit == 0 {
		opts.cfg.RateLimit = 1000
		opts.cfg.RateBurst = 1000
	}
	s, err := New(opts.retriever, opts.chatter, opts.carts, opts.cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.stopRL)
	return s, opts.retriever
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "10.0.0.1:54321"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func Test_QueryText_ReturnsParallelArrays(t *testing.T) {
	s, fr := newTestServer(t, testServerOpts{})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/query/text", textQueryRequest{Queries: []string{"red dress", "summer dress"}}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}
	if got := fr.lastQueries; len(got) != 2 || got[0] != "red dress" {
		t.Fatalf("retriever queries = %v", got)
	}

	var body struct {
		Texts        []string  `json:"texts"`
		IDs          []string  `json:"ids"`
		Similarities []float32 `json:"similarities"`
		Names        []string  `json:"names"`
		Images       []string  `json:"images"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.IDs) != 1 || body.IDs[0] != "p1" {
		t.Fatalf("ids = %v, want [p1]", body.IDs)
	}
	if body.Names[0] != "Red Dress" || body.Images[0] != "img1" {
		t.Fatalf("names/images = %v / %v", body.Names, body.Images)
	}
	if len(body.Texts) != 1 || len(body.Similarities) != 1 {
		t.Fatalf("parallel arrays out of sync: %+v", body)
	}
}

func Test_QueryText_CategoriesAndKPassthrough(t *testing.T) {
	fr := &fakeRetriever{results: sampleResults(), categories: []string{"Apparel", "Footwear"}}
	s, _ := newTestServer(t, testServerOpts{retriever: fr})
	h := s.Handler()

	// Omitted categories fall back to the configured list.
	doJSON(t, h, http.MethodPost, "/query/text", textQueryRequest{Queries: []string{"x"}}, nil)
	if len(fr.lastCategories) != 2 || fr.lastCategories[0] != "Apparel" {
		t.Fatalf("default categories = %v", fr.lastCategories)
	}
	if fr.lastK != 0 {
		t.Fatalf("default k = %d, want 0", fr.lastK)
	}

	// Explicit categories and k are passed through verbatim.
	doJSON(t, h, http.MethodPost, "/query/text", textQueryRequest{
		Queries:    []string{"x"},
		Categories: []string{"Footwear"},
		K:          8,
	}, nil)
	if len(fr.lastCategories) != 1 || fr.lastCategories[0] != "Footwear" {
		t.Fatalf("categories = %v, want [Footwear]", fr.lastCategories)
	}
	if fr.lastK != 8 {
		t.Fatalf("k = %d, want 8", fr.lastK)
	}
}

func Test_QueryText_EmptyQueriesRejected(t *testing.T) {
	s, _ := newTestServer(t, testServerOpts{})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/query/text", textQueryRequest{}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func Test_QueryText_RetrieverErrorIs500(t *testing.T) {
	fr := &fakeRetriever{err: context.DeadlineExceeded}
	s, _ := newTestServer(t, testServerOpts{retriever: fr})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/query/text", textQueryRequest{Queries: []string{"x"}}, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func Test_QueryImage_RewritesOctetStreamMIME(t *testing.T) {
	s, fr := newTestServer(t, testServerOpts{})

	img := "data:application/octet-stream;base64,AAAA"
	rec := doJSON(t, s.Handler(), http.MethodPost, "/query/image", imageQueryRequest{Image: img}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}
	if want := "data:image/jpeg;base64,AAAA"; fr.lastImage != want {
		t.Fatalf("image = %q, want %q", fr.lastImage, want)
	}
}

func Test_QueryImage_MissingImageRejected(t *testing.T) {
	s, _ := newTestServer(t, testServerOpts{})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/query/image", imageQueryRequest{Queries: []string{"x"}}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func Test_QueryText_AcceptsWireFieldNames(t *testing.T) {
	s, fr := newTestServer(t, testServerOpts{})

	raw := json.RawMessage(`{"text":["skirt"],"categories":["apparel"],"k":4}`)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/query/text", raw, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}
	if got := fr.lastQueries; len(got) != 1 || got[0] != "skirt" {
		t.Fatalf("retriever queries = %v", got)
	}
	if got := fr.lastCategories; len(got) != 1 || got[0] != "apparel" {
		t.Fatalf("retriever categories = %v", got)
	}
	if fr.lastK != 4 {
		t.Fatalf("retriever k = %d, want 4", fr.lastK)
	}
}

func Test_QueryImage_AcceptsWireFieldNames(t *testing.T) {
	s, fr := newTestServer(t, testServerOpts{})

	raw := json.RawMessage(`{"image_base64":"data:image/png;base64,AAAA"}`)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/query/image", raw, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}
	if want := "data:image/png;base64,AAAA"; fr.lastImage != want {
		t.Fatalf("image = %q, want %q", fr.lastImage, want)
	}
}

func Test_Chat_ReturnsAgentResponse(t *testing.T) {
	fc := &fakeChatter{resp: &agent.Response{Text: "Here are some dresses."}}
	s, _ := newTestServer(t, testServerOpts{chatter: fc})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/chat", chatRequest{UserID: "u1", Message: "find a dress"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}
	var resp agent.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Text != "Here are some dresses." {
		t.Fatalf("text = %q", resp.Text)
	}
}

func Test_Chat_DisabledWithoutAgent(t *testing.T) {
	s, _ := newTestServer(t, testServerOpts{})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/chat", chatRequest{UserID: "u1", Message: "hi"}, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func Test_Chat_RequiresUserID(t *testing.T) {
	s, _ := newTestServer(t, testServerOpts{chatter: &fakeChatter{resp: &agent.Response{Text: "ok"}}})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/chat", chatRequest{Message: "hi"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func Test_Cart_AddViewRemoveClear(t *testing.T) {
	store, err := cart.Open(":memory:")
	if err != nil {
		t.Fatalf("open cart store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	s, _ := newTestServer(t, testServerOpts{carts: store})
	h := s.Handler()

	rec := doJSON(t, h, http.MethodPost, "/user/u1/cart/add", cartMutationRequest{Name: "Red Dress", Quantity: 2, Price: 39.99}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("add status = %d; body: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/user/u1/cart", nil, nil)
	var view cartResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode cart: %v", err)
	}
	if len(view.Items) != 1 || view.Items[0].Name != "Red Dress" || view.Items[0].Quantity != 2 {
		t.Fatalf("cart after add = %+v", view.Items)
	}

	rec = doJSON(t, h, http.MethodPost, "/user/u1/cart/remove", cartMutationRequest{Name: "Red Dress", Quantity: 1}, nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode cart: %v", err)
	}
	if len(view.Items) != 1 || view.Items[0].Quantity != 1 {
		t.Fatalf("cart after remove = %+v", view.Items)
	}

	rec = doJSON(t, h, http.MethodPost, "/user/u1/cart/clear", nil, nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode cart: %v", err)
	}
	if len(view.Items) != 0 {
		t.Fatalf("cart after clear = %+v", view.Items)
	}
}

func Test_Cart_DisabledWithoutStore(t *testing.T) {
	s, _ := newTestServer(t, testServerOpts{})

	rec := doJSON(t, s.Handler(), http.MethodGet, "/user/u1/cart", nil, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func Test_Auth_RejectsMissingAndWrongToken(t *testing.T) {
	s, _ := newTestServer(t, testServerOpts{cfg: &Config{APIKey: "sekret"}})
	h := s.Handler()
	body := textQueryRequest{Queries: []string{"x"}}

	rec := doJSON(t, h, http.MethodPost, "/query/text", body, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", rec.Code)
	}
	if got := rec.Header().Get("WWW-Authenticate"); !strings.Contains(got, "shopgenie") {
		t.Fatalf("WWW-Authenticate = %q", got)
	}

	rec = doJSON(t, h, http.MethodPost, "/query/text", body, map[string]string{"Authorization": "Bearer wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: status = %d, want 401", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/query/text", body, map[string]string{"Authorization": "Bearer sekret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token: status = %d, want 200", rec.Code)
	}
}

func Test_Auth_HealthStaysOpen(t *testing.T) {
	s, _ := newTestServer(t, testServerOpts{cfg: &Config{APIKey: "sekret"}})

	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func Test_RateLimit_Returns429(t *testing.T) {
	s, _ := newTestServer(t, testServerOpts{cfg: &Config{RateLimit: 1, RateBurst: 2}})
	h := s.Handler()
	body := textQueryRequest{Queries: []string{"x"}}

	limited := false
	for i := 0; i < 5; i++ {
		rec := doJSON(t, h, http.MethodPost, "/query/text", body, nil)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Fatal("expected at least one 429 after burst exhaustion")
	}
}

func Test_Health_ReportsVersion(t *testing.T) {
	s, _ := newTestServer(t, testServerOpts{})

	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "ok" || resp.Version == "" {
		t.Fatalf("health = %+v", resp)
	}
}

type stubPinger struct {
	name string
	err  error
}

func (p stubPinger) Name() string                 { return p.name }
func (p stubPinger) Ping(_ context.Context) error { return p.err }

func Test_Ready_FailingProbeIs503(t *testing.T) {
	s, _ := newTestServer(t, testServerOpts{cfg: &Config{
		Pingers: []Pinger{
			stubPinger{name: "qdrant"},
			stubPinger{name: "embedding", err: context.DeadlineExceeded},
		},
	}})

	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/ready", nil, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var resp readyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Ready || len(resp.Checks) != 2 {
		t.Fatalf("ready = %+v", resp)
	}
	if resp.Checks[0].Name != "qdrant" || !resp.Checks[0].OK {
		t.Fatalf("first check = %+v", resp.Checks[0])
	}
	if resp.Checks[1].OK || resp.Checks[1].Error == "" {
		t.Fatalf("second check = %+v", resp.Checks[1])
	}
}

func Test_Ready_NoPingersIsOK(t *testing.T) {
	s, _ := newTestServer(t, testServerOpts{})

	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/ready", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func Test_Metrics_ExposesNamespace(t *testing.T) {
	s, _ := newTestServer(t, testServerOpts{})
	h := s.Handler()

	// Generate some traffic first so counters exist.
	doJSON(t, h, http.MethodPost, "/query/text", textQueryRequest{Queries: []string{"x"}}, nil)

	rec := doJSON(t, h, http.MethodGet, "/metrics", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "shopgenie_query_requests_total") {
		t.Fatalf("metrics output missing query counter:\n%s", body)
	}
	if !strings.Contains(body, "shopgenie_http_requests_total") {
		t.Fatalf("metrics output missing http counter:\n%s", body)
	}
}
