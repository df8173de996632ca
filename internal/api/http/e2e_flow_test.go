package apihttp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"scuba/searchservice/internal/domain"
	"scuba/searchservice/internal/engines"
	"scuba/searchservice/internal/present"
	"scuba/searchservice/internal/providers/searxng"
	"scuba/searchservice/internal/rank"
	"scuba/searchservice/internal/search"
)

// fakeSearXNG answers every category with two results and counts hits per category.
type fakeSearXNG struct {
	mu   sync.Mutex
	hits map[string]int
}

func (f *fakeSearXNG) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" {
		w.WriteHeader(http.StatusOK)
		return
	}
	category := "general"
	for key := range r.URL.Query() {
		if strings.HasPrefix(key, "category_") {
			category = strings.TrimPrefix(key, "category_")
		}
	}
	f.mu.Lock()
	f.hits[category]++
	f.mu.Unlock()

	query := r.URL.Query().Get("q")
	body := map[string]any{
		"query":             query,
		"number_of_results": 2,
		"results": []map[string]any{
			{
				"title":     "Emperor " + query + " (" + category + ")",
				"url":       "https://en.wikipedia.org/wiki/" + category,
				"content":   "The <b>emperor</b> " + query + " is the tallest",
				"engine":    "wikipedia",
				"score":     4.2,
				"img_src":   "https://upload.example.org/" + category + ".jpg",
				"thumbnail": "https://upload.example.org/" + category + "-thumb.jpg",
			},
			{
				"title":     "Field guide to " + category + " birds",
				"url":       "https://birds.example.org/" + category,
				"content":   "Everything about " + query,
				"engine":    "bing",
				"score":     1.3,
				"thumbnail": "https://birds.example.org/" + category + ".png",
			},
		},
		"suggestions": []string{query + " habitat"},
		"engines":     []string{"wikipedia", "bing"},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func (f *fakeSearXNG) count(category string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[category]
}

type e2eEnv struct {
	backend *fakeSearXNG
	api     *httptest.Server
	hub     *EventHub
	service *search.Service
}

func newE2EEnv(t *testing.T) *e2eEnv {
	t.Helper()
	backend := &fakeSearXNG{hits: make(map[string]int)}
	backendServer := httptest.NewServer(backend)
	t.Cleanup(backendServer.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry, err := engines.NewRegistry(engines.Config{SearXNGURL: backendServer.URL, Logger: logger})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	client := searxng.NewClient(searxng.Config{
		Engines:       registry,
		Client:        backendServer.Client(),
		Timeout:       2 * time.Second,
		RatePerSecond: -1,
		Logger:        logger,
	})
	presenter := present.New(rank.NewPipeline(rank.DefaultPipelineConfig()), present.Config{ImageProxyPath: ImageProxyPath})

	hub := NewEventHub(logger)
	t.Cleanup(hub.Close)
	service := search.NewService(client, presenter,
		search.WithEngines(registry),
		search.WithRenderer(hub),
		search.WithLoadingIndicator(hub),
		search.WithNavigator(hub),
		search.WithLogger(logger),
	)
	server := NewServer(service,
		WithLogger(logger),
		WithEngines(registry),
		WithDiagnostics(client),
		WithEventHub(hub),
		WithRateLimit(0, 0),
	)
	api := httptest.NewServer(server.Handler())
	t.Cleanup(api.Close)

	return &e2eEnv{backend: backend, api: api, hub: hub, service: service}
}

func (e *e2eEnv) post(t *testing.T, path, body string) (int, []byte) {
	t.Helper()
	resp, err := http.Post(e.api.URL+path, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func (e *e2eEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(e.api.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for e.hub.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("ws client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

// nextEvent reads websocket messages until one of the wanted type arrives.
func nextEvent(t *testing.T, conn *websocket.Conn, wantType string) json.RawMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s event: %v", wantType, err)
		}
		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decode ws message: %v", err)
		}
		if msg.Type == wantType {
			return msg.Data
		}
	}
}

func TestE2ESearchRendersAndCachesCategories(t *testing.T) {
	env := newE2EEnv(t)
	conn := env.dial(t)

	if status, body := env.post(t, "/tabs", `{"tabId":"tab-1","active":true}`); status != http.StatusCreated {
		t.Fatalf("create tab: %d %s", status, body)
	}

	status, body := env.post(t, "/tabs/tab-1/search", `{"input":"penguins"}`)
	if status != http.StatusOK {
		t.Fatalf("search: %d %s", status, body)
	}
	var submitted submitResponse
	if err := json.Unmarshal(body, &submitted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if submitted.Tab.State != search.StateReady || submitted.Tab.Payload == nil {
		t.Fatalf("unexpected tab: %+v", submitted.Tab)
	}
	general := submitted.Tab.Payload
	if general.Layout != domain.LayoutGeneral || len(general.Cards) == 0 {
		t.Fatalf("unexpected general payload: %+v", general)
	}
	if !general.Cards[0].Primary {
		t.Fatalf("expected the wikipedia result promoted, got %+v", general.Cards[0])
	}
	if strings.Contains(general.Cards[0].Description, "<b>") {
		t.Fatalf("expected markup stripped, got %q", general.Cards[0].Description)
	}

	var rendered renderEvent
	if err := json.Unmarshal(nextEvent(t, conn, EventRender), &rendered); err != nil {
		t.Fatalf("decode render: %v", err)
	}
	if rendered.TabID != "tab-1" || rendered.Category != domain.CategoryGeneral {
		t.Fatalf("unexpected render event: %+v", rendered)
	}

	status, body = env.post(t, "/tabs/tab-1/category", `{"category":"images"}`)
	if status != http.StatusOK {
		t.Fatalf("switch: %d %s", status, body)
	}
	var snapshot search.Snapshot
	if err := json.Unmarshal(body, &snapshot); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snapshot.Payload == nil || snapshot.Payload.Layout != domain.LayoutImages {
		t.Fatalf("unexpected images snapshot: %+v", snapshot)
	}
	if !strings.HasPrefix(snapshot.Payload.Cards[0].ImageURL, "/proxy/image?url=") {
		t.Fatalf("expected proxied image, got %q", snapshot.Payload.Cards[0].ImageURL)
	}
	if !env.service.ImageAllowed("https://upload.example.org/images.jpg") {
		t.Fatal("expected the rendered image to be listed for the proxy")
	}
	resp, err := http.Get(env.api.URL + "/proxy/image?url=" + url.QueryEscape("https://elsewhere.example.org/x.jpg"))
	if err != nil {
		t.Fatalf("GET proxy: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected unlisted image refused, got %d", resp.StatusCode)
	}

	env.post(t, "/tabs/tab-1/category", `{"category":"general"}`)
	env.post(t, "/tabs/tab-1/category", `{"category":"images"}`)
	if env.backend.count("general") != 1 || env.backend.count("images") != 1 {
		t.Fatalf("expected each category fetched once, got general=%d images=%d",
			env.backend.count("general"), env.backend.count("images"))
	}

	status, body = env.post(t, "/tabs/tab-1/open", `{"index":0}`)
	if status != http.StatusOK {
		t.Fatalf("open: %d %s", status, body)
	}
	var navigated navigateEvent
	if err := json.Unmarshal(nextEvent(t, conn, EventNavigateRequested), &navigated); err != nil {
		t.Fatalf("decode navigate: %v", err)
	}
	if navigated.TabID != "tab-1" || !strings.HasPrefix(navigated.URL, "https://") {
		t.Fatalf("unexpected navigate event: %+v", navigated)
	}
}

func TestE2EUnsupportedEngineNavigates(t *testing.T) {
	env := newE2EEnv(t)
	conn := env.dial(t)

	req, _ := http.NewRequest(http.MethodPut, env.api.URL+"/engines/current", strings.NewReader(`{"name":"duckduckgo"}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("set engine: %v", err)
	}
	resp.Body.Close()

	env.post(t, "/tabs", `{"tabId":"tab-1","active":true}`)
	if status, body := env.post(t, "/tabs/tab-1/search", `{"input":"penguin facts"}`); status != http.StatusOK {
		t.Fatalf("search: %d %s", status, body)
	}

	var navigated navigateEvent
	if err := json.Unmarshal(nextEvent(t, conn, EventNavigateRequested), &navigated); err != nil {
		t.Fatalf("decode navigate: %v", err)
	}
	want := "https://duckduckgo.com/?q=penguin+facts"
	if navigated.URL != want {
		t.Fatalf("navigate url = %q, want %q", navigated.URL, want)
	}
	if env.backend.count("general") != 0 {
		t.Fatal("unstructured engine must not hit the backend")
	}
}

func TestE2EClosedTabIsGone(t *testing.T) {
	env := newE2EEnv(t)
	env.post(t, "/tabs", `{"tabId":"tab-1","active":true}`)
	env.post(t, "/tabs/tab-1/search", `{"input":"penguins"}`)

	req, _ := http.NewRequest(http.MethodDelete, env.api.URL+"/tabs/tab-1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()

	resp, err = http.Get(fmt.Sprintf("%s/tabs/%s", env.api.URL, "tab-1"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after close, got %d", resp.StatusCode)
	}
}
