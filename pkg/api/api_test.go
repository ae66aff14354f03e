package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hazyhaar/supplier-ingest/pkg/pipeline"
	"github.com/hazyhaar/supplier-ingest/pkg/profile"
	"github.com/mark3labs/mcp-go/server"
)

const bshCSV = "CÓDIGO;DESCRIPCIÓN;TOTAL\nLAVADORAS;;\nL1;Lavadora (BALAY) 8KG;100\nL2;Secadora (BALAY) 9KG;200,50\n"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRunner(t *testing.T) *pipeline.Runner {
	t.Helper()
	reg, err := profile.Default()
	if err != nil {
		t.Fatalf("profile.Default: %v", err)
	}
	r, err := pipeline.New(reg, pipeline.Options{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	return r
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "ingest_files_total 0\n")
	})
	ts := httptest.NewServer(NewRouter(newTestRunner(t), quietLogger(), metrics))
	t.Cleanup(ts.Close)
	return ts
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestHandleListProfiles(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/v1/profiles")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body profilesResponse
	decodeBody(t, resp, &body)
	if len(body.Profiles) != 10 || body.Profiles[0].ID != "ALMCE" {
		t.Errorf("profiles = %+v", body.Profiles)
	}
}

func TestHandleDetect(t *testing.T) {
	ts := newTestServer(t)
	tests := []struct {
		body     string
		status   int
		provider string
	}{
		{`{"filename":"Tarifa PVP_CECOTEC 2024.xlsx"}`, http.StatusOK, "CECOTEC"},
		{`{"filename":"lista precios.xlsx"}`, http.StatusNotFound, ""},
		{`{"filename":"  "}`, http.StatusBadRequest, ""},
		{`not json`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		resp, err := http.Post(ts.URL+"/v1/detect", "application/json", strings.NewReader(tt.body))
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != tt.status {
			t.Errorf("%s: status = %d, want %d", tt.body, resp.StatusCode, tt.status)
		}
		var body detectResponse
		decodeBody(t, resp, &body)
		if body.Provider != tt.provider {
			t.Errorf("%s: provider = %q, want %q", tt.body, body.Provider, tt.provider)
		}
	}
}

func TestHandleIngest(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/v1/ingest?filename=PVP%20BSH.csv", "text/csv", strings.NewReader(bshCSV))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var res struct {
		Provider string `json:"provider"`
		Products []struct {
			Code      string `json:"code"`
			Category  string `json:"category"`
			SalePrice string `json:"sale_price"`
		} `json:"products"`
	}
	decodeBody(t, resp, &res)
	if res.Provider != "BSH" || len(res.Products) != 2 {
		t.Fatalf("result = %+v", res)
	}
	if res.Products[0].Category != "LAVADORAS" || res.Products[0].SalePrice != "130" {
		t.Errorf("L1 = %+v", res.Products[0])
	}
}

func TestHandleIngest_Errors(t *testing.T) {
	ts := newTestServer(t)
	tests := []struct {
		url    string
		body   string
		status int
	}{
		{"/v1/ingest", bshCSV, http.StatusBadRequest},
		{"/v1/ingest?filename=precios.csv", bshCSV, http.StatusUnprocessableEntity},
		{"/v1/ingest?filename=PVP%20BSH.ods", bshCSV, http.StatusUnprocessableEntity},
		{"/v1/ingest?filename=PVP%20BSH.csv", "FOO;BAR\n1;2\n", http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		resp, err := http.Post(ts.URL+tt.url, "text/csv", strings.NewReader(tt.body))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.status {
			t.Errorf("%s: status = %d, want %d", tt.url, resp.StatusCode, tt.status)
		}
	}

	resp, err := http.Get(ts.URL + "/v1/ingest")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /v1/ingest: status = %d", resp.StatusCode)
	}
}

func TestHealthMetricsAndCORS(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/v1/health")
	if err != nil {
		t.Fatal(err)
	}
	var health healthResponse
	decodeBody(t, resp, &health)
	if health.Status != "ok" || health.Profiles != 10 {
		t.Errorf("health = %+v", health)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(data), "ingest_files_total") {
		t.Errorf("metrics body = %q", data)
	}

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/v1/detect", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent || resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("preflight = %d %v", resp.StatusCode, resp.Header)
	}
}

func callTool(t *testing.T, srv *server.MCPServer, name string, args map[string]any) string {
	t.Helper()
	msg, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  map[string]any{"name": name, "arguments": args},
	})
	out, err := json.Marshal(srv.HandleMessage(context.Background(), msg))
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return string(out)
}

func TestMCPTools(t *testing.T) {
	path := filepath.Join(t.TempDir(), "PVP BSH.csv")
	if err := os.WriteFile(path, []byte(bshCSV), 0o644); err != nil {
		t.Fatal(err)
	}

	srv := server.NewMCPServer("supplier-ingest", "test", server.WithToolCapabilities(false))
	RegisterMCPTools(srv, newTestRunner(t), quietLogger())

	if out := callTool(t, srv, "list_profiles", nil); !strings.Contains(out, "VITROKITCHEN") {
		t.Errorf("list_profiles = %s", out)
	}
	if out := callTool(t, srv, "detect_provider", map[string]any{"filename": "pvp_ufesa.csv"}); !strings.Contains(out, "UFESA") {
		t.Errorf("detect_provider = %s", out)
	}
	if out := callTool(t, srv, "detect_provider", map[string]any{"filename": "otro.csv"}); !strings.Contains(out, `"isError":true`) {
		t.Errorf("detect_provider unknown = %s", out)
	}
	if out := callTool(t, srv, "ingest_file", map[string]any{"path": path}); !strings.Contains(out, "LAVADORAS") || strings.Contains(out, `"isError":true`) {
		t.Errorf("ingest_file = %s", out)
	}
	other := filepath.Join(filepath.Dir(path), "otro.csv")
	if err := os.WriteFile(other, []byte(bshCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	if out := callTool(t, srv, "ingest_file", map[string]any{"path": other}); !strings.Contains(out, `"isError":true`) || !strings.Contains(out, "unknown provider") {
		t.Errorf("ingest_file unknown provider = %s", out)
	}
}
