package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/bioviz/bioviz/internal/auth"
	"github.com/bioviz/bioviz/internal/config"
)

const sampleCSV = `age,weight,name
20,50.5,alice
30,60.0,bob
40,70.5,carol
50,80.0,dave
`

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gdb, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	hash, err := auth.HashPassword("pw")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	cfg := config.Config{
		JWTSecret:         "test-secret",
		AuthUsername:      "admin",
		AuthPasswordHash:  hash,
		UploadDir:         t.TempDir(),
		MaxUploadSize:     1 << 20,
		AllowedExtensions: []string{".csv", ".xlsx"},
		LLMBackend:        "ollama",
		LLMServerURL:      "http://localhost:11434",
		LLMModel:          "test-model",
		LLMContextWindow:  8192,
		LLMTimeout:        5 * time.Second,
		ChatContextWindow: 20,
		SandboxTimeout:    5 * time.Second,
		SandboxMaxSteps:   1_000_000,
	}

	r, err := NewRouter(gdb, cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return r
}

func login(t *testing.T, r *gin.Engine) string {
	t.Helper()
	env := doJSON(t, r, http.MethodPost, "/login", `{"username":"admin","password":"pw"}`, "", http.StatusOK)
	var data struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.Token == "" {
		t.Fatalf("login data = %s, err = %v", env.Data, err)
	}
	return data.Token
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body, token string, wantStatus int) envelope {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != wantStatus {
		t.Fatalf("%s %s status = %d, want %d, body %s", method, path, w.Code, wantStatus, w.Body.String())
	}
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s bad envelope: %v, body %s", method, path, err, w.Body.String())
	}
	return env
}

func uploadCSV(t *testing.T, r *gin.Engine, token, filename, content string, wantStatus int) envelope {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write part: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/files/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != wantStatus {
		t.Fatalf("upload status = %d, want %d, body %s", w.Code, wantStatus, w.Body.String())
	}
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("upload bad envelope: %v", err)
	}
	return env
}

func TestPing(t *testing.T) {
	r := newTestRouter(t)
	env := doJSON(t, r, http.MethodGet, "/ping", "", "", http.StatusOK)
	if env.Code != 0 {
		t.Errorf("code = %d, want 0", env.Code)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	r := newTestRouter(t)
	env := doJSON(t, r, http.MethodPost, "/login", `{"username":"admin","password":"nope"}`, "", http.StatusUnauthorized)
	if env.Code != 40103 {
		t.Errorf("code = %d, want 40103", env.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	r := newTestRouter(t)

	env := doJSON(t, r, http.MethodGet, "/api/files/list", "", "", http.StatusUnauthorized)
	if env.Code != 40101 {
		t.Errorf("missing token code = %d, want 40101", env.Code)
	}

	env = doJSON(t, r, http.MethodGet, "/api/files/list", "", "garbage-token", http.StatusUnauthorized)
	if env.Code != 40102 {
		t.Errorf("bad token code = %d, want 40102", env.Code)
	}

	token := login(t, r)
	env = doJSON(t, r, http.MethodGet, "/api/files/list", "", token, http.StatusOK)
	if env.Code != 0 {
		t.Errorf("authorized code = %d, want 0", env.Code)
	}
}

func TestUploadSchemaPreviewDelete(t *testing.T) {
	r := newTestRouter(t)
	token := login(t, r)

	env := uploadCSV(t, r, token, "patients.csv", sampleCSV, http.StatusOK)
	var rec struct {
		FileID   string `json:"file_id"`
		RowCount int    `json:"row_count"`
	}
	if err := json.Unmarshal(env.Data, &rec); err != nil || rec.FileID == "" {
		t.Fatalf("upload data = %s, err = %v", env.Data, err)
	}
	if rec.RowCount != 4 {
		t.Errorf("row_count = %d, want 4", rec.RowCount)
	}

	env = doJSON(t, r, http.MethodGet, "/api/files/schema/"+rec.FileID, "", token, http.StatusOK)
	var schema struct {
		RowCount int `json:"row_count"`
		Columns  []struct {
			Name  string `json:"name"`
			DType string `json:"dtype"`
		} `json:"columns"`
	}
	if err := json.Unmarshal(env.Data, &schema); err != nil {
		t.Fatalf("schema data: %v", err)
	}
	if schema.RowCount != 4 || len(schema.Columns) != 3 {
		t.Fatalf("schema = %+v", schema)
	}

	env = doJSON(t, r, http.MethodGet, "/api/files/preview/"+rec.FileID+"?start=0&limit=2", "", token, http.StatusOK)
	var preview struct {
		DisplayedRows int  `json:"displayed_rows"`
		HasMore       bool `json:"has_more"`
	}
	if err := json.Unmarshal(env.Data, &preview); err != nil {
		t.Fatalf("preview data: %v", err)
	}
	if preview.DisplayedRows != 2 || !preview.HasMore {
		t.Fatalf("preview = %+v", preview)
	}

	env = doJSON(t, r, http.MethodDelete, "/api/files/"+rec.FileID, "", token, http.StatusOK)
	if env.Code != 0 {
		t.Fatalf("delete code = %d", env.Code)
	}

	env = doJSON(t, r, http.MethodGet, "/api/files/schema/"+rec.FileID, "", token, http.StatusNotFound)
	if env.Code != 40401 {
		t.Errorf("schema after delete code = %d, want 40401", env.Code)
	}
}

func TestUploadRejectsUnsupportedFormat(t *testing.T) {
	r := newTestRouter(t)
	token := login(t, r)

	env := uploadCSV(t, r, token, "notes.txt", "hello", http.StatusBadRequest)
	if env.Code != 10004 {
		t.Errorf("code = %d, want 10004", env.Code)
	}
}

func TestAnalysisEndpoints(t *testing.T) {
	r := newTestRouter(t)
	token := login(t, r)

	env := uploadCSV(t, r, token, "patients.csv", sampleCSV, http.StatusOK)
	var rec struct {
		FileID string `json:"file_id"`
	}
	if err := json.Unmarshal(env.Data, &rec); err != nil {
		t.Fatalf("upload data: %v", err)
	}

	env = doJSON(t, r, http.MethodGet, "/api/analysis/methods", "", token, http.StatusOK)
	var methods struct {
		Methods map[string]struct {
			Name string `json:"name"`
		} `json:"methods"`
	}
	if err := json.Unmarshal(env.Data, &methods); err != nil {
		t.Fatalf("methods data: %v", err)
	}
	if len(methods.Methods) != 3 {
		t.Fatalf("methods = %+v", methods)
	}
	if _, found := methods.Methods["descriptive"]; !found {
		t.Errorf("descriptive method missing: %v", methods.Methods)
	}

	env = doJSON(t, r, http.MethodGet, "/api/analysis/methods/nonsense", "", token, http.StatusNotFound)
	if env.Code != 40403 {
		t.Errorf("unknown method code = %d, want 40403", env.Code)
	}

	body := fmt.Sprintf(`{"file_id":%q,"method":"descriptive"}`, rec.FileID)
	env = doJSON(t, r, http.MethodPost, "/api/analysis/run", body, token, http.StatusOK)
	var run struct {
		Result struct {
			Summary map[string]any `json:"summary"`
		} `json:"result"`
	}
	if err := json.Unmarshal(env.Data, &run); err != nil {
		t.Fatalf("run data: %v", err)
	}
	if _, found := run.Result.Summary["numeric_stats"]; !found {
		t.Errorf("summary missing numeric_stats: %v", run.Result.Summary)
	}

	body = fmt.Sprintf(`{"file_id":%q,"method":"nonsense"}`, rec.FileID)
	env = doJSON(t, r, http.MethodPost, "/api/analysis/run", body, token, http.StatusNotFound)
	if env.Code != 40403 {
		t.Errorf("run unknown method code = %d, want 40403", env.Code)
	}
}

func TestExecuteCode(t *testing.T) {
	r := newTestRouter(t)
	token := login(t, r)

	env := uploadCSV(t, r, token, "patients.csv", sampleCSV, http.StatusOK)
	var rec struct {
		FileID string `json:"file_id"`
	}
	if err := json.Unmarshal(env.Data, &rec); err != nil {
		t.Fatalf("upload data: %v", err)
	}

	body := fmt.Sprintf(`{"dataset_id":%q,"code":"print(\"rows:\", dataset.num_rows)"}`, rec.FileID)
	env = doJSON(t, r, http.MethodPost, "/api/llm/execute-code", body, token, http.StatusOK)
	var result struct {
		Output string `json:"output"`
	}
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("result data: %v", err)
	}
	if !strings.Contains(result.Output, "rows: 4") {
		t.Errorf("output = %q, want rows: 4", result.Output)
	}
}

func TestLLMSessionEndpoints(t *testing.T) {
	r := newTestRouter(t)
	token := login(t, r)

	env := uploadCSV(t, r, token, "patients.csv", sampleCSV, http.StatusOK)
	var rec struct {
		FileID string `json:"file_id"`
	}
	if err := json.Unmarshal(env.Data, &rec); err != nil {
		t.Fatalf("upload data: %v", err)
	}

	env = doJSON(t, r, http.MethodPost, "/api/llm/sessions", `{"dataset_id":"missing"}`, token, http.StatusNotFound)
	if env.Code != 40401 {
		t.Errorf("unknown dataset code = %d, want 40401", env.Code)
	}

	body := fmt.Sprintf(`{"dataset_id":%q}`, rec.FileID)
	env = doJSON(t, r, http.MethodPost, "/api/llm/sessions", body, token, http.StatusOK)
	var sess struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(env.Data, &sess); err != nil || sess.SessionID == "" {
		t.Fatalf("session data = %s, err = %v", env.Data, err)
	}

	env = doJSON(t, r, http.MethodGet, "/api/llm/sessions/"+sess.SessionID+"/messages", "", token, http.StatusOK)
	var msgs struct {
		Messages []any `json:"messages"`
	}
	if err := json.Unmarshal(env.Data, &msgs); err != nil {
		t.Fatalf("messages data: %v", err)
	}
	if len(msgs.Messages) != 0 {
		t.Errorf("new session has %d messages", len(msgs.Messages))
	}

	env = doJSON(t, r, http.MethodGet, "/api/llm/sessions/missing/messages", "", token, http.StatusNotFound)
	if env.Code != 40402 {
		t.Errorf("unknown session code = %d, want 40402", env.Code)
	}

	// async queries are disabled without a broker
	body = fmt.Sprintf(`{"session_id":%q,"query":"describe the data"}`, sess.SessionID)
	env = doJSON(t, r, http.MethodPost, "/api/llm/query/async", body, token, http.StatusServiceUnavailable)
	if env.Code != 50301 {
		t.Errorf("async disabled code = %d, want 50301", env.Code)
	}

	env = doJSON(t, r, http.MethodGet, "/api/llm/jobs/nope", "", token, http.StatusNotFound)
	if env.Code != 40404 {
		t.Errorf("unknown job code = %d, want 40404", env.Code)
	}
}

func TestNoRoute(t *testing.T) {
	r := newTestRouter(t)
	env := doJSON(t, r, http.MethodGet, "/nope", "", "", http.StatusNotFound)
	if env.Code != 40400 {
		t.Errorf("code = %d, want 40400", env.Code)
	}
}
