package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"codepractice/internal/evaluator/language"
	"codepractice/internal/evaluator/model"
	"codepractice/internal/evaluator/service"
	pkgerrors "codepractice/pkg/errors"
	"codepractice/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type fakeEvaluator struct {
	results []model.TestResult
	err     error
	got     model.ExecutionRequest
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, req model.ExecutionRequest) (*model.ExecutionResult, error) {
	return f.EvaluateWithProgress(ctx, req, nil)
}

func (f *fakeEvaluator) EvaluateWithProgress(ctx context.Context, req model.ExecutionRequest, progress service.ProgressReporter) (*model.ExecutionResult, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	for _, r := range f.results {
		if progress != nil {
			progress.ReportTest(ctx, r)
		}
	}
	return &model.ExecutionResult{
		Status:         model.StatusSuccess,
		TestResults:    f.results,
		AllTestsPassed: true,
		Output:         service.FormatOutput(f.results, nil),
	}, nil
}

func newRouter(ev Evaluator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewEvaluatorController(ev, nil)
	r.POST("/run-tests", h.RunTests)
	r.POST("/run/test", h.RunTests)
	r.GET("/ws/run-tests", h.StreamRunTests)
	return r
}

func TestRunTests(t *testing.T) {
	ev := &fakeEvaluator{results: []model.TestResult{{Passed: true, ActualOutput: "[0,1]", ExpectedOutput: "[0,1]"}}}
	r := newRouter(ev)

	for _, path := range []string{"/run-tests", "/run/test"} {
		body := `{"code":"function twoSum(){}","language":"javascript","problemId":"two-sum","testCaseIds":[0]}`
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", path, w.Code, w.Body.String())
		}
		var res model.ExecutionResult
		if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if !res.AllTestsPassed || res.TestResults[0].ActualOutput != "[0,1]" {
			t.Fatalf("unexpected body %s", w.Body.String())
		}
		if ev.got.ProblemID != "two-sum" || len(ev.got.TestCaseIDs) != 1 {
			t.Fatalf("request not forwarded: %+v", ev.got)
		}
	}
}

func TestRunTests_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{name: "malformed body", body: `{"code":`, status: http.StatusBadRequest},
		{name: "validation", body: `{}`, err: pkgerrors.ValidationError("code", "required"), status: http.StatusBadRequest},
		{name: "unsupported language", body: `{}`, err: pkgerrors.New(pkgerrors.LanguageNotSupported), status: http.StatusBadRequest},
		{name: "problem not found", body: `{}`, err: pkgerrors.New(pkgerrors.ProblemNotFound), status: http.StatusNotFound},
		{name: "no test cases", body: `{}`, err: pkgerrors.New(pkgerrors.TestCaseNotFound), status: http.StatusNotFound},
		{name: "queue full", body: `{}`, err: pkgerrors.New(pkgerrors.EvaluationQueueFull), status: http.StatusServiceUnavailable},
		{name: "unexpected", body: `{}`, err: context.DeadlineExceeded, status: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := newRouter(&fakeEvaluator{err: tc.err})
			req := httptest.NewRequest(http.MethodPost, "/run-tests", strings.NewReader(tc.body))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, w.Code)
			}
			var body response.ErrorBody
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body.Error == "" {
				t.Fatalf("expected error body, got %s", w.Body.String())
			}
		})
	}
}

type oneProblem struct{}

func (oneProblem) GetProblem(ctx context.Context, id string) (*model.Problem, error) {
	return &model.Problem{ID: id, TestCases: []model.TestCase{
		{Input: "1", ExpectedOutput: "1"},
		{Input: "2", ExpectedOutput: "2"},
	}}, nil
}

// hangingRunner answers the first case and never finishes the others.
type hangingRunner struct{}

func (hangingRunner) Registry() *language.Registry { return language.NewRegistry(nil) }

func (hangingRunner) Prepare(ctx context.Context, req language.PrepareRequest) (*language.Program, error) {
	return &language.Program{RunID: req.RunID}, nil
}

func (hangingRunner) Run(ctx context.Context, prog *language.Program, c language.Case) (language.Outcome, error) {
	if c.Index == 0 {
		return language.Outcome{Output: "1"}, nil
	}
	<-ctx.Done()
	return language.Outcome{}, ctx.Err()
}

func TestRunTests_EvaluationTimeoutKeepsResults(t *testing.T) {
	ev := service.NewEvaluator(oneProblem{}, hangingRunner{}, service.Config{Timeout: 100 * time.Millisecond})
	r := newRouter(ev)
	body := `{"code":"function f(x) { return x }","language":"javascript","problemId":"echo"}`
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/run-tests", strings.NewReader(body)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res model.ExecutionResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(res.TestResults) != 2 || !res.TestResults[0].Passed || res.TestResults[1].Passed {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
	if res.TestResults[1].ActualOutput != "Error: Evaluation time limit exceeded" {
		t.Fatalf("unexpected timeout output %q", res.TestResults[1].ActualOutput)
	}
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/run-tests"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestStreamRunTests(t *testing.T) {
	ev := &fakeEvaluator{results: []model.TestResult{
		{Passed: true, TestCaseID: 0},
		{Passed: true, TestCaseID: 1},
	}}
	srv := httptest.NewServer(newRouter(ev))
	defer srv.Close()
	conn := dial(t, srv)
	defer conn.Close()

	if err := conn.WriteJSON(RunTestsRequest{Code: "x", Language: "python", ProblemID: "p1"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	var types []string
	for {
		var msg struct {
			Type   string          `json:"type"`
			Result json.RawMessage `json:"result"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		types = append(types, msg.Type)
		if msg.Type == streamTypeResult {
			var res model.ExecutionResult
			if err := json.Unmarshal(msg.Result, &res); err != nil || len(res.TestResults) != 2 {
				t.Fatalf("unexpected final result %s", msg.Result)
			}
		}
	}
	if strings.Join(types, ",") != "test,test,result" {
		t.Fatalf("unexpected frames %v", types)
	}
}

func TestStreamRunTests_Error(t *testing.T) {
	srv := httptest.NewServer(newRouter(&fakeEvaluator{err: pkgerrors.New(pkgerrors.ProblemNotFound)}))
	defer srv.Close()
	conn := dial(t, srv)
	defer conn.Close()

	if err := conn.WriteJSON(RunTestsRequest{Code: "x", Language: "python", ProblemID: "missing"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	var msg StreamMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if msg.Type != streamTypeError || msg.Error == nil || msg.Error.Code != pkgerrors.ProblemNotFound {
		t.Fatalf("unexpected message %+v", msg)
	}
}
