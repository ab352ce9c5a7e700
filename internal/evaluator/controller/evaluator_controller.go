package controller

import (
	"context"
	"net/http"
	"sync"
	"time"

	"codepractice/internal/evaluator/model"
	"codepractice/internal/evaluator/service"
	pkgerrors "codepractice/pkg/errors"
	"codepractice/pkg/utils/logger"
	"codepractice/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsRequestTimeout = 30 * time.Second
	wsWriteTimeout   = 10 * time.Second
	wsMaxRequestSize = 1 << 20
)

// Evaluator is the part of the evaluator service the controller needs.
type Evaluator interface {
	Evaluate(ctx context.Context, req model.ExecutionRequest) (*model.ExecutionResult, error)
	EvaluateWithProgress(ctx context.Context, req model.ExecutionRequest, progress service.ProgressReporter) (*model.ExecutionResult, error)
}

// EvaluatorController handles run-tests endpoints.
type EvaluatorController struct {
	evaluator Evaluator
	upgrader  websocket.Upgrader
}

// NewEvaluatorController creates a new EvaluatorController. checkOrigin
// guards websocket upgrades; nil accepts same-origin requests only.
func NewEvaluatorController(evaluator Evaluator, checkOrigin func(r *http.Request) bool) *EvaluatorController {
	return &EvaluatorController{
		evaluator: evaluator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
	}
}

// RunTestsRequest is the body of POST /run-tests.
type RunTestsRequest struct {
	Code        string `json:"code"`
	Language    string `json:"language"`
	ProblemID   string `json:"problemId"`
	TestCaseIDs []int  `json:"testCaseIds"`
}

func (r RunTestsRequest) toModel() model.ExecutionRequest {
	return model.ExecutionRequest{
		Code:        r.Code,
		Language:    r.Language,
		ProblemID:   r.ProblemID,
		TestCaseIDs: r.TestCaseIDs,
	}
}

// RunTests evaluates code against a problem and returns the full result.
func (h *EvaluatorController) RunTests(c *gin.Context) {
	var req RunTestsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	res, err := h.evaluator.Evaluate(c.Request.Context(), req.toModel())
	if err != nil {
		if c.Request.Context().Err() != nil {
			response.Error(c, pkgerrors.Wrap(err, pkgerrors.RequestCanceled))
			return
		}
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// StreamMessage is one frame sent on the run-tests websocket.
type StreamMessage struct {
	Type   string              `json:"type"`
	Result interface{}         `json:"result,omitempty"`
	Error  *response.ErrorBody `json:"error,omitempty"`
}

const (
	streamTypeTest   = "test"
	streamTypeResult = "result"
	streamTypeError  = "error"
)

// wsReporter streams test results to the socket as they finish.
type wsReporter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (r *wsReporter) send(msg StreamMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return r.conn.WriteJSON(msg)
}

func (r *wsReporter) ReportTest(ctx context.Context, result model.TestResult) {
	if err := r.send(StreamMessage{Type: streamTypeTest, Result: result}); err != nil {
		logger.Debug(ctx, "stream test result failed", zap.Error(err))
	}
}

// StreamRunTests upgrades to a websocket, reads one request and streams
// each test result followed by the final result or an error.
func (h *EvaluatorController) StreamRunTests(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	reporter := &wsReporter{conn: conn}

	conn.SetReadLimit(wsMaxRequestSize)
	_ = conn.SetReadDeadline(time.Now().Add(wsRequestTimeout))
	var req RunTestsRequest
	if err := conn.ReadJSON(&req); err != nil {
		_ = reporter.send(errorMessage(c, pkgerrors.New(pkgerrors.InvalidParams).WithMessage("Invalid request parameters")))
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	// The client closing the socket cancels the evaluation.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	res, err := h.evaluator.EvaluateWithProgress(ctx, req.toModel(), reporter)
	if err != nil {
		if ctx.Err() != nil {
			logger.Info(ctx, "streamed evaluation canceled", zap.String("problem_id", req.ProblemID))
			return
		}
		_ = reporter.send(errorMessage(c, err))
		return
	}
	if err := reporter.send(StreamMessage{Type: streamTypeResult, Result: res}); err != nil {
		logger.Debug(ctx, "stream final result failed", zap.Error(err))
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsWriteTimeout))
}

func errorMessage(c *gin.Context, err error) StreamMessage {
	e := pkgerrors.GetError(err)
	body := &response.ErrorBody{Error: e.Error(), Code: e.Code}
	if len(e.Details) > 0 {
		body.Details = e.Details
	}
	if traceID, ok := c.Get("trace_id"); ok {
		body.TraceID, _ = traceID.(string)
	}
	return StreamMessage{Type: streamTypeError, Error: body}
}
