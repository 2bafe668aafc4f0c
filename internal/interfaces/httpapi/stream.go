package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fplsage/sage-api/internal/domain/analysis"
	"github.com/fplsage/sage-api/internal/platform/logging"
)

const (
	heartbeatInterval = 2 * time.Second
	writeTimeout      = 5 * time.Second
)

// closeAnalysisNotFound is the non-standard WS close code the external
// interface contract reserves for "job_id does not exist".
const closeAnalysisNotFound = 4004

// Streamer is the ProgressStreamer component: it bridges JobStore
// subscriptions onto WebSocket connections.
type Streamer struct {
	jobs     JobReader
	upgrader websocket.Upgrader
	logger   *logging.Logger
}

func NewStreamer(jobs JobReader, logger *logging.Logger, allowedOrigins []string) *Streamer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Streamer{
		jobs:   jobs,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     buildOriginChecker(allowedOrigins),
		},
	}
}

func buildOriginChecker(allowedOrigins []string) func(r *http.Request) bool {
	allowAll := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
			continue
		}
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowAll {
			return true
		}
		return allowed[origin]
	}
}

// ServeStream implements GET /api/v1/analyze/{id}/stream: resolve the
// job, reject unknown jobs with close code 4004, otherwise send the
// current snapshot then bridge every subsequent JobStore event onto the
// socket until the job reaches a terminal state or the client
// disconnects.
func (s *Streamer) ServeStream(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ServeStream")
	defer span.End()

	id := r.PathValue("id")
	job, ok := s.jobs.Get(id)
	if !ok {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		closeMsg := websocket.FormatCloseMessage(closeAnalysisNotFound, "ANALYSIS_NOT_FOUND")
		_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(writeTimeout))
		_ = conn.Close()
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WarnContext(ctx, "websocket upgrade failed", "job_id", id, "error", err)
		return
	}
	defer conn.Close()

	writeMu := make(chan struct{}, 1)
	writeMu <- struct{}{}
	writeJSONFrame := func(v any) error {
		<-writeMu
		defer func() { writeMu <- struct{}{} }()
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteJSON(v)
	}

	if err := writeJSONFrame(analysis.Event{Type: analysis.EventProgress, Progress: job.Progress, Phase: job.Phase}); err != nil {
		return
	}
	if job.Status.Terminal() {
		s.sendTerminalFrame(writeJSONFrame, job)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
		return
	}

	sub, ok := s.jobs.Subscribe(id)
	if !ok {
		return
	}
	defer sub.Cancel()

	go s.drainClientReads(conn)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if err := writeJSONFrame(analysis.Event{Type: analysis.EventHeartbeat}); err != nil {
				return
			}
		case event, open := <-sub.Events:
			if !open {
				return
			}
			if err := writeJSONFrame(event); err != nil {
				return
			}
			heartbeat.Reset(heartbeatInterval)
			if event.Type == analysis.EventComplete || event.Type == analysis.EventError || event.Type == analysis.EventCancelled {
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
				return
			}
		}
	}
}

func (s *Streamer) sendTerminalFrame(write func(v any) error, job analysis.Job) {
	switch job.Status {
	case analysis.JobCompleted:
		_ = write(analysis.Event{Type: analysis.EventComplete, Result: job.Result})
	case analysis.JobFailed:
		code, message := "", ""
		if job.Error != nil {
			code, message = job.Error.Code, job.Error.Message
		}
		_ = write(analysis.Event{Type: analysis.EventError, Code: code, Message: message})
	case analysis.JobCancelled:
		_ = write(analysis.Event{Type: analysis.EventCancelled})
	}
}

// drainClientReads keeps gorilla/websocket's read loop alive (required
// for control-frame handling and disconnect detection) even though this
// stream never expects inbound application messages from the client.
func (s *Streamer) drainClientReads(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
