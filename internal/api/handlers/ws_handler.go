package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/yoointerview/internal/capture"
	"github.com/yoockh/yoointerview/internal/events"
	"github.com/yoockh/yoointerview/internal/gateway"
	"github.com/yoockh/yoointerview/internal/orchestrator"
	"github.com/yoockh/yoointerview/internal/services"
	"github.com/yoockh/yoointerview/internal/transcode"
	"github.com/yoockh/yoointerview/internal/utils"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 25 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsCommandQueue = 8
)

type WSHandler struct {
	svc        services.InterviewService
	bus        events.Bus
	upgrader   websocket.Upgrader
	frameWidth int
	log        *logrus.Logger
}

func NewWSHandler(svc services.InterviewService, bus events.Bus, frameWidth int, log *logrus.Logger) *WSHandler {
	if log == nil {
		log = logrus.New()
	}
	return &WSHandler{
		svc:        svc,
		bus:        bus,
		frameWidth: frameWidth,
		log:        log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict origin in prod
		},
	}
}

// wsClientMsg is a browser message. Device reports (source_ready, source_denied,
// source_ended, chunk, frame, recording_stopped) are applied inline; commands
// (select_source, start_recording, stop_recording, finish) run in order on their own
// goroutine. Binary frames are recording chunks.
type wsClientMsg struct {
	Type     string             `json:"type"`
	Kind     capture.SourceKind `json:"kind"`
	MIMEType string             `json:"mime_type"`
	Data     string             `json:"data"` // base64 or data url
	Reason   string             `json:"reason"`
	Code     string             `json:"code"`
	Notes    string             `json:"notes"`
}

// wsControlMsg asks the browser to act on its media devices.
type wsControlMsg struct {
	Type   string             `json:"type"` // always "control"
	Action string             `json:"action"`
	Kind   capture.SourceKind `json:"kind,omitempty"`
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.c.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return w.c.WriteMessage(websocket.TextMessage, b)
}

func (w *wsConn) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.c.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
}

func (h *WSHandler) SessionWS(c *gin.Context) {
	const op = "WSHandler.SessionWS"

	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sessionID := c.Param("session_id")
	if sessionID == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "missing session_id", nil))
		return
	}
	if _, err := h.svc.Get(c.Request.Context(), userID, sessionID); err != nil {
		writeError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote response in most cases
		return
	}
	defer conn.Close()

	wc := &wsConn{c: conn}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	log := h.log.WithFields(logrus.Fields{"session_id": sessionID, "user_id": userID})

	sub, err := h.bus.Subscribe(ctx, sessionID)
	if err != nil {
		_ = wc.writeJSON(events.Event{Type: events.TypeError, SessionID: sessionID, Code: string(utils.CodeUnavailable), Message: "event stream unavailable"})
		return
	}
	defer sub.Close()

	dev := capture.NewRemoteDevice(func(_ context.Context, ctl capture.Control) error {
		return wc.writeJSON(wsControlMsg{Type: "control", Action: ctl.Type, Kind: ctl.Kind})
	})
	unit := capture.NewUnit(dev, capture.Options{
		MaxFrameWidth: h.frameWidth,
		Logger:        h.log,
		OnState: func(st capture.State, kind capture.SourceKind, err error) {
			e := events.Event{Type: events.TypeCaptureState, SessionID: sessionID, State: string(st), Source: string(kind)}
			if err != nil {
				e.Code = string(utils.CodeOf(err))
				e.Message = utils.SafeMessage(err)
			}
			_ = h.bus.Publish(context.Background(), e)
		},
	})
	defer unit.Close()

	s := &wsSession{h: h, wc: wc, unit: unit, userID: userID, sessionID: sessionID, log: log}
	cmds := make(chan wsClientMsg, wsCommandQueue)
	go s.runCommands(ctx, cmds)

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
			return nil
		})

		for {
			mt, data, rerr := conn.ReadMessage()
			if rerr != nil {
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
			if mt == websocket.BinaryMessage {
				dev.Chunk(data)
				continue
			}

			var msg wsClientMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				s.reply(utils.E(utils.CodeInvalidArgument, op, "invalid json", err))
				continue
			}

			switch msg.Type {
			case "source_ready":
				dev.SourceReady(msg.Kind, msg.MIMEType)
			case "source_denied":
				dev.SourceDenied(msg.Reason)
			case "source_ended":
				dev.SourceEnded()
			case "recording_stopped":
				dev.RecordingStopped()
			case "chunk", "frame":
				b, _, err := transcode.DecodeTransportText(msg.Data)
				if err != nil {
					s.reply(err)
					continue
				}
				if msg.Type == "chunk" {
					dev.Chunk(b)
				} else if err := dev.Frame(b); err != nil {
					s.reply(utils.E(utils.CodeInvalidArgument, op, "frame must be a JPEG, PNG or WebP image", err))
				}
			case "select_source", "start_recording", "stop_recording", "finish":
				select {
				case cmds <- msg:
				default:
					s.reply(utils.E(utils.CodeConflict, op, "too many pending commands", nil))
				}
			default:
				s.reply(utils.E(utils.CodeInvalidArgument, op, "unknown message type", nil))
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	// writer: bus -> WS
	for {
		select {
		case <-readDone:
			return
		case <-ticker.C:
			if err := wc.ping(); err != nil {
				return
			}
		case e, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := wc.writeJSON(e); err != nil {
				log.WithError(err).Debug("ws write failed")
				return
			}
		}
	}
}

type wsSession struct {
	h         *WSHandler
	wc        *wsConn
	unit      *capture.Unit
	userID    string
	sessionID string
	log       *logrus.Entry
}

func (s *wsSession) reply(err error) {
	_ = s.wc.writeJSON(events.Event{
		Type:      events.TypeError,
		SessionID: s.sessionID,
		Code:      string(utils.CodeOf(err)),
		Message:   utils.SafeMessage(err),
		At:        time.Now().UTC(),
	})
}

func (s *wsSession) runCommands(ctx context.Context, cmds <-chan wsClientMsg) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-cmds:
			if err := s.command(ctx, msg); err != nil {
				s.log.WithError(err).WithField("command", msg.Type).Warn("ws command failed")
				s.reply(err)
			}
		}
	}
}

func (s *wsSession) command(ctx context.Context, msg wsClientMsg) error {
	switch msg.Type {
	case "select_source":
		return s.unit.SelectSource(ctx, msg.Kind)
	case "start_recording":
		if err := s.unit.StartRecording(ctx); err != nil {
			return utils.E(utils.CodeFailedPrecondition, "WSHandler.StartRecording", "select a capture source first", err)
		}
		return nil
	case "stop_recording":
		return s.submit(ctx, msg)
	case "finish":
		_, err := s.h.svc.Finish(ctx, s.userID, s.sessionID)
		return err
	}
	return nil
}

// submit finalizes the recording, grabs a frame and hands both to the orchestrator.
func (s *wsSession) submit(ctx context.Context, msg wsClientMsg) error {
	const op = "WSHandler.Submit"

	frame, err := s.unit.CaptureFrame()
	if err != nil {
		s.log.WithError(err).Warn("frame capture failed")
	}
	rec, err := s.unit.StopRecording(ctx)
	if err != nil {
		return utils.E(utils.CodeFailedPrecondition, op, "no recording in progress", err)
	}

	answer := orchestrator.Answer{
		Media: gateway.Media{MIMEType: rec.MIMEType, Data: rec.Data},
		Code:  msg.Code,
		Notes: msg.Notes,
	}
	if frame != nil {
		answer.Frame = &gateway.Media{MIMEType: frame.MIMEType, Data: frame.Data}
	}
	s.log.WithFields(logrus.Fields{"bytes": rec.Size(), "duration_ms": rec.Duration().Milliseconds()}).Info("answer recorded")

	_, err = s.h.svc.SubmitAnswer(ctx, s.userID, s.sessionID, answer)
	return err
}
