// internal/relay/session.go
package relay

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/crissins/admit-care/internal/common/errors"
	"github.com/crissins/admit-care/internal/common/logger"
	"github.com/crissins/admit-care/internal/common/metrics"
	"github.com/crissins/admit-care/internal/common/observability"
	"github.com/crissins/admit-care/internal/tools"
)

// Session lifecycle states.
const (
	StateConnecting   = "connecting"
	StateActive       = "active"
	StateAwaitingTool = "awaiting_tool"
	StateClosing      = "closing"
	StateTerminal     = "terminal"
)

// outFrame is one websocket frame queued for a writer goroutine. Each
// connection has exactly one writer, which preserves per-direction ordering.
type outFrame struct {
	messageType int
	data        []byte
}

// session relays one client connection to one upstream model connection.
// Sessions share nothing mutable: the tool set and instructions are
// process-wide and read-only.
type session struct {
	id           string
	client       *websocket.Conn
	upstream     *websocket.Conn
	tools        *tools.Set
	instructions string
	closeOnStore bool
	logger       logger.Logger
	obs          *observability.Observability

	ctx    context.Context
	cancel context.CancelFunc

	clientOut    chan outFrame
	upstreamOut  chan outFrame
	toolRequests chan toolCall

	mu            sync.Mutex
	state         string
	stored        bool
	objectiveDone bool

	started time.Time
}

func newSession(id string, client, upstream *websocket.Conn, toolSet *tools.Set, instructions string, closeOnStore bool, log logger.Logger, obs *observability.Observability) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		id:           id,
		client:       client,
		upstream:     upstream,
		tools:        toolSet,
		instructions: instructions,
		closeOnStore: closeOnStore,
		logger:       log.With(map[string]interface{}{"session_id": id}),
		obs:          obs,
		ctx:          ctx,
		cancel:       cancel,
		clientOut:    make(chan outFrame, 64),
		upstreamOut:  make(chan outFrame, 64),
		toolRequests: make(chan toolCall, 8),
		state:        StateConnecting,
		started:      time.Now(),
	}
}

func (s *session) setState(state string) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// run drives the session until either side closes. It blocks until teardown
// is complete.
func (s *session) run() {
	metrics.SessionsActive.Inc()
	defer metrics.SessionsActive.Dec()

	// The server-side session parameters go up before any client frame, so
	// the model persona and tools are fixed from the first token.
	configure := map[string]interface{}{"type": eventSessionUpdate}
	overrideSessionUpdate(configure, s.instructions, s.tools.Definitions())
	if data, err := marshalEvent(configure); err == nil {
		if err := s.upstream.WriteMessage(websocket.TextMessage, data); err != nil {
			s.logger.Error("initial session configuration failed", map[string]interface{}{"error": err})
			s.teardown()
			return
		}
	}
	s.setState(StateActive)

	var writers sync.WaitGroup
	writers.Add(2)
	go func() { defer writers.Done(); s.writer(s.client, s.clientOut) }()
	go func() { defer writers.Done(); s.writer(s.upstream, s.upstreamOut) }()

	// Readers block in ReadMessage; closing the connections is the only way
	// to unblock them. Wait for the writers to flush queued frames first so
	// a graceful close frame still goes out.
	go func() {
		<-s.ctx.Done()
		writers.Wait()
		s.client.Close()
		s.upstream.Close()
	}()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); s.clientReader() }()
	go func() { defer wg.Done(); s.upstreamReader() }()
	go func() { defer wg.Done(); s.dispatchLoop() }()
	wg.Wait()
	writers.Wait()

	s.teardown()
}

func (s *session) teardown() {
	s.setState(StateTerminal)
	s.cancel()
	s.client.Close()
	s.upstream.Close()

	s.mu.Lock()
	stored := s.stored
	s.mu.Unlock()

	outcome := "disconnected"
	if stored {
		outcome = "completed"
	}
	metrics.SessionsTotal.WithLabelValues(outcome).Inc()
	if s.obs != nil {
		s.obs.RecordSessionCompleted(context.Background(), outcome, time.Since(s.started))
	}
	s.logger.Info("session closed", map[string]interface{}{
		"outcome":  outcome,
		"duration": time.Since(s.started).String(),
	})
}

// writer is the single writer for one connection. Frames leave in the order
// they were queued.
func (s *session) writer(conn *websocket.Conn, frames <-chan outFrame) {
	write := func(frame outFrame) error {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteMessage(frame.messageType, frame.data)
	}

	for {
		select {
		case frame := <-frames:
			if err := write(frame); err != nil {
				s.cancel()
				return
			}
		case <-s.ctx.Done():
			// Flush frames queued before cancellation, close frames
			// included.
			for {
				select {
				case frame := <-frames:
					if write(frame) != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (s *session) send(out chan<- outFrame, frame outFrame) {
	select {
	case <-s.ctx.Done():
	case out <- frame:
	}
}

func (s *session) sendEvent(out chan<- outFrame, ev map[string]interface{}) {
	data, err := marshalEvent(ev)
	if err != nil {
		s.logger.Error("encode event failed", map[string]interface{}{"error": err})
		return
	}
	s.send(out, outFrame{messageType: websocket.TextMessage, data: data})
}

// clientReader forwards client frames upstream. Binary frames (audio) pass
// through untouched; session.update is rewritten so the client cannot
// reconfigure the persona or tools.
func (s *session) clientReader() {
	defer s.cancel()
	for {
		messageType, data, err := s.client.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			s.send(s.upstreamOut, outFrame{messageType: messageType, data: data})
			continue
		}

		ev, evType, err := parseEvent(data)
		if err != nil {
			s.logger.Warn("unparseable client event dropped", map[string]interface{}{"error": err})
			continue
		}
		if evType == eventSessionUpdate {
			overrideSessionUpdate(ev, s.instructions, s.tools.Definitions())
			s.sendEvent(s.upstreamOut, ev)
			continue
		}
		s.send(s.upstreamOut, outFrame{messageType: messageType, data: data})
	}
}

// upstreamReader forwards model frames to the client, scrubbing internal
// configuration and intercepting tool calls.
func (s *session) upstreamReader() {
	defer s.cancel()
	for {
		messageType, data, err := s.upstream.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			s.send(s.clientOut, outFrame{messageType: messageType, data: data})
			continue
		}

		ev, evType, err := parseEvent(data)
		if err != nil {
			s.send(s.clientOut, outFrame{messageType: messageType, data: data})
			continue
		}

		switch evType {
		case eventSessionCreated, eventSessionUpdated:
			scrubSessionEvent(ev)
			s.sendEvent(s.clientOut, ev)

		case eventFunctionCallArgsDelta, eventFunctionCallArgsDone:
			// Internal tool plumbing, never shown to the client.

		case eventOutputItemAdded:
			if item := eventItem(ev); item != nil && itemType(item) == itemTypeFunctionCall {
				continue
			}
			s.send(s.clientOut, outFrame{messageType: messageType, data: data})

		case eventItemCreated:
			item := eventItem(ev)
			if item != nil && (itemType(item) == itemTypeFunctionCall || itemType(item) == itemTypeFunctionCallOutput) {
				continue
			}
			s.send(s.clientOut, outFrame{messageType: messageType, data: data})

		case eventOutputItemDone:
			if call, ok := extractToolCall(ev); ok {
				select {
				case <-s.ctx.Done():
					return
				case s.toolRequests <- *call:
				}
				continue
			}
			s.send(s.clientOut, outFrame{messageType: messageType, data: data})

		case eventResponseDone:
			stripFunctionCallOutput(ev)
			s.sendEvent(s.clientOut, ev)
			s.mu.Lock()
			done := s.objectiveDone
			s.mu.Unlock()
			if done && s.closeOnStore {
				s.setState(StateClosing)
				s.send(s.clientOut, outFrame{
					messageType: websocket.CloseMessage,
					data:        websocket.FormatCloseMessage(websocket.CloseNormalClosure, "intake complete"),
				})
				return
			}

		default:
			s.send(s.clientOut, outFrame{messageType: messageType, data: data})
		}
	}
}

// dispatchLoop owns per-session tool bookkeeping: one request at a time,
// the stored flag, and result injection. A pending call never blocks frame
// forwarding; it only pauses the next tool dispatch.
func (s *session) dispatchLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case call := <-s.toolRequests:
			s.setState(StateAwaitingTool)
			s.dispatch(call)
			if s.State() == StateAwaitingTool {
				s.setState(StateActive)
			}
		}
	}
}

func (s *session) dispatch(call toolCall) {
	log := s.logger.With(map[string]interface{}{"tool": call.Name, "call_id": call.CallID})

	result, err := s.invoke(call)
	if err != nil {
		toolErr := errors.ConvertToToolError(err)
		log.Warn("tool call failed", map[string]interface{}{"error": toolErr.Error()})
		if s.obs != nil {
			s.obs.RecordToolInvocation(s.ctx, call.Name, "error")
		}
		payload, merr := marshalEvent(toolErr.Payload())
		if merr != nil {
			payload = []byte(`{"error":{"code":"TOOL_EXECUTION_FAILED"}}`)
		}
		s.sendEvent(s.upstreamOut, toolOutputEvent(call.CallID, string(payload)))
		s.sendEvent(s.upstreamOut, responseCreateEvent())
		return
	}

	if s.obs != nil {
		s.obs.RecordToolInvocation(s.ctx, call.Name, "ok")
	}
	if result.ObjectiveComplete {
		s.mu.Lock()
		s.stored = true
		s.objectiveDone = true
		s.mu.Unlock()
		log.Info("session objective reached", nil)
	}
	s.sendEvent(s.upstreamOut, toolOutputEvent(call.CallID, result.Body))
	s.sendEvent(s.upstreamOut, responseCreateEvent())
}

func (s *session) invoke(call toolCall) (*tools.Result, error) {
	descriptor, err := s.tools.Get(call.Name)
	if err != nil {
		return nil, err
	}

	// A second store after a successful one is a protocol error; the
	// handler is never invoked.
	if call.Name == tools.StoreToolName {
		s.mu.Lock()
		alreadyStored := s.stored
		s.mu.Unlock()
		if alreadyStored {
			return nil, errors.NewIntakeAlreadyStoredError(s.id)
		}
	}

	return descriptor.Handler(s.ctx, call.Arguments)
}
