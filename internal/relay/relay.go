// internal/relay/relay.go
package relay

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/crissins/admit-care/internal/common/auth"
	"github.com/crissins/admit-care/internal/common/config"
	"github.com/crissins/admit-care/internal/common/errors"
	"github.com/crissins/admit-care/internal/common/logger"
	"github.com/crissins/admit-care/internal/common/observability"
	"github.com/crissins/admit-care/internal/tools"
)

// Relay accepts client realtime connections and pairs each one with an
// upstream model session. All sessions share the same resolved credential,
// instructions and tool set, fixed at startup.
type Relay struct {
	cfg          config.ModelConfig
	closeOnStore bool
	cred         auth.Credential
	tools        *tools.Set
	instructions string
	logger       logger.Logger
	obs          *observability.Observability

	upgrader websocket.Upgrader
	dialer   *websocket.Dialer
}

func New(cfg config.ModelConfig, closeOnStore bool, cred auth.Credential, toolSet *tools.Set, instructions string, log logger.Logger, obs *observability.Observability) *Relay {
	return &Relay{
		cfg:          cfg,
		closeOnStore: closeOnStore,
		cred:         cred,
		tools:        toolSet,
		instructions: instructions,
		logger:       log.With(map[string]interface{}{"component": "relay"}),
		obs:          obs,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins (configure for production)
			},
		},
		dialer: websocket.DefaultDialer,
	}
}

// Attach registers the realtime endpoint on the gateway mux.
func (r *Relay) Attach(mux *http.ServeMux, path string) {
	mux.HandleFunc(path, r.handleSession)
}

func (r *Relay) handleSession(w http.ResponseWriter, req *http.Request) {
	client, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		http.Error(w, "Failed to upgrade to WebSocket", http.StatusBadRequest)
		return
	}

	upstream, err := r.dialUpstream(req)
	if err != nil {
		r.logger.Error("upstream connect failed", map[string]interface{}{"error": err})
		client.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "upstream unavailable"))
		client.Close()
		return
	}

	id := uuid.NewString()
	r.logger.Info("session opened", map[string]interface{}{"session_id": id})

	sess := newSession(id, client, upstream, r.tools, r.instructions, r.closeOnStore, r.logger, r.obs)
	sess.run()
}

// dialUpstream opens the model-side realtime channel, carrying the resolved
// credential as request headers.
func (r *Relay) dialUpstream(req *http.Request) (*websocket.Conn, error) {
	target, err := r.upstreamURL()
	if err != nil {
		return nil, errors.NewUpstreamConnectFailedError(err)
	}

	header := http.Header{}
	if r.cred != nil {
		if err := r.cred.Apply(req.Context(), header); err != nil {
			return nil, errors.NewUpstreamConnectFailedError(err)
		}
	}

	conn, resp, err := r.dialer.DialContext(req.Context(), target, header)
	if err != nil {
		if resp != nil {
			return nil, errors.NewUpstreamConnectFailedError(fmt.Errorf("dial %s: %w (status %s)", target, err, resp.Status))
		}
		return nil, errors.NewUpstreamConnectFailedError(fmt.Errorf("dial %s: %w", target, err))
	}
	return conn, nil
}

func (r *Relay) upstreamURL() (string, error) {
	parsed, err := url.Parse(r.cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse model endpoint: %w", err)
	}

	switch parsed.Scheme {
	case "https":
		parsed.Scheme = "wss"
	case "http":
		parsed.Scheme = "ws"
	}

	parsed.Path = strings.TrimSuffix(parsed.Path, "/") + "/openai/realtime"
	q := parsed.Query()
	q.Set("api-version", r.cfg.APIVersion)
	q.Set("deployment", r.cfg.Deployment)
	parsed.RawQuery = q.Encode()

	return parsed.String(), nil
}
