package tts

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/callforge/voicecall/pkg/voice"
)

// State is the stream connection state.
type State int

const (
	// StateClosed means no transport is up.
	StateClosed State = iota
	// StateConnecting means the dial/handshake is in flight.
	StateConnecting
	// StateOpen means the stream is live and accepting text.
	StateOpen
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

// Callbacks are the streamer's upward events. OnOpen fires once the
// transport is actually open, which may be well after Connect has already
// returned via its soft timeout. OnSpeechEnd fires when the playback queue
// drains; OnError fires at most once per streamer when the transport fails.
// The streamer never reconnects on its own: uncontrolled reconnection causes
// duplicate playback, so failures surface here and the call state machine
// decides.
type Callbacks struct {
	OnOpen      func()
	OnSpeechEnd func()
	OnError     func(error)
}

// Streamer owns the bidirectional synthesis stream and its playback
// pipeline.
type Streamer struct {
	cfg    Config
	cb     Callbacks
	player *Player
	logger *slog.Logger
	dialer *websocket.Dialer

	mu              sync.Mutex
	state           State
	conn            *websocket.Conn
	pending         []string
	connectWaiting  bool
	lastServerError string

	writeMu   sync.Mutex
	closed    chan struct{}
	closeOnce sync.Once
	errOnce   sync.Once
}

// NewStreamer creates a streamer over the given playback pipeline. A nil
// logger falls back to slog.Default().
func NewStreamer(cfg Config, player *Player, cb Callbacks, logger *slog.Logger) *Streamer {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	s := &Streamer{
		cfg:    cfg,
		cb:     cb,
		player: player,
		logger: logger,
		dialer: websocket.DefaultDialer,
		closed: make(chan struct{}),
	}
	player.SetCallbacks(cb.OnSpeechEnd, s.reportError)
	return s
}

// State returns the current connection state.
func (s *Streamer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect starts the dial and sends the handshake. It returns once the
// transport reports open, or after the soft timeout with the dial still in
// flight so the caller is never blocked indefinitely. A nil return means
// only that the dial is underway: the actual open is signaled through
// OnOpen, and a late dial failure surfaces through OnError. A dial failure
// inside the window is returned directly.
func (s *Streamer) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateConnecting
	s.connectWaiting = true
	s.mu.Unlock()

	opened := make(chan error, 1)
	go s.dial(ctx, opened)

	select {
	case err := <-opened:
		s.mu.Lock()
		s.connectWaiting = false
		s.mu.Unlock()
		return err
	case <-time.After(s.cfg.ConnectSoftTimeout):
	case <-s.closed:
	}

	// Soft-resolved. The flag flip and the drain happen under the lock the
	// dial goroutine also takes, so a failure either reaches the caller here
	// or goes through OnError, never neither.
	s.mu.Lock()
	s.connectWaiting = false
	select {
	case err := <-opened:
		s.mu.Unlock()
		return err
	default:
	}
	s.mu.Unlock()
	return nil
}

func (s *Streamer) dial(ctx context.Context, opened chan<- error) {
	header := http.Header{}
	if s.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+s.cfg.Token)
	}

	conn, resp, err := s.dialer.DialContext(ctx, s.cfg.Endpoint, header)
	if err != nil {
		s.failDial(classifyDialError(err, resp), opened)
		return
	}

	handshake := map[string]any{
		"text":           " ",
		"voice_id":       s.cfg.VoiceID,
		"voice_settings": s.cfg.VoiceSettings,
	}
	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := conn.WriteJSON(handshake); err != nil {
		conn.Close()
		s.failDial(voice.WrapError(voice.KindSynthesisConnectionFailed, "Voice service handshake failed", err), opened)
		return
	}

	s.mu.Lock()
	select {
	case <-s.closed:
		// Closed while dialing.
		s.mu.Unlock()
		conn.Close()
		return
	default:
	}
	s.conn = conn
	s.state = StateOpen
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	// Flush text buffered while the stream was opening, in order.
	for _, text := range pending {
		if err := s.writeSpeak(text); err != nil {
			s.logger.Debug("pending flush failed", "error", err)
			break
		}
	}

	go s.readLoop(conn)
	if s.cfg.KeepAlive > 0 {
		go s.keepAliveLoop()
	}

	if s.cb.OnOpen != nil {
		s.cb.OnOpen()
	}
	select {
	case opened <- nil:
	default:
	}
}

// failDial reports a dial or handshake failure to whichever party is still
// listening: Connect while it blocks, OnError once it has soft-resolved. A
// deliberate Close during the dial stays silent.
func (s *Streamer) failDial(cerr error, opened chan<- error) {
	s.mu.Lock()
	s.state = StateClosed
	if s.connectWaiting {
		s.connectWaiting = false
		opened <- cerr // buffered, and Connect is still draining
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	select {
	case <-s.closed:
	default:
		s.reportError(cerr)
	}
}

// Send queues text for synthesis. When the stream is open the message goes
// out immediately; otherwise it is buffered and flushed, in order, as soon
// as the connection opens.
func (s *Streamer) Send(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	s.mu.Lock()
	if s.state == StateOpen && s.conn != nil {
		s.mu.Unlock()
		if err := s.writeSpeak(text); err != nil {
			s.logger.Debug("speak write failed", "error", err)
		}
		return
	}
	s.pending = append(s.pending, text)
	s.mu.Unlock()
}

// PendingCount reports how much text is buffered awaiting the connection.
func (s *Streamer) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close stops playback, clears queues, and closes the transport.
// Idempotent.
func (s *Streamer) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.mu.Lock()
		s.state = StateClosed
		conn := s.conn
		s.conn = nil
		s.pending = nil
		s.mu.Unlock()

		s.player.Stop()
		if conn != nil {
			conn.Close()
		}
	})
}

func (s *Streamer) writeSpeak(text string) error {
	// The provider treats a trailing space as a generation hint.
	if !strings.HasSuffix(text, " ") {
		text += " "
	}
	return s.writeJSON(map[string]any{"text": text})
}

func (s *Streamer) writeJSON(payload any) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("stream not open")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := conn.WriteJSON(payload); err != nil {
		if reason := s.failureReason(); reason != "" {
			return fmt.Errorf("%w (%s)", err, reason)
		}
		return err
	}
	return nil
}

func (s *Streamer) readLoop(conn *websocket.Conn) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			s.mu.Lock()
			s.state = StateClosed
			s.conn = nil
			s.mu.Unlock()
			s.reportError(voice.WrapError(voice.KindSilentDisconnect, "Voice service connection lost", err))
			return
		}

		if mt == websocket.BinaryMessage {
			s.player.Enqueue(data, false)
			continue
		}

		frame, ok := parseControlFrame(data)
		if !ok {
			continue
		}
		if frame.serverError != "" {
			s.setLastServerError(frame.serverError)
		}
		if len(frame.audio) == 0 && !frame.final {
			continue
		}
		s.player.Enqueue(frame.audio, frame.final)
	}
}

func (s *Streamer) keepAliveLoop() {
	ticker := time.NewTicker(s.cfg.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-s.closed:
			return
		case <-ticker.C:
			s.mu.Lock()
			open := s.state == StateOpen
			conn := s.conn
			s.mu.Unlock()
			if !open || conn == nil {
				return
			}
			if err := s.writeJSON(map[string]any{"text": ""}); err != nil {
				// Failed ping means the stream is already dead; close the
				// transport so the read loop unblocks and surfaces it.
				conn.Close()
				return
			}
		}
	}
}

// reportError surfaces the first transport failure. One streamer serves one
// session, so a single report is enough; everything after the first is the
// same failure echoing.
func (s *Streamer) reportError(err error) {
	s.errOnce.Do(func() {
		if s.cb.OnError != nil {
			s.cb.OnError(err)
		}
	})
}

func (s *Streamer) setLastServerError(msg string) {
	msg = strings.Join(strings.Fields(msg), " ")
	if msg == "" {
		return
	}
	if len(msg) > 300 {
		msg = msg[:300] + "…"
	}
	s.mu.Lock()
	s.lastServerError = msg
	s.mu.Unlock()
}

func (s *Streamer) failureReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastServerError == "" {
		return ""
	}
	return "server_error=" + s.lastServerError
}

func classifyDialError(err error, resp *http.Response) error {
	if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
		return voice.WrapError(voice.KindSynthesisAuthFailed, "Voice service rejected credentials", err)
	}
	return voice.WrapError(voice.KindSynthesisConnectionFailed, "Could not reach voice service", err)
}
