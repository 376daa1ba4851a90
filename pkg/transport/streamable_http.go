package transport

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ajitpratap0/mcp-streamhttp-go/pkg/errors"
	"github.com/ajitpratap0/mcp-streamhttp-go/pkg/logging"
	"github.com/ajitpratap0/mcp-streamhttp-go/pkg/protocol"
	"github.com/ajitpratap0/mcp-streamhttp-go/pkg/session"
)

// Transport header names.
const (
	HeaderSessionID       = "Mcp-Session-Id"
	HeaderProtocolVersion = "MCP-Protocol-Version"
	HeaderLastEventID     = "Last-Event-ID"
)

const (
	contentTypeJSON        = "application/json"
	contentTypeEventStream = "text/event-stream"
)

// StreamableHTTPTransport is the server side of the MCP Streamable HTTP
// transport. It is an http.Handler for a single endpoint: POST carries
// client-to-server JSON-RPC messages, GET opens a server-to-client SSE
// stream, DELETE terminates the session.
type StreamableHTTPTransport struct {
	config  Config
	logger  logging.Logger
	store   session.Store
	limiter *rateLimiter

	// ownStore is set when the transport created its own store and is
	// therefore responsible for closing it.
	ownStore bool

	mu       sync.RWMutex
	handler  MessageHandler
	sessions map[string]*session.Session
	started  bool
	closed   bool

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewStreamableHTTPTransport builds a transport from config. In
// stateful mode a nil SessionStore falls back to the in-memory store.
func NewStreamableHTTPTransport(config Config) (*StreamableHTTPTransport, error) {
	config = config.withDefaults()

	t := &StreamableHTTPTransport{
		config:   config,
		logger:   config.Logger,
		sessions: make(map[string]*session.Session),
	}

	if config.Stateful {
		t.store = config.SessionStore
		if t.store == nil {
			t.store = session.NewMemoryStoreWithClock(config.Clock)
			t.ownStore = true
		}
	}

	if config.RateLimit != nil && config.RateLimit.Enabled {
		limiter, err := newRateLimiter(config.RateLimit)
		if err != nil {
			return nil, fmt.Errorf("configuring rate limiter: %w", err)
		}
		t.limiter = limiter
	}

	return t, nil
}

// SetHandler installs the message consumer. Must be called before the
// transport serves traffic.
func (t *StreamableHTTPTransport) SetHandler(h MessageHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

// Start prepares the transport for traffic: it starts the handler and,
// in stateful mode, the idle-session sweep.
func (t *StreamableHTTPTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return stderrors.New("transport already started")
	}
	t.started = true
	handler := t.handler
	// The base context outlives the request that started the transport.
	t.baseCtx, t.cancel = context.WithCancel(context.WithoutCancel(ctx))
	t.mu.Unlock()

	if handler != nil {
		if err := handler.Start(ctx); err != nil {
			return fmt.Errorf("starting message handler: %w", err)
		}
	}

	if t.config.Stateful {
		t.wg.Add(1)
		go t.sweepLoop()
	}

	t.logger.Info("streamable http transport started",
		logging.Bool("stateful", t.config.Stateful),
		logging.Bool("json_response", t.config.EnableJSONResponse),
		logging.Bool("resumability", t.resumable()),
	)
	return nil
}

// Close terminates every session, stops the sweep, and closes the
// handler and any transport-owned store. Idempotent.
func (t *StreamableHTTPTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	cancel := t.cancel
	handler := t.handler
	sessions := make([]*session.Session, 0, len(t.sessions))
	for id, sess := range t.sessions {
		sessions = append(sessions, sess)
		delete(t.sessions, id)
	}
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, sess := range sessions {
		sess.Terminate()
	}
	t.wg.Wait()

	var errs []error
	if handler != nil {
		if err := handler.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if t.ownStore && t.store != nil {
		if err := t.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	t.setActiveSessions()
	return stderrors.Join(errs...)
}

// ServeHTTP routes one request through the transport. Origin is
// validated before anything else; an unknown method gets 405 with the
// Allow header set.
func (t *StreamableHTTPTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if origin := r.Header.Get("Origin"); origin != "" && !t.isOriginAllowed(origin) {
		t.logger.Warn("rejected request from disallowed origin",
			logging.String("origin", origin),
			logging.String("remote_addr", r.RemoteAddr),
		)
		t.writeError(w, http.StatusForbidden, errors.OriginForbidden(origin), "")
		return
	}

	switch r.Method {
	case http.MethodPost:
		t.handlePost(w, r)
	case http.MethodGet:
		t.handleGet(w, r)
	case http.MethodDelete:
		t.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		t.writeError(w, http.StatusMethodNotAllowed, errors.MethodNotAllowed(r.Method), "")
	}
}

// handlePost validates and classifies one inbound message, resolves its
// session, and dispatches it to the handler. Requests block until the
// response, a timeout, or a disconnect; notifications and responses are
// accepted with 202.
func (t *StreamableHTTPTransport) handlePost(w http.ResponseWriter, r *http.Request) {
	if !acceptsMediaType(r, contentTypeJSON) || !acceptsMediaType(r, contentTypeEventStream) {
		t.writeError(w, http.StatusNotAcceptable, errors.NotAcceptable(), "")
		return
	}
	if mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mediaType != contentTypeJSON {
		t.writeError(w, http.StatusUnsupportedMediaType, errors.UnsupportedMediaType(), "")
		return
	}
	if r.ContentLength > t.config.MaxBodySize {
		t.writeError(w, http.StatusRequestEntityTooLarge,
			errors.PayloadTooLarge(r.ContentLength, t.config.MaxBodySize), "")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, t.config.MaxBodySize))
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if stderrors.As(err, &maxBytesErr) {
			t.writeError(w, http.StatusRequestEntityTooLarge,
				errors.PayloadTooLarge(r.ContentLength, t.config.MaxBodySize), "")
			return
		}
		t.writeError(w, http.StatusBadRequest, errors.ParseFailed(err), "")
		return
	}

	msg, err := protocol.ParseMessage(body)
	if err != nil {
		switch {
		case stderrors.Is(err, protocol.ErrBatchNotSupported):
			t.writeError(w, http.StatusBadRequest, errors.BatchNotSupported(), "")
		case stderrors.Is(err, protocol.ErrInvalidMessage):
			t.writeError(w, http.StatusBadRequest, errors.InvalidMessage(""), "")
		default:
			t.writeError(w, http.StatusBadRequest, errors.ParseFailed(err), "")
		}
		return
	}

	sess, ephemeral, ok := t.resolveSession(w, r, msg)
	if !ok {
		return
	}
	if ephemeral {
		// Ephemeral sessions live for exactly one request.
		defer sess.Terminate()
	}

	if !t.checkProtocolVersion(w, r, sess, msg) {
		return
	}
	if !t.checkRateLimit(w, r, sess) {
		return
	}

	sess.Touch()
	t.persistSession(r.Context(), sess)

	switch msg.Kind {
	case protocol.KindRequest:
		t.dispatchRequest(w, r, sess, msg)
	case protocol.KindNotification:
		if msg.Method() == protocol.NotificationInitialized {
			sess.CompleteInitialize()
			t.persistSession(r.Context(), sess)
		}
		t.dispatchAccepted(r, sess, msg)
		t.writeAccepted(w, sess)
	case protocol.KindResponse:
		t.dispatchAccepted(r, sess, msg)
		t.writeAccepted(w, sess)
	}
}

// resolveSession maps a classified message to its session. Initialize
// mints a new session (terminating a stateful predecessor named by the
// header); other messages require a live session in stateful mode and
// get a synthesized per-request session in stateless mode. On failure
// the response is already written and ok is false.
func (t *StreamableHTTPTransport) resolveSession(w http.ResponseWriter, r *http.Request, msg *protocol.Message) (sess *session.Session, ephemeral bool, ok bool) {
	headerID := r.Header.Get(HeaderSessionID)

	if !t.config.Stateful {
		// Stateless never 404s: any client-supplied id is accepted and a
		// fresh one is minted when absent.
		id := headerID
		if id == "" {
			id = t.config.SessionIDGenerator()
		}
		sess = session.NewSession(id, t.config.Clock)
		if msg.IsInitialize() {
			sess.BeginInitialize(t.negotiatedVersion(msg))
		} else {
			sess.SetProtocolVersion(protocol.DefaultProtocolVersion)
			sess.MarkInitialized()
		}
		return sess, true, true
	}

	if msg.IsInitialize() {
		if headerID != "" {
			// A second initialize supersedes the old session entirely.
			if old := t.takeSession(headerID); old != nil {
				old.Terminate()
				t.deleteStored(r.Context(), headerID)
				t.recordSessionEvent("terminated")
			}
		}
		sess = session.NewSession(t.config.SessionIDGenerator(), t.config.Clock)
		sess.BeginInitialize(t.negotiatedVersion(msg))
		t.putSession(sess)
		t.recordSessionEvent("created")
		t.logger.Info("session created",
			logging.String("session_id", sess.ID()),
			logging.String("protocol_version", sess.ProtocolVersion()),
		)
		return sess, false, true
	}

	if headerID == "" {
		t.writeError(w, http.StatusBadRequest, errors.SessionHeaderRequired(), "")
		return nil, false, false
	}
	sess = t.lookupSession(r.Context(), headerID)
	if sess == nil {
		t.writeError(w, http.StatusNotFound, errors.SessionNotFound(headerID), "")
		return nil, false, false
	}
	return sess, false, true
}

// negotiatedVersion extracts the client's requested revision from
// initialize params and settles on a supported one.
func (t *StreamableHTTPTransport) negotiatedVersion(msg *protocol.Message) string {
	var params protocol.InitializeParams
	if msg.Request != nil && msg.Request.Params != nil {
		// A malformed params block falls through to the default; the
		// handler reports the JSON-RPC level error.
		_ = json.Unmarshal(msg.Request.Params, &params)
	}
	if params.ProtocolVersion == "" {
		return protocol.DefaultProtocolVersion
	}
	return protocol.NegotiateProtocolVersion(params.ProtocolVersion)
}

// checkProtocolVersion enforces the MCP-Protocol-Version header on
// stateful non-initialize traffic. An absent header assumes the default
// for compatibility with older clients; stateless sessions have no
// negotiated revision to hold the client to, so the header is ignored.
func (t *StreamableHTTPTransport) checkProtocolVersion(w http.ResponseWriter, r *http.Request, sess *session.Session, msg *protocol.Message) bool {
	if msg.IsInitialize() || !t.config.Stateful {
		return true
	}
	version := r.Header.Get(HeaderProtocolVersion)
	if version == "" {
		if sess.ProtocolVersion() == "" {
			sess.SetProtocolVersion(protocol.DefaultProtocolVersion)
		}
		return true
	}
	if !protocol.IsSupportedProtocolVersion(version) {
		t.writeError(w, http.StatusBadRequest,
			errors.UnsupportedProtocolVersion(version, protocol.SupportedProtocolVersions), sess.ID())
		return false
	}
	return true
}

// checkRateLimit applies the configured GCRA limit keyed by session,
// falling back to the peer address.
func (t *StreamableHTTPTransport) checkRateLimit(w http.ResponseWriter, r *http.Request, sess *session.Session) bool {
	if t.limiter == nil {
		return true
	}
	key := sess.ID()
	if key == "" {
		key = r.RemoteAddr
	}
	allowed, retryAfter, err := t.limiter.allow(r.Context(), key)
	if err != nil {
		t.logger.Warn("rate limiter failure, allowing request", logging.ErrorField(err))
		return true
	}
	if !allowed {
		seconds := int(retryAfter / time.Second)
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		t.writeError(w, http.StatusTooManyRequests, errors.TooManyRequests(seconds), sess.ID())
		return false
	}
	return true
}

// dispatchRequest registers the pending request, hands the message to
// the handler, and delivers the response either as a blocking JSON body
// or as the final event of a per-request SSE stream.
func (t *StreamableHTTPTransport) dispatchRequest(w http.ResponseWriter, r *http.Request, sess *session.Session, msg *protocol.Message) {
	key := protocol.IDKey(msg.ID())
	pr := session.NewPendingRequest(msg.ID(), sess.ID())
	if !sess.RegisterPending(key, pr) {
		if sess.Terminated() {
			t.writeError(w, http.StatusNotFound, errors.SessionNotFound(sess.ID()), sess.ID())
			return
		}
		t.writeError(w, http.StatusBadRequest, errors.DuplicateRequestID(msg.ID()), sess.ID())
		return
	}

	// Armed by the serve functions once a delivery mode is bound, so a
	// firing timer always has a waiter or stream to resolve into.
	armTimeout := func() {
		timer := t.config.Clock.AfterFunc(t.config.RequestTimeout, func() {
			sess.TakePending(key)
			if pr.ResolveTimeout() {
				t.recordSSEEvent("timeout")
				t.logger.Warn("request timed out",
					logging.String("session_id", sess.ID()),
					logging.String("method", msg.Method()),
					logging.Duration("timeout", t.config.RequestTimeout),
				)
			}
		})
		pr.SetTimer(timer)
	}

	if t.config.EnableJSONResponse {
		t.serveJSONRequest(w, r, sess, msg, key, pr, armTimeout)
		return
	}
	t.serveSSERequest(w, r, sess, msg, key, pr, armTimeout)
}

// serveJSONRequest blocks the POST goroutine on the pending request's
// waiter and replies with a single JSON body.
func (t *StreamableHTTPTransport) serveJSONRequest(w http.ResponseWriter, r *http.Request, sess *session.Session, msg *protocol.Message, key string, pr *session.PendingRequest, armTimeout func()) {
	waiter := pr.BindWaiter()
	armTimeout()
	t.deliver(r, sess, nil, msg)

	select {
	case result := <-waiter:
		w.Header().Set("Content-Type", contentTypeJSON)
		t.setSessionHeader(w, sess, msg)
		w.WriteHeader(result.Status)
		_, _ = w.Write(result.Payload)
	case <-r.Context().Done():
		sess.TakePending(key)
		pr.Abandon()
	}
}

// serveSSERequest opens a per-request SSE stream whose final event is
// the response; the stream closes once it is written.
func (t *StreamableHTTPTransport) serveSSERequest(w http.ResponseWriter, r *http.Request, sess *session.Session, msg *protocol.Message, key string, pr *session.PendingRequest, armTimeout func()) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		sess.TakePending(key)
		pr.Abandon()
		t.writeError(w, http.StatusInternalServerError,
			errors.CreateInternalError("sse", stderrors.New("response writer does not support streaming")), sess.ID())
		return
	}

	w.Header().Set("Content-Type", contentTypeEventStream)
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	t.setSessionHeader(w, sess, msg)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Per-request streams carry no replay ring; their lifetime is the
	// single response.
	stream := session.NewStream(w, flusher, 0)
	withID := t.config.Stateful && t.resumable()
	pr.BindStream(stream, withID, sess.NextEventID)
	if !sess.AddStream(stream) {
		sess.TakePending(key)
		pr.ResolveTerminated()
		return
	}
	defer sess.RemoveStream(stream.ID())
	armTimeout()

	t.deliver(r, sess, stream, msg)

	select {
	case <-stream.Done():
	case <-r.Context().Done():
		sess.TakePending(key)
		pr.Abandon()
		stream.Close()
	}
}

// dispatchAccepted hands a notification or client response to the
// handler on its own goroutine; the HTTP response is 202 regardless.
func (t *StreamableHTTPTransport) dispatchAccepted(r *http.Request, sess *session.Session, msg *protocol.Message) {
	t.deliver(r, sess, nil, msg)
}

// deliver invokes the handler with the message's delivery scope. The
// context survives the POST returning 202, so handlers can do real work
// for notifications; requests observe client disconnects through it.
func (t *StreamableHTTPTransport) deliver(r *http.Request, sess *session.Session, postStream *session.Stream, msg *protocol.Message) {
	t.mu.RLock()
	handler := t.handler
	t.mu.RUnlock()
	if handler == nil {
		t.logger.Error("no message handler installed, dropping message",
			logging.String("method", msg.Method()))
		return
	}

	sc := &scope{session: sess, postStream: postStream, stateful: t.config.Stateful}
	ctx := contextWithScope(context.WithoutCancel(r.Context()), sc)
	if msg.Kind == protocol.KindRequest {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		reqDone := r.Context().Done()
		go func() {
			select {
			case <-reqDone:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	raw := msg.Raw
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				t.logger.Error("message handler panicked",
					logging.Any("panic", rec),
					logging.String("method", msg.Method()),
					logging.String("session_id", sess.ID()),
				)
			}
		}()
		handler.OnMessage(ctx, raw)
	}()
}

// Send delivers one outbound JSON-RPC message from the handler.
// Responses resolve the pending request they answer and are dropped
// silently when nothing is waiting. Server-initiated requests and
// notifications prefer the originating POST stream and otherwise fan
// out to the session's open GET streams; stateless sessions without an
// active POST stream drop them.
func (t *StreamableHTTPTransport) Send(ctx context.Context, msg json.RawMessage) error {
	parsed, err := protocol.ParseMessage(msg)
	if err != nil {
		return fmt.Errorf("classifying outbound message: %w", err)
	}

	sc := scopeFromContext(ctx)

	if parsed.Kind == protocol.KindResponse {
		t.resolvePending(sc, parsed)
		return nil
	}

	if sc == nil || sc.session == nil {
		t.logger.Debug("dropping outbound message with no delivery scope",
			logging.String("method", parsed.Method()))
		return nil
	}
	sess := sc.session
	withID := t.config.Stateful && t.resumable()

	if sc.postStream != nil && sc.postStream.Active() {
		var eventID uint64
		if withID {
			eventID = sess.NextEventID()
		}
		if err := sc.postStream.WriteEvent(eventID, withID, msg); err == nil {
			t.recordSSEEvent("notification")
			return nil
		}
		// The POST stream went away mid-send; fall through to the GET
		// streams.
	}

	if !t.config.Stateful {
		t.logger.Debug("dropping server-initiated message in stateless mode",
			logging.String("method", parsed.Method()),
			logging.String("session_id", sess.ID()),
		)
		return nil
	}

	delivered := false
	for _, stream := range sess.Streams() {
		if sc.postStream != nil && stream.ID() == sc.postStream.ID() {
			continue
		}
		if !stream.Active() {
			continue
		}
		var eventID uint64
		if withID {
			// Each stream write gets its own id so replay order matches
			// delivery order on that stream.
			eventID = sess.NextEventID()
		}
		if err := stream.WriteEvent(eventID, withID, msg); err == nil {
			delivered = true
			t.recordSSEEvent("notification")
		}
	}
	if !delivered {
		t.logger.Debug("no open stream for server-initiated message",
			logging.String("method", parsed.Method()),
			logging.String("session_id", sess.ID()),
		)
	}
	return nil
}

// resolvePending routes an outbound response to the pending request
// with the matching id. Scope-first, then a scan of live sessions for
// handlers replying from a background context. Unmatched responses are
// dropped.
func (t *StreamableHTTPTransport) resolvePending(sc *scope, parsed *protocol.Message) {
	key := protocol.IDKey(parsed.Response.ID)

	if sc != nil && sc.session != nil {
		if pr := sc.session.TakePending(key); pr != nil {
			t.recordSSEEvent("response")
			pr.Resolve(parsed.Raw)
			return
		}
	}

	t.mu.RLock()
	sessions := make([]*session.Session, 0, len(t.sessions))
	for _, sess := range t.sessions {
		sessions = append(sessions, sess)
	}
	t.mu.RUnlock()

	for _, sess := range sessions {
		if pr := sess.TakePending(key); pr != nil {
			t.recordSSEEvent("response")
			pr.Resolve(parsed.Raw)
			return
		}
	}
	t.logger.Debug("dropping response with no pending request",
		logging.String("request_id", key))
}

// handleGet opens the session's server-to-client SSE stream, replaying
// missed events when the client presents Last-Event-ID.
func (t *StreamableHTTPTransport) handleGet(w http.ResponseWriter, r *http.Request) {
	if !acceptsMediaType(r, contentTypeEventStream) {
		t.writeError(w, http.StatusNotAcceptable, errors.NotAcceptableEventStream(), "")
		return
	}
	headerID := r.Header.Get(HeaderSessionID)
	if headerID == "" {
		t.writeError(w, http.StatusBadRequest, errors.SessionHeaderRequired(), "")
		return
	}

	var lastEventID uint64
	var resuming bool
	if raw := r.Header.Get(HeaderLastEventID); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			t.writeError(w, http.StatusBadRequest, errors.InvalidLastEventID(raw), headerID)
			return
		}
		lastEventID = id
		resuming = true
	}

	if !t.config.Stateful {
		// Stateless has no server-initiated traffic: hold the stream
		// open but never write to it.
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.writeError(w, http.StatusInternalServerError,
				errors.CreateInternalError("sse", stderrors.New("response writer does not support streaming")), headerID)
			return
		}
		t.writeSSEHeaders(w, headerID)
		flusher.Flush()
		<-r.Context().Done()
		return
	}

	sess := t.lookupSession(r.Context(), headerID)
	if sess == nil {
		t.writeError(w, http.StatusNotFound, errors.SessionNotFound(headerID), "")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		t.writeError(w, http.StatusInternalServerError,
			errors.CreateInternalError("sse", stderrors.New("response writer does not support streaming")), sess.ID())
		return
	}

	historySize := 0
	if t.resumable() {
		historySize = t.config.EventHistorySize
	}
	stream := session.NewStream(w, flusher, historySize)
	if !sess.AddStream(stream) {
		t.writeError(w, http.StatusNotFound, errors.SessionNotFound(sess.ID()), sess.ID())
		return
	}

	t.writeSSEHeaders(w, sess.ID())
	flusher.Flush()
	sess.Touch()

	if resuming && t.resumable() {
		t.replay(sess, stream, lastEventID)
	} else {
		// A reconnect without Last-Event-ID forfeits the detached
		// rings; drop them rather than let them pile up.
		t.pruneInactiveStreams(sess, stream)
	}

	t.logger.Debug("sse stream opened",
		logging.String("session_id", sess.ID()),
		logging.String("stream_id", stream.ID()),
		logging.Bool("resuming", resuming),
	)

	select {
	case <-stream.Done():
		// Session terminated or the stream was closed server-side.
		sess.RemoveStream(stream.ID())
	case <-r.Context().Done():
		if t.resumable() {
			// Keep the ring registered so a reconnect can replay it.
			stream.Detach()
		} else {
			stream.Close()
			sess.RemoveStream(stream.ID())
		}
	}
}

// replay writes every event after lastEventID onto the new stream with
// its original id. The writes land in the new stream's ring, so the
// rings of detached predecessors can be dropped afterwards.
func (t *StreamableHTTPTransport) replay(sess *session.Session, stream *session.Stream, lastEventID uint64) {
	events := sess.EventsAfter(lastEventID)
	for _, ev := range events {
		if err := stream.WriteEvent(ev.ID, true, ev.Payload); err != nil {
			return
		}
		t.recordSSEEvent("replay")
	}

	t.pruneInactiveStreams(sess, stream)

	if len(events) > 0 {
		t.logger.Debug("replayed events",
			logging.String("session_id", sess.ID()),
			logging.Uint64("last_event_id", lastEventID),
			logging.Int("count", len(events)),
		)
	}
}

// pruneInactiveStreams drops every detached stream except keep. Runs on
// each GET registration so abandoned rings do not accumulate.
func (t *StreamableHTTPTransport) pruneInactiveStreams(sess *session.Session, keep *session.Stream) {
	for _, st := range sess.Streams() {
		if st.ID() == keep.ID() || st.Active() {
			continue
		}
		st.Close()
		sess.RemoveStream(st.ID())
	}
}

// handleDelete terminates the session named by the header. Stateless
// mode has nothing to delete and acknowledges unconditionally.
func (t *StreamableHTTPTransport) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !t.config.Stateful {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	headerID := r.Header.Get(HeaderSessionID)
	if headerID == "" {
		t.writeError(w, http.StatusBadRequest, errors.SessionHeaderRequired(), "")
		return
	}
	sess := t.takeSession(headerID)
	if sess == nil {
		if _, err := t.store.Get(r.Context(), headerID); err != nil {
			t.writeError(w, http.StatusNotFound, errors.SessionNotFound(headerID), "")
			return
		}
		t.deleteStored(r.Context(), headerID)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	sess.Terminate()
	t.deleteStored(r.Context(), headerID)
	t.recordSessionEvent("terminated")
	t.logger.Info("session terminated", logging.String("session_id", headerID))
	w.WriteHeader(http.StatusNoContent)
}

// sweepLoop expires idle stateful sessions. Recover keeps a panic in
// the sweep from killing the transport.
func (t *StreamableHTTPTransport) sweepLoop() {
	defer t.wg.Done()
	defer func() {
		if rec := recover(); rec != nil {
			t.logger.Error("session sweep panicked", logging.Any("panic", rec))
		}
	}()

	interval := t.config.SessionTimeout / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := t.config.Clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.baseCtx.Done():
			return
		case <-ticker.Chan():
			t.sweepIdleSessions()
		}
	}
}

// sweepIdleSessions terminates sessions idle past the session timeout.
func (t *StreamableHTTPTransport) sweepIdleSessions() {
	cutoff := t.config.Clock.Now().Add(-t.config.SessionTimeout)

	t.mu.Lock()
	var expired []*session.Session
	for id, sess := range t.sessions {
		if sess.LastActivity().Before(cutoff) {
			expired = append(expired, sess)
			delete(t.sessions, id)
		}
	}
	t.mu.Unlock()

	for _, sess := range expired {
		sess.Terminate()
		t.deleteStored(context.Background(), sess.ID())
		t.recordSessionEvent("expired")
		t.logger.Info("session expired", logging.String("session_id", sess.ID()))
	}
	if len(expired) > 0 {
		t.setActiveSessions()
	}
}

// lookupSession finds a live session by id, falling back to the store
// so stateful sessions survive process restarts. Terminated sessions
// report as absent.
func (t *StreamableHTTPTransport) lookupSession(ctx context.Context, id string) *session.Session {
	t.mu.RLock()
	sess := t.sessions[id]
	t.mu.RUnlock()
	if sess != nil {
		if sess.Terminated() {
			return nil
		}
		return sess
	}

	data, err := t.store.Get(ctx, id)
	if err != nil {
		return nil
	}
	restored := session.Restore(data, t.config.Clock)

	t.mu.Lock()
	// Another request may have restored it concurrently.
	if existing := t.sessions[id]; existing != nil {
		t.mu.Unlock()
		if existing.Terminated() {
			return nil
		}
		return existing
	}
	t.sessions[id] = restored
	t.mu.Unlock()

	t.recordSessionEvent("recovered")
	t.setActiveSessions()
	return restored
}

func (t *StreamableHTTPTransport) putSession(sess *session.Session) {
	t.mu.Lock()
	t.sessions[sess.ID()] = sess
	t.mu.Unlock()
	t.setActiveSessions()
}

func (t *StreamableHTTPTransport) takeSession(id string) *session.Session {
	t.mu.Lock()
	sess := t.sessions[id]
	delete(t.sessions, id)
	t.mu.Unlock()
	if sess != nil {
		t.setActiveSessions()
	}
	return sess
}

// persistSession writes the session snapshot with the idle TTL, so
// activity keeps the store entry alive.
func (t *StreamableHTTPTransport) persistSession(ctx context.Context, sess *session.Session) {
	if !t.config.Stateful {
		return
	}
	if err := t.store.Set(ctx, sess.ID(), sess.Snapshot(), t.config.SessionTimeout); err != nil {
		t.logger.Warn("persisting session failed",
			logging.String("session_id", sess.ID()),
			logging.ErrorField(err),
		)
	}
}

func (t *StreamableHTTPTransport) deleteStored(ctx context.Context, id string) {
	if t.store == nil {
		return
	}
	if err := t.store.Delete(ctx, id); err != nil {
		t.logger.Warn("deleting stored session failed",
			logging.String("session_id", id),
			logging.ErrorField(err),
		)
	}
}

// resumable reports whether SSE events carry ids and replay is honored.
func (t *StreamableHTTPTransport) resumable() bool {
	return t.config.Stateful && t.config.EnableResumability
}

// SessionCount returns the number of live stateful sessions.
func (t *StreamableHTTPTransport) SessionCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// isOriginAllowed matches the Origin header against the configured
// allow-list: "*" matches everything, otherwise an entry matches
// exactly or as a host prefix followed by a port.
func (t *StreamableHTTPTransport) isOriginAllowed(origin string) bool {
	for _, allowed := range t.config.AllowedOrigins {
		if allowed == "*" {
			return true
		}
		if origin == allowed {
			return true
		}
		if strings.HasPrefix(origin, allowed+":") {
			return true
		}
	}
	return false
}

// setSessionHeader echoes the session id on request responses. The
// initialize response is how a stateful client learns its id; every
// other stateful response repeats it. Stateless echoes only ids minted
// for an initialize, so stateless clients that want an id get one.
func (t *StreamableHTTPTransport) setSessionHeader(w http.ResponseWriter, sess *session.Session, msg *protocol.Message) {
	if t.config.Stateful || msg.IsInitialize() {
		w.Header().Set(HeaderSessionID, sess.ID())
	}
}

func (t *StreamableHTTPTransport) writeSSEHeaders(w http.ResponseWriter, sessionID string) {
	w.Header().Set("Content-Type", contentTypeEventStream)
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	if sessionID != "" {
		w.Header().Set(HeaderSessionID, sessionID)
	}
	w.WriteHeader(http.StatusOK)
}

// writeAccepted acknowledges a notification or response with 202. The
// session id is echoed in both modes; for stateless requests that is
// the client-supplied or per-request minted id.
func (t *StreamableHTTPTransport) writeAccepted(w http.ResponseWriter, sess *session.Session) {
	w.Header().Set(HeaderSessionID, sess.ID())
	w.WriteHeader(http.StatusAccepted)
}

// writeError emits a JSON-RPC error body with a null id under the given
// HTTP status.
func (t *StreamableHTTPTransport) writeError(w http.ResponseWriter, status int, err error, sessionID string) {
	resp := errors.ToJSONRPCResponse(err, nil)
	body, marshalErr := json.Marshal(resp)
	if marshalErr != nil {
		http.Error(w, http.StatusText(status), status)
		return
	}
	w.Header().Set("Content-Type", contentTypeJSON)
	if sessionID != "" {
		w.Header().Set(HeaderSessionID, sessionID)
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (t *StreamableHTTPTransport) recordSessionEvent(event string) {
	if t.config.Metrics != nil {
		t.config.Metrics.RecordSessionEvent(event)
	}
}

func (t *StreamableHTTPTransport) recordSSEEvent(kind string) {
	if t.config.Metrics != nil {
		t.config.Metrics.RecordSSEEvent(kind)
	}
}

func (t *StreamableHTTPTransport) setActiveSessions() {
	if t.config.Metrics == nil {
		return
	}
	t.mu.RLock()
	n := len(t.sessions)
	t.mu.RUnlock()
	t.config.Metrics.SetActiveSessions(n)
}

// acceptsMediaType reports whether the request's Accept header names
// the given media type explicitly. Wildcards and an absent header do
// not count: a client must opt in to every encoding the endpoint may
// answer with, so only a literal listing satisfies the gate.
func acceptsMediaType(r *http.Request, want string) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if mediaType == want {
			return true
		}
	}
	return false
}
