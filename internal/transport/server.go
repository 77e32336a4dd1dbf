package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"sync"
	"time"

	host "github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	protocol "github.com/libp2p/go-libp2p/core/protocol"
	"go.uber.org/zap"

	"github.com/dropDatabas3/gridgate/internal/observability/logger"
)

const protocolPrefix = "/gridgate/1.0.0/"

// ProtocolFor devuelve el protocol ID de libp2p para un topic.
func ProtocolFor(topic string) protocol.ID {
	return protocol.ID(protocolPrefix + topic)
}

// HandlerFunc procesa un envelope y devuelve el payload de respuesta.
// Un *RemoteError viaja al caller con su código; cualquier otro error se
// degrada a internal con mensaje genérico (el detalle queda en los logs
// del worker, nunca cruza el boundary).
type HandlerFunc func(ctx context.Context, env Envelope) (any, error)

// Server atiende requests de un topic sobre streams libp2p.
// Un stream transporta exactamente un request/response, estilo RPC.
type Server struct {
	host    host.Host
	topic   string
	log     *zap.Logger
	timeout time.Duration

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewServer(h host.Host, topic string, timeout time.Duration) *Server {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s := &Server{
		host:     h,
		topic:    topic,
		log:      logger.Named("transport").With(logger.Topic(topic)),
		timeout:  timeout,
		handlers: make(map[string]HandlerFunc),
	}
	h.SetStreamHandler(ProtocolFor(topic), s.handleStream)
	return s
}

// Handle registra el handler de una operación.
func (s *Server) Handle(op string, fn HandlerFunc) {
	s.mu.Lock()
	s.handlers[op] = fn
	s.mu.Unlock()
}

// Close retira el stream handler del host.
func (s *Server) Close() {
	s.host.RemoveStreamHandler(ProtocolFor(s.topic))
}

func (s *Server) handleStream(st network.Stream) {
	defer st.Close()
	_ = st.SetDeadline(time.Now().Add(s.timeout))

	line, err := bufio.NewReader(st).ReadBytes('\n')
	if err != nil {
		s.log.Debug("request read failed", logger.Err(err))
		return
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.log.Debug("malformed request frame", logger.Err(err))
		_, _ = st.Write(EncodeErrorReply(CodeValidation, "malformed request frame"))
		return
	}

	s.mu.RLock()
	fn, ok := s.handlers[req.Op]
	s.mu.RUnlock()
	if !ok {
		_, _ = st.Write(EncodeErrorReply(CodeUnknownMethod, "no handler for "+req.Op))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	res, err := fn(ctx, req.Envelope)
	if err != nil {
		var remote *RemoteError
		if re, ok := err.(*RemoteError); ok {
			remote = re
		} else {
			s.log.Error("handler failed", logger.Operation(req.Op), logger.Err(err))
			remote = &RemoteError{Code: CodeInternal, Message: "internal error"}
		}
		_, _ = st.Write(EncodeErrorReply(remote.Code, remote.Message))
		return
	}

	reply, err := EncodeReply(res)
	if err != nil {
		s.log.Error("reply marshal failed", logger.Operation(req.Op), logger.Err(err))
		_, _ = st.Write(EncodeErrorReply(CodeInternal, "internal error"))
		return
	}
	if _, err := st.Write(reply); err != nil {
		s.log.Debug("reply write failed", logger.Operation(req.Op), logger.Err(err))
	}
}
