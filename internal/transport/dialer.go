package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	host "github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	peer "github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"go.uber.org/zap"

	"github.com/dropDatabas3/gridgate/internal/observability/logger"
)

// Candidate es una dirección descubierta para un topic. Puede estar stale:
// anunciada pero ya inalcanzable. El call client tolera eso.
type Candidate struct {
	Info peer.AddrInfo
}

// ID devuelve el identificador estable del candidato.
func (c Candidate) ID() string { return c.Info.ID.String() }

// Dialer abre un stream contra un candidato, manda el request frame y lee
// la respuesta. Todo error sale clasificado como *Failure; esta es la única
// capa que mapea errores de red a FailureKind.
type Dialer struct {
	host host.Host
	log  *zap.Logger
}

func NewDialer(h host.Host) *Dialer {
	return &Dialer{host: h, log: logger.Named("transport")}
}

// Invoke ejecuta una llamada request/response contra cand bajo timeout.
func (d *Dialer) Invoke(ctx context.Context, cand Candidate, topic, op string, env Envelope, timeout time.Duration) (json.RawMessage, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if len(cand.Info.Addrs) > 0 {
		d.host.Peerstore().AddAddrs(cand.Info.ID, cand.Info.Addrs, peerstore.TempAddrTTL)
	}

	st, err := d.host.NewStream(cctx, cand.Info.ID, ProtocolFor(topic))
	if err != nil {
		return nil, classifyDial(err)
	}
	defer st.Close()
	_ = st.SetDeadline(time.Now().Add(timeout))

	frame, err := json.Marshal(Request{Op: op, Envelope: env})
	if err != nil {
		return nil, Failf(FailFatal, "marshal request: %v", err)
	}
	if _, err := st.Write(append(frame, '\n')); err != nil {
		return nil, classifyStream(err)
	}

	line, err := bufio.NewReader(st).ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return nil, classifyStream(err)
	}

	payload, failure := DecodeReply(line)
	if failure != nil {
		d.log.Debug("remote failure",
			logger.Peer(cand.ID()), logger.Operation(op), logger.FailureKind(failure.Kind.String()))
		return nil, failure
	}
	return payload, nil
}

// classifyDial: no se pudo establecer el stream. Conectividad, salvo
// cancelación del caller.
func classifyDial(err error) *Failure {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Failf(FailTimeout, "dial timed out: %v", err)
	case errors.Is(err, context.Canceled):
		return Failf(FailFatal, "dial canceled: %v", err)
	case errors.Is(err, syscall.ECONNREFUSED):
		return Failf(FailConnectionRefused, "connection refused: %v", err)
	case errors.Is(err, network.ErrReset):
		return Failf(FailConnectionReset, "connection reset: %v", err)
	default:
		// candidato inalcanzable: mismo tratamiento que refused
		return Failf(FailConnectionRefused, "dial failed: %v", err)
	}
}

// classifyStream: el stream existía y murió a mitad de la llamada.
func classifyStream(err error) *Failure {
	var nerr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Failf(FailTimeout, "call timed out: %v", err)
	case errors.As(err, &nerr) && nerr.Timeout():
		return Failf(FailTimeout, "call timed out: %v", err)
	case errors.Is(err, network.ErrReset), errors.Is(err, syscall.ECONNRESET):
		return Failf(FailConnectionReset, "connection reset: %v", err)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
		return Failf(FailConnectionClosed, "connection closed: %v", err)
	default:
		return Failf(FailConnectionClosed, "stream failed: %v", err)
	}
}
