// Package directory es el cliente del directorio p2p: anuncia la presencia
// de este worker bajo un topic y descubre candidatos para otros topics.
//
// Implementado sobre la DHT de kademlia de libp2p. Los anuncios son
// registros de provider con TTL: un peer caído sigue apareciendo hasta que
// su registro expira, así que todo consumidor debe tolerar candidatos
// stale (de eso se encarga el call client, no este paquete).
package directory

import (
	"context"
	"fmt"
	"sync"
	"time"

	libp2p "github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/discovery"
	host "github.com/libp2p/go-libp2p/core/host"
	peer "github.com/libp2p/go-libp2p/core/peer"
	routingdisc "github.com/libp2p/go-libp2p/p2p/discovery/routing"
	ma "github.com/multiformats/go-multiaddr"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/dropDatabas3/gridgate/internal/observability/logger"
	"github.com/dropDatabas3/gridgate/internal/transport"
)

const (
	nsPrefix      = "gridgate/"
	lookupTimeout = 5 * time.Second
	maxCandidates = 16
)

type Options struct {
	ListenPort       int
	BootstrapPeers   []string
	CacheTTL         time.Duration // TTL del cache local de lookups
	AnnounceInterval time.Duration // intervalo de re-anuncio
}

// Client mantiene el host libp2p, la DHT y un cache local de lookups.
type Client struct {
	host     host.Host
	dht      *dht.IpfsDHT
	disc     *routingdisc.RoutingDiscovery
	cache    *gocache.Cache
	log      *zap.Logger
	interval time.Duration

	mu        sync.Mutex
	announced map[string]context.CancelFunc
}

// New construye el host, levanta la DHT y conecta los bootstrap peers.
// Fallar contra un bootstrap peer particular no es fatal.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}
	if opts.AnnounceInterval <= 0 {
		opts.AnnounceInterval = time.Minute
	}
	log := logger.Named("directory")

	listen, err := ma.NewMultiaddr(fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", opts.ListenPort))
	if err != nil {
		return nil, fmt.Errorf("listen addr: %w", err)
	}
	h, err := libp2p.New(libp2p.ListenAddrs(listen))
	if err != nil {
		return nil, fmt.Errorf("create libp2p host: %w", err)
	}

	kdht, err := dht.New(ctx, h, dht.Mode(dht.ModeServer))
	if err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("create DHT: %w", err)
	}
	if err := kdht.Bootstrap(ctx); err != nil {
		_ = kdht.Close()
		_ = h.Close()
		return nil, fmt.Errorf("bootstrap DHT: %w", err)
	}

	for _, addr := range opts.BootstrapPeers {
		maddr, err := ma.NewMultiaddr(addr)
		if err != nil {
			log.Warn("invalid bootstrap address", zap.String("addr", addr))
			continue
		}
		pi, err := peer.AddrInfoFromP2pAddr(maddr)
		if err != nil {
			log.Warn("invalid bootstrap peer", zap.String("addr", addr))
			continue
		}
		if err := h.Connect(ctx, *pi); err != nil {
			log.Warn("bootstrap connect failed", logger.Peer(pi.ID.String()), logger.Err(err))
		} else {
			log.Info("bootstrap peer connected", logger.Peer(pi.ID.String()))
		}
	}

	return &Client{
		host:      h,
		dht:       kdht,
		disc:      routingdisc.NewRoutingDiscovery(kdht),
		cache:     gocache.New(opts.CacheTTL, time.Minute),
		log:       log,
		interval:  opts.AnnounceInterval,
		announced: make(map[string]context.CancelFunc),
	}, nil
}

// Host expone el host libp2p para el server y el dialer de transporte.
func (c *Client) Host() host.Host { return c.host }

// Lookup devuelve los candidatos conocidos para un topic, en el orden en
// que el directorio los entrega. Lista vacía no es error: el caller decide
// si eso es ServiceNotFound. fresh=true saltea el cache local: lo usa el
// call client en retries para no volver a pegarle a entradas stale.
func (c *Client) Lookup(ctx context.Context, topic string, fresh bool) ([]transport.Candidate, error) {
	if !fresh {
		if v, ok := c.cache.Get(topic); ok {
			return v.([]transport.Candidate), nil
		}
	}

	fctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	ch, err := c.disc.FindPeers(fctx, nsPrefix+topic, discovery.Limit(maxCandidates))
	if err != nil {
		return nil, fmt.Errorf("directory lookup %s: %w", topic, err)
	}

	var out []transport.Candidate
	for pi := range ch {
		if pi.ID == c.host.ID() || len(pi.Addrs) == 0 {
			continue
		}
		out = append(out, transport.Candidate{Info: pi})
	}

	c.cache.Set(topic, out, gocache.DefaultExpiration)
	c.log.Debug("lookup done", logger.Topic(topic), logger.Candidates(len(out)))
	return out, nil
}

// Announce publica este proceso como provider del topic y lo re-anuncia
// periódicamente hasta Unannounce.
func (c *Client) Announce(ctx context.Context, topic string) error {
	c.mu.Lock()
	if _, ok := c.announced[topic]; ok {
		c.mu.Unlock()
		return nil
	}
	actx, cancel := context.WithCancel(ctx)
	c.announced[topic] = cancel
	c.mu.Unlock()

	if _, err := c.disc.Advertise(actx, nsPrefix+topic); err != nil {
		c.log.Warn("initial announce failed", logger.Topic(topic), logger.Err(err))
	} else {
		c.log.Info("announced", logger.Topic(topic))
	}

	go c.renew(actx, topic)
	return nil
}

func (c *Client) renew(ctx context.Context, topic string) {
	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := c.disc.Advertise(ctx, nsPrefix+topic); err != nil {
				c.log.Warn("announce renewal failed", logger.Topic(topic), logger.Err(err))
			}
		}
	}
}

// Unannounce deja de renovar el anuncio. El registro de provider en la DHT
// expira solo por TTL; no hay borrado explícito.
func (c *Client) Unannounce(topic string) {
	c.mu.Lock()
	if cancel, ok := c.announced[topic]; ok {
		cancel()
		delete(c.announced, topic)
	}
	c.mu.Unlock()
}

// Close cancela anuncios y apaga DHT y host.
func (c *Client) Close() error {
	c.mu.Lock()
	for topic, cancel := range c.announced {
		cancel()
		delete(c.announced, topic)
	}
	c.mu.Unlock()

	if err := c.dht.Close(); err != nil {
		_ = c.host.Close()
		return err
	}
	return c.host.Close()
}
