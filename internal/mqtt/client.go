package mqtt

import (
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"

	"github.com/rrrd/rrr/tlsconfig"
	"github.com/rrrd/rrr/uuid"
)

// ClientConfig describes one outbound MQTT client connection.
type ClientConfig struct {
	Address string
	// ClientID may be left empty; a random one is generated so the
	// broker can key the session.
	ClientID   string
	Version    Version
	CleanStart bool
	KeepAlive  uint16
	Username   string
	Password   []byte

	// UseTLS wraps the dialed connection; the remaining SSL fields feed
	// the certificate setup.
	UseTLS             bool
	SSLCA              string
	SSLCert            string
	SSLKey             string
	InsecureSkipVerify bool
	TLS                tlsconfig.Config

	// Dial lets tests substitute an in-memory transport.
	Dial func(address string) (net.Conn, error)
}

// Client maintains one connection to a remote broker, reconnecting with
// exponential backoff when the transport drops. It shares the
// Collection tick machinery with the broker side: the protocol state
// machine is the same either way, only who sent CONNECT differs.
type Client struct {
	mu         sync.Mutex
	config     ClientConfig
	collection *Collection
	conn       *Conn
	nextID     uint16
	retry      *backoff.ExponentialBackOff
	nextDial   time.Time
}

// NewClient builds a Client over the shared collection.
func NewClient(config ClientConfig, collection *Collection) (*Client, error) {
	if config.Dial == nil {
		var tlsCfg *tls.Config
		if config.UseTLS {
			var err error
			tlsCfg, err = tlsconfig.Create(config.SSLCA, config.SSLCert, config.SSLKey, config.InsecureSkipVerify)
			if err != nil {
				return nil, errors.Wrap(err, "mqtt client: tls config")
			}
			if parsed, err := config.TLS.Parse(); err != nil {
				return nil, errors.Wrap(err, "mqtt client: tls versions/ciphers")
			} else if parsed != nil {
				tlsCfg.CipherSuites = parsed.CipherSuites
				tlsCfg.MinVersion = parsed.MinVersion
				tlsCfg.MaxVersion = parsed.MaxVersion
			}
		}
		config.Dial = func(address string) (net.Conn, error) {
			if tlsCfg != nil {
				return tls.DialWithDialer(&net.Dialer{Timeout: 10 * time.Second}, "tcp", address, tlsCfg)
			}
			return net.DialTimeout("tcp", address, 10*time.Second)
		}
	}
	if config.Version == 0 {
		config.Version = Version311
	}
	if config.ClientID == "" {
		// 3.1.1 caps client ids at 23 bytes; a trimmed UUID stays unique
		// enough for session keying.
		config.ClientID = "rrr-" + uuid.New().String()[:18]
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0 // retry forever; the owning instance decides when to stop
	return &Client{config: config, collection: collection, retry: b}, nil
}

// Tick drives the connect state machine: dial when disconnected and the
// backoff window has elapsed, otherwise leave the shared Collection
// tick to run the protocol.
func (c *Client) Tick(now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && c.conn.State()&StateClosed == 0 {
		return nil
	}
	if now.Before(c.nextDial) {
		return nil
	}

	transport, err := c.config.Dial(c.config.Address)
	if err != nil {
		c.nextDial = now.Add(c.retry.NextBackOff())
		return nil // transient; retry next tick
	}
	c.retry.Reset()

	conn := NewConn(transport, now)
	v := c.config.Version
	conn.mu.Lock()
	conn.version = &v
	conn.clientID = c.config.ClientID
	conn.keepAlive = time.Duration(c.config.KeepAlive) * time.Second
	err = conn.QueuePacket(&Connect{
		Version:    v,
		ClientID:   c.config.ClientID,
		CleanStart: c.config.CleanStart,
		KeepAlive:  c.config.KeepAlive,
		Username:   c.config.Username,
		Password:   c.config.Password,
	}, v)
	conn.mu.Unlock()
	if err != nil {
		_ = transport.Close()
		return errors.Wrap(err, "queue CONNECT")
	}

	c.conn = conn
	c.collection.Add(conn)
	return nil
}

// Publish queues an application message on the live connection.
func (c *Client) Publish(topic string, payload []byte, qos uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.conn.State()&StateClosed != 0 {
		return errors.New("mqtt client: not connected")
	}

	p := &Publish{Topic: topic, Payload: payload, QoS: qos}
	if qos > 0 {
		c.nextID++
		if c.nextID == 0 {
			c.nextID = 1
		}
		p.PacketID = c.nextID
		if _, err := c.collection.engine.SendPacket(c.config.ClientID, PendingPacket{
			PacketID: p.PacketID, Type: TypePUBLISH, Topic: topic, Payload: payload, QoS: qos,
		}); err != nil {
			return err
		}
	}

	c.conn.mu.Lock()
	defer c.conn.mu.Unlock()
	return c.conn.QueuePacket(p, c.config.Version)
}

// Subscribe queues a SUBSCRIBE for the given filters.
func (c *Client) Subscribe(filters ...SubscribeFilter) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.conn.State()&StateClosed != 0 {
		return errors.New("mqtt client: not connected")
	}
	c.nextID++
	if c.nextID == 0 {
		c.nextID = 1
	}
	c.conn.mu.Lock()
	defer c.conn.mu.Unlock()
	return c.conn.QueuePacket(&Subscribe{PacketID: c.nextID, Filters: filters}, c.config.Version)
}
