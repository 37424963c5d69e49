package registry

import (
	"crypto/tls"
	"net/http"
	"strconv"
	"time"

	schemaregistry "github.com/landoop/schema-registry"
	"github.com/linkedin/goavro/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/open-ch/alertpacket/pkg/packet"
)

const defaultTimeout = 5 * time.Second

type Config struct {
	URL     string
	Timeout time.Duration
	TLS     *tls.Config
}

// Registry is a Confluent compatible schema registry. Compatibility is
// never left to the registry; callers check it with packet.Resolve.
type Registry interface {
	Subjects() ([]string, error)
	Versions(subject string) ([]int, error)
	SchemaByID(id int) (*packet.Schema, error)
	SchemaByVersion(subject string, version int) (Entry, error)
	Latest(subject string) (Entry, error)
	Register(subject string, s *packet.Schema) (int, error)
}

type nilRegistry struct{}

func (nilRegistry) Subjects() ([]string, error)                  { return nil, ErrNoRegistry }
func (nilRegistry) Versions(string) ([]int, error)               { return nil, ErrNoRegistry }
func (nilRegistry) SchemaByID(int) (*packet.Schema, error)       { return nil, ErrNoRegistry }
func (nilRegistry) SchemaByVersion(string, int) (Entry, error)   { return Entry{}, ErrNoRegistry }
func (nilRegistry) Latest(string) (Entry, error)                 { return Entry{}, ErrNoRegistry }
func (nilRegistry) Register(string, *packet.Schema) (int, error) { return 0, ErrNoRegistry }

// New returns a client for config.URL, or a registry failing every call
// with ErrNoRegistry when no URL is configured.
func New(config Config, log logrus.FieldLogger, metrics *Metrics) (Registry, error) {
	if config.URL == "" {
		return nilRegistry{}, nil
	}
	return NewClient(config, log, metrics)
}

// Client talks to the registry over HTTP. Lookups are cached and at most one
// request per key is in flight; concurrent callers share its result. Failed
// requests are not retried.
type Client struct {
	client  *schemaregistry.Client
	log     logrus.FieldLogger
	metrics *Metrics
	cache   *Cache
	group   singleflight.Group
}

func NewClient(config Config, log logrus.FieldLogger, metrics *Metrics) (*Client, error) {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := http.Client{Timeout: timeout}
	if config.TLS != nil {
		client.Transport = &http.Transport{
			TLSClientConfig: config.TLS,
		}
	}

	c, err := schemaregistry.NewClient(config.URL, schemaregistry.UsingClient(&client))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot create registry client for %s", config.URL)
	}

	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Client{
		client:  c,
		log:     log,
		metrics: metrics,
		cache:   NewCache(),
	}, nil
}

func (c *Client) Subjects() ([]string, error) {
	subjects, err := c.client.Subjects()
	if err != nil {
		return nil, classify(err, ErrNotFound)
	}
	return subjects, nil
}

func (c *Client) Versions(subject string) ([]int, error) {
	versions, err := c.client.Versions(subject)
	if err != nil {
		return nil, classify(err, ErrEmptySubject)
	}
	if len(versions) == 0 {
		return nil, errors.Wrap(ErrEmptySubject, subject)
	}
	return versions, nil
}

// SchemaByID returns the schema registered under id.
func (c *Client) SchemaByID(id int) (*packet.Schema, error) {
	if s, ok := c.cache.ByID(id); ok {
		c.metrics.lookup("id", "hit")
		return s, nil
	}

	v, err, _ := c.group.Do("id:"+strconv.Itoa(id), func() (interface{}, error) {
		if s, ok := c.cache.ByID(id); ok {
			return s, nil
		}

		raw, err := c.client.GetSchemaByID(id)
		if err != nil {
			c.metrics.lookup("id", "error")
			return nil, classify(err, ErrNotFound)
		}

		s, err := parseSchema(raw)
		if err != nil {
			c.metrics.lookup("id", "error")
			return nil, errors.WithMessagef(err, "schema %d", id)
		}

		c.log.WithField("id", id).Info("Retrieved schema")
		c.metrics.lookup("id", "miss")

		c.cache.Add(Entry{ID: id, Schema: s})
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*packet.Schema), nil
}

// SchemaByVersion returns the schema registered as version of subject.
func (c *Client) SchemaByVersion(subject string, version int) (Entry, error) {
	if e, ok := c.cache.ByVersion(subject, version); ok {
		c.metrics.lookup("version", "hit")
		return e, nil
	}

	key := "version:" + subject + ":" + strconv.Itoa(version)
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if e, ok := c.cache.ByVersion(subject, version); ok {
			return e, nil
		}

		raw, err := c.client.GetSchemaBySubject(subject, version)
		if err != nil {
			c.metrics.lookup("version", "error")
			return nil, classify(err, ErrNotFound)
		}

		e, err := c.entry(subject, raw)
		if err != nil {
			c.metrics.lookup("version", "error")
			return nil, err
		}
		c.metrics.lookup("version", "miss")
		return e, nil
	})
	if err != nil {
		return Entry{}, err
	}
	return v.(Entry), nil
}

// Latest returns the highest version registered under subject. The answer
// may change over time and is always fetched, but it populates the cache.
func (c *Client) Latest(subject string) (Entry, error) {
	v, err, _ := c.group.Do("latest:"+subject, func() (interface{}, error) {
		raw, err := c.client.GetLatestSchema(subject)
		if err != nil {
			c.metrics.lookup("latest", "error")
			return nil, classify(err, ErrEmptySubject)
		}

		e, err := c.entry(subject, raw)
		if err != nil {
			c.metrics.lookup("latest", "error")
			return nil, err
		}
		c.metrics.lookup("latest", "miss")
		return e, nil
	})
	if err != nil {
		return Entry{}, err
	}
	return v.(Entry), nil
}

// Register publishes s under subject and returns its ID. Registering a
// schema that already exists returns the existing ID.
func (c *Client) Register(subject string, s *packet.Schema) (int, error) {
	id, err := c.client.RegisterNewSchema(subject, s.String())
	c.metrics.registration(subject, err)
	if err != nil {
		return 0, classify(err, ErrTransport)
	}

	c.log.WithFields(logrus.Fields{
		"subject": subject,
		"id":      id,
		"version": s.Version().String(),
	}).Info("Registered schema")

	c.cache.Add(Entry{ID: id, Schema: s})
	return id, nil
}

func (c *Client) entry(subject string, raw schemaregistry.Schema) (Entry, error) {
	s, err := parseSchema(raw.Schema)
	if err != nil {
		return Entry{}, errors.WithMessagef(err, "%s version %d", subject, raw.Version)
	}

	e := Entry{ID: raw.ID, Subject: raw.Subject, Version: raw.Version, Schema: s}
	if e.Subject == "" {
		e.Subject = subject
	}

	c.log.WithFields(logrus.Fields{
		"subject": e.Subject,
		"version": e.Version,
		"id":      e.ID,
	}).Info("Retrieved schema")

	c.cache.Add(e)
	return e, nil
}

func parseSchema(raw string) (*packet.Schema, error) {
	if _, err := goavro.NewCodec(raw); err != nil {
		return nil, errors.Wrap(ErrParse, err.Error())
	}

	s, err := packet.Parse(raw)
	if err != nil {
		return nil, errors.Wrap(ErrParse, err.Error())
	}
	return s, nil
}
