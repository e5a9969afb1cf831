package redis

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	URL          string `split_words:"true" required:"true"`
	KeyPrefix    string `split_words:"true" default:"ragbot"`
	ReadTimeout  int    `split_words:"true" default:"3"`
	WriteTimeout int    `split_words:"true" default:"3"`
	DialTimeout  int    `split_words:"true" default:"5"`
}

// Keyspace namespaces every key the service writes, so one Redis instance
// can back several deployments side by side.
type Keyspace string

const DefaultKeyspace Keyspace = "ragbot"

// Key joins the namespace and the given parts with the conventional colon
// separator. An empty keyspace falls back to DefaultKeyspace.
func (k Keyspace) Key(parts ...string) string {
	if k == "" {
		k = DefaultKeyspace
	}
	return string(k) + ":" + strings.Join(parts, ":")
}

// Keyspace returns the configured key namespace.
func (r *Config) Keyspace() Keyspace {
	return Keyspace(r.KeyPrefix)
}

func (r *Config) New() (*redis.Client, error) {
	opts, err := redis.ParseURL(r.URL)
	if err != nil {
		return nil, err
	}

	opts.ReadTimeout = time.Duration(r.ReadTimeout) * time.Second
	opts.WriteTimeout = time.Duration(r.WriteTimeout) * time.Second
	opts.DialTimeout = time.Duration(r.DialTimeout) * time.Second

	client := redis.NewClient(opts)

	cmd := client.Ping(context.Background())
	if cmd.Err() != nil {
		return nil, cmd.Err()
	}

	return client, nil
}

func (r *Config) MustNew() *redis.Client {
	client, err := r.New()
	if err != nil {
		panic(err)
	}

	return client
}
