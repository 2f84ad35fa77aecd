// Package mongo binds the message store and the social graph to MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Config struct {
	URI         string `mapstructure:"uri"`
	Database    string `mapstructure:"database"`
	MaxPoolSize uint64 `mapstructure:"max_pool_size"`
	MaxRetry    int    `mapstructure:"max_retry"`
}

type Client struct {
	cli *mongo.Client
	db  *mongo.Database
}

func Connect(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongo uri is required")
	}
	if cfg.Database == "" {
		cfg.Database = "parley"
	}
	if cfg.MaxRetry <= 0 {
		cfg.MaxRetry = 1
	}
	opts := options.Client().ApplyURI(cfg.URI).SetAppName("parley")
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}

	var (
		cli *mongo.Client
		err error
	)
	for i := 0; i < cfg.MaxRetry; i++ {
		cli, err = connect(ctx, opts)
		if err == nil {
			break
		}
		log.Warn().Err(err).Str("module", "store.mongo").Int("attempt", i+1).Msg("connect failed")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	log.Info().Str("module", "store.mongo").Str("database", cfg.Database).Msg("connected")
	return &Client{cli: cli, db: cli.Database(cfg.Database)}, nil
}

func connect(ctx context.Context, opts *options.ClientOptions) (*mongo.Client, error) {
	cli, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := cli.Ping(ctx, nil); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, err
	}
	return cli, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.cli.Disconnect(ctx)
}

// EnsureIndexes creates the indexes the store queries rely on.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	_, err := c.db.Collection(messagesColl).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "sent_at", Value: 1}}},
		{Keys: bson.D{{Key: "recipients", Value: 1}, {Key: "sent_at", Value: 1}}},
		{Keys: bson.D{{Key: "change_token", Value: 1}}, Options: options.Index().SetSparse(true)},
	})
	if err != nil {
		return fmt.Errorf("messages indexes: %w", err)
	}
	_, err = c.db.Collection(groupsColl).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "members", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("groups indexes: %w", err)
	}
	return nil
}

func (c *Client) Messages() *Messages {
	return &Messages{coll: c.db.Collection(messagesColl)}
}

func (c *Client) Graph() *Graph {
	return &Graph{users: c.db.Collection(usersColl), groups: c.db.Collection(groupsColl)}
}

const (
	messagesColl = "messages"
	usersColl    = "users"
	groupsColl   = "groups"
)
