// Package client is the public facade over Allegro WebAPI: typed lookups that
// authenticate lazily, and journal events delivered to subscribers.
package client

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/allegro-webapi/internal/crypto"
	"github.com/and161185/allegro-webapi/internal/journal"
	"github.com/and161185/allegro-webapi/internal/model"
	"github.com/and161185/allegro-webapi/internal/repository"
	"github.com/and161185/allegro-webapi/internal/rpc"
	"github.com/and161185/allegro-webapi/internal/session"
)

// Config holds the required construction parameters. Exactly one of Password
// and PasswordHash must be set.
type Config struct {
	Invoker      rpc.Invoker
	Key          string // webapiKey
	CountryID    int
	Login        string
	Password     string
	PasswordHash string
}

type options struct {
	log          *zap.Logger
	hasher       crypto.Hasher
	pollInterval time.Duration
	infoType     int
	marks        repository.WatermarkRepository
	polling      bool
	now          func() time.Time
}

// Option customizes a Client.
type Option func(*options)

// WithLogger sets the logger shared by the session manager and poller.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithHasher replaces the password hash function.
func WithHasher(h crypto.Hasher) Option {
	return func(o *options) { o.hasher = h }
}

// WithPollInterval sets the journal poll period.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) { o.pollInterval = d }
}

// WithInfoType selects the journal channel.
func WithInfoType(t int) Option {
	return func(o *options) { o.infoType = t }
}

// WithWatermarkStore enables journal dedup backed by store.
func WithWatermarkStore(store repository.WatermarkRepository) Option {
	return func(o *options) { o.marks = store }
}

// WithoutPolling keeps the journal poller stopped; PollOnce still works.
func WithoutPolling() Option {
	return func(o *options) { o.polling = false }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Client composes the session manager, model mappers and journal poller.
type Client struct {
	sess   *session.Manager
	poller *journal.Poller
	log    *zap.Logger
}

// New validates cfg and starts the journal poller unless WithoutPolling is given.
func New(cfg Config, opts ...Option) (*Client, error) {
	o := options{
		log:          zap.NewNop(),
		pollInterval: journal.DefaultInterval,
		infoType:     journal.DefaultInfoType,
		polling:      true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	mgr, err := session.NewManager(cfg.Invoker, session.Config{
		WebAPIKey:   cfg.Key,
		CountryCode: cfg.CountryID,
		Credentials: model.Credentials{
			Login:        cfg.Login,
			Password:     cfg.Password,
			PasswordHash: cfg.PasswordHash,
		},
		Hasher: o.hasher,
	}, session.WithLogger(o.log.Named("session")), session.WithClock(o.now))
	if err != nil {
		return nil, err
	}

	popts := []journal.Option{
		journal.WithInterval(o.pollInterval),
		journal.WithInfoType(o.infoType),
		journal.WithLogger(o.log.Named("journal")),
		journal.WithClock(o.now),
	}
	if o.marks != nil {
		popts = append(popts, journal.WithDedup(o.marks))
	}

	c := &Client{
		sess:   mgr,
		poller: journal.NewPoller(mgr, popts...),
		log:    o.log,
	}
	if o.polling {
		c.poller.Start(context.Background())
	}
	return c, nil
}

// GetUser loads a user by id. It is a privileged call: the first lookup
// logs in and doShowUser carries sessionHandle.
func (c *Client) GetUser(ctx context.Context, id int64) (*model.User, error) {
	res, err := c.sess.Call(ctx, rpc.OpShowUser, rpc.Params{"userId": id})
	if err != nil {
		return nil, err
	}
	return model.NewUser(res), nil
}

// GetItem loads an item by id. The item resolves its seller through c.
func (c *Client) GetItem(ctx context.Context, id int64) (*model.Item, error) {
	res, err := c.sess.Call(ctx, rpc.OpShowItemInfoExt, rpc.Params{"itemId": id, "getImageUrl": 1})
	if err != nil {
		return nil, err
	}
	return model.NewItem(res, c)
}

// GetCategory loads the category path of id and returns the element for id.
func (c *Client) GetCategory(ctx context.Context, id int64) (*model.Category, error) {
	res, err := c.sess.Call(ctx, rpc.OpGetCategoryPath, rpc.Params{"categoryId": id})
	if err != nil {
		return nil, err
	}
	return model.FindCategory(model.NewCategoryPath(res), id)
}

// Subscribe registers h for journal events of kind.
func (c *Client) Subscribe(kind model.EventKind, h journal.Handler) (unsubscribe func()) {
	return c.poller.Subscribe(kind, h)
}

// OnBuyNow registers fn for buy-now purchases; fn receives the item id.
func (c *Client) OnBuyNow(fn func(itemID int64)) (unsubscribe func()) {
	return c.poller.Subscribe(model.EventBuyNow, func(ev model.Event) { fn(ev.ItemID) })
}

// PollOnce runs a single journal poll outside the schedule.
func (c *Client) PollOnce(ctx context.Context) (int, error) {
	return c.poller.PollOnce(ctx)
}

// Session returns the current session, if one was established.
func (c *Client) Session() (model.Session, bool) {
	return c.sess.Session()
}

// Close stops the journal poller.
func (c *Client) Close() {
	c.poller.Stop()
}
