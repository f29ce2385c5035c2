package comdirect

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/ndewijer/depotsync/internal/model"
)

// Pool hands out one Client per account so each account keeps its own client
// session id and circuit breaker.
type Pool struct {
	mu      sync.Mutex
	baseURL string
	opts    []Option
	log     zerolog.Logger
	clients map[model.AccountRef]*Client
}

// NewPool creates a pool of clients for baseURL.
func NewPool(baseURL string, log zerolog.Logger, opts ...Option) *Pool {
	return &Pool{
		baseURL: baseURL,
		opts:    opts,
		log:     log,
		clients: make(map[model.AccountRef]*Client),
	}
}

// Client returns the client of the account, creating it on first use.
func (p *Pool) Client(ref model.AccountRef) *Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[ref]; ok {
		return c
	}
	opts := append([]Option{WithLogger(p.log.With().Str("account", string(ref)).Logger())}, p.opts...)
	c := NewClient(p.baseURL, opts...)
	p.clients[ref] = c
	return c
}
