package gateway

import (
	"net/http"
	"sync"
)

// Conn is one logical connection to a tool service. A session holds at most
// one for its lifetime.
type Conn struct {
	service  string
	endpoint string
	client   *http.Client
}

// Pool shares tool-service connections across applications. Acquisition and
// release are serialized per pool without blocking unrelated stages.
type Pool struct {
	mu      sync.Mutex
	idle    map[string][]*Conn
	maxIdle map[string]int
}

func NewPool() *Pool {
	return &Pool{
		idle:    make(map[string][]*Conn),
		maxIdle: make(map[string]int),
	}
}

// Configure sets the idle-connection cap for one service.
func (p *Pool) Configure(service string, maxIdle int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maxIdle[service] = maxIdle
}

// Acquire returns an idle connection for the service or creates a fresh one.
// The underlying TCP connection is established lazily on first use.
func (p *Pool) Acquire(service, endpoint string) *Conn {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conns := p.idle[service]; len(conns) > 0 {
		conn := conns[len(conns)-1]
		p.idle[service] = conns[:len(conns)-1]
		return conn
	}

	return &Conn{
		service:  service,
		endpoint: endpoint,
		// Context deadlines bound each invocation; no client-level timeout.
		client: &http.Client{},
	}
}

// Release returns a connection to the pool, discarding it when the idle cap
// is reached.
func (p *Pool) Release(conn *Conn) {
	if conn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	limit := p.maxIdle[conn.service]
	if limit == 0 {
		limit = 4
	}
	if len(p.idle[conn.service]) < limit {
		p.idle[conn.service] = append(p.idle[conn.service], conn)
		return
	}
	conn.client.CloseIdleConnections()
}
