// Package dispatch implements the Session Dispatcher: the listener thread
// that accepts client control connections, the worker thread that owns the
// Tenant Registry and drives the Corpus Cache and Search Engine, and the
// reply-channel rendezvous protocol that hands each registered tenant its
// own dedicated response stream.
package dispatch

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/curserve/memsearchd/pkg/corpus"
	"github.com/curserve/memsearchd/pkg/ipc"
	"github.com/curserve/memsearchd/pkg/logging"
	"github.com/curserve/memsearchd/pkg/registry"
	"github.com/curserve/memsearchd/pkg/search"
	"github.com/curserve/memsearchd/pkg/watch"
)

// RequestSocketPath is the well-known local endpoint clients connect to in
// order to submit alloc_pid / request_ripgrep records.
const RequestSocketPath = "/tmp/mem_search_service_requests.sock"

// replySocketPath computes the per-tenant reply endpoint a client must
// connect to after registering, to complete the rendezvous handshake.
func replySocketPath(tenant string) string {
	return fmt.Sprintf("/tmp/qwen_code_response_%s.sock", tenant)
}

// allocResult is the outcome a runAlloc helper goroutine reports back to the
// worker loop once the reply-channel rendezvous (and, concurrently, the
// cache build) has resolved one way or another.
type allocResult struct {
	tenant        string
	canonicalRoot string
	cache         *corpus.Cache
	conn          net.Conn
	connected     bool
	err           error
}

// Dispatcher wires together the listener thread, the worker thread, the
// change observer, and the tenant registry.
type Dispatcher struct {
	logger   *logging.Logger
	registry *registry.Registry
	observer *watch.Observer
	ceiling  int

	requests  chan Request
	allocDone chan allocResult
	done      chan struct{}

	listener net.Listener
}

// New constructs a Dispatcher. ceiling is the default result ceiling
// applied to every search; zero selects search.DefaultCeiling.
func New(logger *logging.Logger, ceiling int) (*Dispatcher, error) {
	observer, err := watch.New(logger.Sublogger("watch"))
	if err != nil {
		return nil, errors.Wrap(err, "unable to start change observer")
	}

	return &Dispatcher{
		logger:    logger,
		registry:  registry.New(),
		observer:  observer,
		ceiling:   ceiling,
		requests:  make(chan Request, 64),
		allocDone: make(chan allocResult, 16),
		done:      make(chan struct{}),
	}, nil
}

// Run binds the request socket and blocks running the listener and worker
// threads until Shutdown is called.
func (d *Dispatcher) Run() error {
	listener, err := ipc.NewListener(RequestSocketPath)
	if err != nil {
		return errors.Wrap(err, "unable to bind request socket")
	}
	d.listener = listener

	go d.runListener(listener)
	d.runWorker()
	return nil
}

// Shutdown terminates the dispatcher: the listener is closed, every
// registered tenant is evicted, and the change observer is stopped.
func (d *Dispatcher) Shutdown() {
	close(d.done)
	if d.listener != nil {
		d.listener.Close()
	}
	for _, id := range d.registry.Ids() {
		d.registry.Evict(id)
	}
	d.observer.Close()
}

// runListener accepts client connections and spawns a reader goroutine for
// each, matching the "connection remains open until end-of-stream"
// contract: a single connection may carry many requests over its lifetime.
func (d *Dispatcher) runListener(listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-d.done:
				return
			default:
			}
			if d.logger != nil {
				d.logger.Warnf("accept error: %v", err)
			}
			continue
		}
		go d.readRequests(conn)
	}
}

// readRequests parses newline-delimited JSON records off conn, enqueuing
// each successfully parsed request onto the worker's request queue. A
// malformed record is logged and skipped; the connection is left open.
func (d *Dispatcher) readRequests(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		request, err := parseRequest(line)
		if err != nil {
			if d.logger != nil {
				d.logger.Warnf("unparseable request: %v", err)
			}
			continue
		}

		select {
		case d.requests <- request:
		case <-d.done:
			return
		}
	}
}

// runWorker is the single-goroutine state machine that owns the tenant
// registry, multiplexing inbound requests, alloc-rendezvous completions,
// and change-observer events.
func (d *Dispatcher) runWorker() {
	for {
		select {
		case request := <-d.requests:
			d.dispatch(request)
		case result := <-d.allocDone:
			d.finishAlloc(result)
		case event := <-d.observer.Events():
			d.applyEvent(event)
		case <-d.done:
			return
		}
	}
}

// dispatch routes a single parsed request to its handler. AllocPid's
// rendezvous runs on its own goroutine so a slow-to-connect client cannot
// stall processing of other tenants' requests and events.
func (d *Dispatcher) dispatch(request Request) {
	switch r := request.(type) {
	case AllocPid:
		go d.runAlloc(r)
	case RequestRipgrep:
		d.handleRequestRipgrep(r)
	}
}

// runAlloc performs the full alloc_pid flow: bind the tenant's reply
// socket, build its corpus cache concurrently with waiting for the client
// to connect, then report the combined outcome back to the worker loop.
func (d *Dispatcher) runAlloc(r AllocPid) {
	listener, err := ipc.NewListener(replySocketPath(r.Tenant))
	if err != nil {
		d.allocDone <- allocResult{tenant: r.Tenant, connected: false, err: err}
		return
	}
	defer listener.Close()

	cache, canonicalRoot, buildErr := d.buildCache(r.Root)

	conn, acceptErr := listener.Accept()
	if acceptErr != nil {
		if cache != nil {
			cache.Close()
		}
		d.allocDone <- allocResult{tenant: r.Tenant, connected: false, err: acceptErr}
		return
	}

	d.allocDone <- allocResult{
		tenant:        r.Tenant,
		canonicalRoot: canonicalRoot,
		cache:         cache,
		conn:          conn,
		connected:     true,
		err:           buildErr,
	}
}

// buildCache validates root and builds a corpus cache for it, also
// resolving its canonical form for use with the change observer.
func (d *Dispatcher) buildCache(root string) (*corpus.Cache, string, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, "", errors.Errorf("root %s does not exist", root)
	}

	canonicalRoot := root
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		canonicalRoot = resolved
	}

	cache, err := corpus.Build(root, d.logger.Sublogger("corpus"))
	if err != nil {
		return nil, "", err
	}

	return cache, canonicalRoot, nil
}

// finishAlloc runs on the worker goroutine once a runAlloc helper reports
// its outcome, performing the registry mutation and writing the final
// reply. While the dispatcher runs, the registry is written only from here
// and from handleRequestRipgrep's eviction path, both on the worker
// goroutine; Shutdown evicts every remaining tenant on the way out.
func (d *Dispatcher) finishAlloc(result allocResult) {
	if !result.connected {
		if d.logger != nil {
			d.logger.Warnf("alloc_pid rendezvous failed for tenant %s: %v", result.tenant, result.err)
		}
		return
	}

	if result.err != nil {
		writeResponse(result.conn, failure(result.err.Error()))
		result.conn.Close()
		return
	}

	d.registry.Register(result.tenant, result.cache, result.conn)
	d.observer.Watch(result.tenant, result.canonicalRoot)

	response := success(fmt.Sprintf("Allocated %d files", result.cache.Count()))
	if err := writeResponse(result.conn, response); err != nil {
		d.registry.Evict(result.tenant)
		d.observer.Unwatch(result.tenant)
	}
}

// handleRequestRipgrep runs a search for an already-registered tenant and
// writes the reply on its dedicated stream. A tenant with no registered
// reply channel is logged and dropped: there is nowhere to carry a failure
// reply to.
func (d *Dispatcher) handleRequestRipgrep(r RequestRipgrep) {
	cache := d.registry.Cache(r.Tenant)
	conn := d.registry.Reply(r.Tenant)
	if cache == nil || conn == nil {
		if d.logger != nil {
			d.logger.Warnf("request_ripgrep for unregistered tenant %s", r.Tenant)
		}
		return
	}

	result, err := search.Run(cache.Root(), cache.Entries(), search.Request{
		Pattern:       r.Pattern,
		CaseSensitive: r.CaseSensitive,
		Ceiling:       d.ceiling,
	})

	var response Response
	if err != nil {
		response = failure(err.Error())
	} else {
		response = success(formatMatches(result.Matches))
	}

	if err := writeResponse(conn, response); err != nil {
		d.registry.Evict(r.Tenant)
		d.observer.Unwatch(r.Tenant)
	}
}

// applyEvent applies a change-observer event to the owning tenant's cache.
// Neither branch produces a reply; per the contract these are fire-and-log
// updates only.
func (d *Dispatcher) applyEvent(event watch.Event) {
	cache := d.registry.Cache(event.Tenant)
	if cache == nil {
		return
	}

	var err error
	if event.Deleted {
		err = cache.Remove(event.Path)
	} else {
		err = cache.Replace(event.Path)
	}
	if err != nil && d.logger != nil {
		d.logger.Warnf("applying change event for %s: %v", event.Path, err)
	}
}

// formatMatches renders matches as newline-joined "path:line:content"
// records, matching the reply body format for request_ripgrep.
func formatMatches(matches []search.Match) string {
	lines := make([]string, len(matches))
	for i, m := range matches {
		lines[i] = fmt.Sprintf("%s:%d:%s", m.Path, m.Line, m.Text)
	}
	return strings.Join(lines, "\n")
}
