/*
Continuous discovery listener.

Browse results for the control service type feed a single handler
goroutine which populates each record (including the paired RTSP lookup)
before publishing its event, so consumers never observe a half-built
service. Removals are published immediately. Record lifetimes are tracked
from the announced TTLs; an expired record is treated as removed.
*/

package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"golang.org/x/sync/errgroup"

	"github.com/tobiipro/g3go/logging"
)

// DefaultTimeout bounds individual mDNS lookups.
const DefaultTimeout = 3 * time.Second

const eventQueueSize = 32

// Options configures Listen and RequestService.
type Options struct {
	// Timeout bounds the paired RTSP lookup and detail requests.
	// Defaults to DefaultTimeout.
	Timeout time.Duration
	// Logger defaults to a component logger.
	Logger *logging.Logger
}

func (o *Options) withDefaults() Options {
	out := Options{}
	if o != nil {
		out = *o
	}
	if out.Timeout <= 0 {
		out.Timeout = DefaultTimeout
	}
	if out.Logger == nil {
		out.Logger = logging.Default().WithComponent("discovery")
	}
	return out
}

// Listener is a scoped discovery session. It owns its browse and handler
// goroutines; Close cancels them and waits for their exit.
type Listener struct {
	logger  *logging.Logger
	timeout time.Duration

	// rtspLookup resolves the paired media record; swappable in tests.
	rtspLookup func(ctx context.Context, hostname string) *RTSPRecord

	mu       sync.RWMutex
	services map[string]*Service
	expiry   map[string]*time.Timer

	events chan Event
	// expired carries hostnames whose TTL ran out to the handler
	// goroutine, which owns all event publishing.
	expired chan string

	cancel context.CancelFunc
	group  *errgroup.Group
}

// Listen starts browsing for Glasses 3 control services and returns the
// running listener.
func Listen(ctx context.Context, opts *Options) (*Listener, error) {
	o := opts.withDefaults()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	browseCtx, cancel := context.WithCancel(ctx)
	entries := make(chan *zeroconf.ServiceEntry, eventQueueSize)
	if err := resolver.Browse(browseCtx, G3ServiceType, MDNSDomain, entries); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to browse for %s: %w", G3ServiceType, err)
	}

	l := &Listener{
		logger:  o.Logger,
		timeout: o.Timeout,
		rtspLookup: func(ctx context.Context, hostname string) *RTSPRecord {
			return lookupRTSP(ctx, hostname, o.Logger)
		},
		services: make(map[string]*Service),
		expiry:   make(map[string]*time.Timer),
		events:   make(chan Event, eventQueueSize),
		expired:  make(chan string, eventQueueSize),
		cancel:   cancel,
	}

	group, handlerCtx := errgroup.WithContext(browseCtx)
	l.group = group
	group.Go(func() error {
		l.handle(handlerCtx, entries)
		return nil
	})
	return l, nil
}

// Events is the stream of service events. It is closed when the listener
// stops.
func (l *Listener) Events() <-chan Event {
	return l.events
}

// Services returns a snapshot of the currently known services keyed by
// hostname.
func (l *Listener) Services() map[string]*Service {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]*Service, len(l.services))
	for hostname, service := range l.services {
		out[hostname] = service
	}
	return out
}

// Close stops browsing and waits for the handler to exit.
func (l *Listener) Close() error {
	l.cancel()
	err := l.group.Wait()
	l.mu.Lock()
	for hostname, timer := range l.expiry {
		timer.Stop()
		delete(l.expiry, hostname)
	}
	l.mu.Unlock()
	close(l.events)
	return err
}

func (l *Listener) handle(ctx context.Context, entries <-chan *zeroconf.ServiceEntry) {
	for {
		select {
		case <-ctx.Done():
			return
		case hostname := <-l.expired:
			l.remove(ctx, hostname)
		case entry, ok := <-entries:
			if !ok {
				return
			}
			if entry.TTL == 0 {
				l.remove(ctx, entry.Instance)
				continue
			}
			l.addOrUpdate(ctx, entry)
		}
	}
}

func (l *Listener) addOrUpdate(ctx context.Context, entry *zeroconf.ServiceEntry) {
	service := serviceFromEntry(entry)

	l.mu.RLock()
	_, known := l.services[service.Hostname]
	l.mu.RUnlock()

	if !service.complete() {
		// A record without resolved details is a failed fetch: an add is
		// suppressed, an update keeps the previous record.
		l.logger.WithFields(logging.Fields{
			"hostname": service.Hostname,
			"known":    known,
		}).Debug("Ignoring incomplete service record")
		return
	}

	// The RTSP record is optional; a failed lookup still publishes the
	// service.
	rtspCtx, cancel := context.WithTimeout(ctx, l.timeout)
	service.RTSP = l.rtspLookup(rtspCtx, service.Hostname)
	cancel()

	kind := Added
	if known {
		kind = Updated
	}

	l.mu.Lock()
	l.services[service.Hostname] = service
	l.resetExpiryLocked(service.Hostname, entry.TTL)
	l.mu.Unlock()

	l.publish(ctx, Event{Kind: kind, Service: service})
}

func (l *Listener) remove(ctx context.Context, hostname string) {
	l.mu.Lock()
	service, known := l.services[hostname]
	if known {
		delete(l.services, hostname)
	}
	if timer, ok := l.expiry[hostname]; ok {
		timer.Stop()
		delete(l.expiry, hostname)
	}
	l.mu.Unlock()

	if !known {
		return
	}
	l.publish(ctx, Event{Kind: Removed, Service: service})
}

// resetExpiryLocked schedules removal at TTL expiry; every refresh of the
// record pushes it out again. The timer only notifies the handler
// goroutine, which owns the actual removal. Callers hold l.mu.
func (l *Listener) resetExpiryLocked(hostname string, ttl uint32) {
	if timer, ok := l.expiry[hostname]; ok {
		timer.Stop()
	}
	l.expiry[hostname] = time.AfterFunc(time.Duration(ttl)*time.Second, func() {
		select {
		case l.expired <- hostname:
		default:
		}
	})
}

func (l *Listener) publish(ctx context.Context, event Event) {
	select {
	case l.events <- event:
	case <-ctx.Done():
	}
}

// lookupRTSP resolves the paired _rtsp record for a hostname. A nil
// return means the device is not reachable for media.
func lookupRTSP(ctx context.Context, hostname string, logger *logging.Logger) *RTSPRecord {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		logger.WithError(err).Debug("RTSP lookup resolver failed")
		return nil
	}
	entries := make(chan *zeroconf.ServiceEntry, 1)
	if err := resolver.Lookup(ctx, hostname, RTSPServiceType, MDNSDomain, entries); err != nil {
		logger.WithError(err).Debug("RTSP lookup failed")
		return nil
	}
	select {
	case entry, ok := <-entries:
		if !ok || entry == nil {
			return nil
		}
		return rtspRecordFromEntry(entry)
	case <-ctx.Done():
		logger.WithField("hostname", hostname).Debug("RTSP lookup timed out")
		return nil
	}
}

// RequestService performs a one-shot lookup of a device by hostname. It
// fails with *ServiceNotFoundError when the device does not answer within
// the timeout.
func RequestService(ctx context.Context, hostname string, opts *Options) (*Service, error) {
	o := opts.withDefaults()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()
	entries := make(chan *zeroconf.ServiceEntry, 1)
	if err := resolver.Lookup(lookupCtx, hostname, G3ServiceType, MDNSDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", hostname, err)
	}

	var service *Service
	select {
	case entry, ok := <-entries:
		if ok && entry != nil {
			service = serviceFromEntry(entry)
		}
	case <-lookupCtx.Done():
	}
	if service == nil || !service.complete() {
		return nil, &ServiceNotFoundError{Hostname: hostname}
	}

	rtspCtx, rtspCancel := context.WithTimeout(ctx, o.Timeout)
	defer rtspCancel()
	service.RTSP = lookupRTSP(rtspCtx, hostname, o.Logger)
	return service, nil
}

// WaitForSingleService consumes events until a service matching the
// address-family preference is added or updated.
func WaitForSingleService(ctx context.Context, events <-chan Event, timeout time.Duration, pref IPPreference) (*Service, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		select {
		case <-waitCtx.Done():
			return nil, &ServiceNotFoundError{}
		case event, ok := <-events:
			if !ok {
				return nil, &ServiceNotFoundError{}
			}
			if event.Kind == Removed {
				continue
			}
			if event.Service.matches(pref) {
				return event.Service, nil
			}
		}
	}
}
