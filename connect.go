package g3go

import (
	"context"
	"fmt"
	"time"

	"github.com/tobiipro/g3go/discovery"
	"github.com/tobiipro/g3go/g3ws"
	"github.com/tobiipro/g3go/logging"
)

// ConnectOptions tunes the connectors.
type ConnectOptions struct {
	// UseIP builds connection URLs from resolved addresses instead of
	// the hostname, removing the dependency on working DNS.
	UseIP bool
	// IPPreference selects the address family when UseIP is set.
	IPPreference discovery.IPPreference
	// DiscoveryTimeout bounds zeroconf lookups. Defaults to
	// discovery.DefaultTimeout.
	DiscoveryTimeout time.Duration
	// Logger defaults to the shared component logger.
	Logger *logging.Logger
	// Channel is passed through to the control channel dial.
	Channel *g3ws.Options
}

func (o *ConnectOptions) withDefaults() ConnectOptions {
	out := ConnectOptions{}
	if o != nil {
		out = *o
	}
	if out.DiscoveryTimeout <= 0 {
		out.DiscoveryTimeout = discovery.DefaultTimeout
	}
	if out.Logger == nil {
		out.Logger = logging.Default()
	}
	return out
}

// ConnectWithURLs connects to the device behind the given URLs. wsURL is
// required; rtspURL (rtsp:// or rtspt://) and httpURL may be empty.
func ConnectWithURLs(ctx context.Context, wsURL, rtspURL, httpURL string, opts *ConnectOptions) (*Device, error) {
	o := opts.withDefaults()
	o.Logger.WithFields(logging.Fields{
		"ws_url":   wsURL,
		"rtsp_url": rtspURL,
		"http_url": httpURL,
	}).Info("Attempting connection")

	channelOpts := o.Channel
	if channelOpts == nil {
		channelOpts = &g3ws.Options{}
	}
	if channelOpts.Logger == nil {
		channelOpts.Logger = o.Logger.WithComponent("g3ws")
	}
	conn, err := g3ws.Dial(ctx, wsURL, channelOpts)
	if err != nil {
		return nil, err
	}
	return NewDevice(conn, rtspURL, httpURL, o.Logger), nil
}

// ConnectWithHostname connects to the device with the given hostname (by
// default its serial number) using the documented default URL layout.
// Set useZeroconf to fetch the URL components from the device's mDNS
// records instead.
func ConnectWithHostname(ctx context.Context, hostname string, useZeroconf bool, opts *ConnectOptions) (*Device, error) {
	o := opts.withDefaults()
	if !useZeroconf {
		return ConnectWithURLs(ctx,
			"ws://"+hostname+discovery.DefaultWebSocketPath,
			fmt.Sprintf("rtsp://%s:%d%s", hostname, DefaultRTSPPort, DefaultRTSPLivePath),
			fmt.Sprintf("http://%s:%d", hostname, DefaultHTTPPort),
			opts)
	}
	service, err := discovery.RequestService(ctx, hostname, &discovery.Options{
		Timeout: o.DiscoveryTimeout,
		Logger:  o.Logger.WithComponent("discovery"),
	})
	if err != nil {
		return nil, err
	}
	return ConnectWithService(ctx, service, opts)
}

// ConnectWithService connects to the device described by a discovered
// service record.
func ConnectWithService(ctx context.Context, service *discovery.Service, opts *ConnectOptions) (*Device, error) {
	o := opts.withDefaults()
	wsURL, err := service.WSURL(o.UseIP, o.IPPreference)
	if err != nil {
		return nil, err
	}
	rtspURL, err := service.RTSPURL(o.UseIP, o.IPPreference)
	if err != nil {
		return nil, err
	}
	httpURL, err := service.HTTPURL(o.UseIP, o.IPPreference)
	if err != nil {
		return nil, err
	}
	return ConnectWithURLs(ctx, wsURL, rtspURL, httpURL, opts)
}

// ConnectWithZeroconf listens for glasses on the network and connects to
// the first one that answers. With multiple glasses on the network the
// choice is undefined.
func ConnectWithZeroconf(ctx context.Context, opts *ConnectOptions) (*Device, error) {
	o := opts.withDefaults()
	listener, err := discovery.Listen(ctx, &discovery.Options{
		Timeout: o.DiscoveryTimeout,
		Logger:  o.Logger.WithComponent("discovery"),
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := listener.Close(); cerr != nil {
			o.Logger.WithError(cerr).Debug("Discovery listener close failed")
		}
	}()

	service, err := discovery.WaitForSingleService(ctx, listener.Events(), o.DiscoveryTimeout, o.IPPreference)
	if err != nil {
		return nil, err
	}
	return ConnectWithService(ctx, service, opts)
}
