// Package discovery announces and browses network-reachable audio
// backends over mDNS/DNS-SD, backing the optional Backend.GetDevices
// operation (spec §6) for a network transport backend. Grounded on
// src/dns_sd.go's github.com/brutella/dnssd usage, generalized from a
// single fixed KISS-TCP service to a named, typed audio-backend
// announcement plus a browser.
package discovery

import (
	"context"
	"fmt"

	"github.com/brutella/dnssd"
	"github.com/charmbracelet/log"

	"github.com/doismellburning/ac97mixer/backend"
)

// ServiceType is the DNS-SD service type advertised for a network audio
// backend (spec §6 GetDevices, network transport backend used in
// tests/demo).
const ServiceType = "_ac97mixer._tcp"

// Announcer advertises one backend's presence on the local network.
type Announcer struct {
	log *log.Logger

	responder dnssd.Responder
	handle    dnssd.ServiceHandle
}

// Announce registers name/port as a discoverable backend and starts
// responding to mDNS queries in a background goroutine. Cancel ctx to
// stop responding.
func Announce(ctx context.Context, name string, port int, logger *log.Logger) (*Announcer, error) {
	if logger == nil {
		logger = log.Default()
	}

	cfg := dnssd.Config{ //nolint:exhaustruct
		Name: name,
		Type: ServiceType,
		Port: port,
	}

	sv, err := dnssd.NewService(cfg)
	if err != nil {
		return nil, fmt.Errorf("discovery: create service: %w", err)
	}

	rp, err := dnssd.NewResponder()
	if err != nil {
		return nil, fmt.Errorf("discovery: create responder: %w", err)
	}

	handle, err := rp.Add(sv)
	if err != nil {
		return nil, fmt.Errorf("discovery: add service: %w", err)
	}

	a := &Announcer{log: logger, responder: rp, handle: handle}

	logger.Info("discovery: announcing backend", "name", name, "port", port)

	go func() {
		if err := rp.Respond(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("discovery: responder stopped", "err", err)
		}
	}()

	return a, nil
}

// Remove withdraws the announced service. Safe to call multiple times.
func (a *Announcer) Remove(ctx context.Context) {
	if a == nil || a.handle == nil {
		return
	}
	a.responder.Remove(a.handle)
}

// Browse discovers network audio backends advertised on the local
// network until ctx is done. It calls onFound with a DeviceInfo per
// service instance found, suitable for a Backend.GetDevices
// implementation fronting a network transport, and returns the error
// that ended the browse.
func Browse(ctx context.Context, logger *log.Logger, onFound func(backend.DeviceInfo)) error {
	if logger == nil {
		logger = log.Default()
	}

	addFn := func(e dnssd.BrowseEntry) {
		logger.Debug("discovery: found backend", "instance", e.Name, "host", e.Host)
		onFound(backend.DeviceInfo{
			ID:      e.Name,
			Name:    e.Name,
			Default: false,
		})
	}
	rmvFn := func(e dnssd.BrowseEntry) {
		logger.Debug("discovery: backend withdrawn", "instance", e.Name)
	}

	return dnssd.LookupType(ctx, ServiceType, addFn, rmvFn)
}
