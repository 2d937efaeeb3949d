/*
mDNS discovery of Glasses 3 devices.

A device announces two DNS-SD services: the control API under
_tobii-g3api._tcp and the media endpoint under _rtsp._tcp. The RTSP record
is looked up by composing the device hostname with the RTSP service type
and is optional; a device can be usable for control while unreachable for
media.
*/

package discovery

import (
	"fmt"
	"net"
	"strings"

	"github.com/grandcat/zeroconf"
)

const (
	// G3ServiceType is the DNS-SD service type of the control API.
	G3ServiceType = "_tobii-g3api._tcp"
	// RTSPServiceType is the DNS-SD service type of the media endpoint.
	RTSPServiceType = "_rtsp._tcp"
	// MDNSDomain is the mDNS domain both services are announced in.
	MDNSDomain = "local."

	// DefaultWebSocketPath is the control channel path on the device.
	DefaultWebSocketPath = "/websocket"
)

// IPPreference selects the address family used when building URLs from a
// service, and filters services in WaitForSingleService.
type IPPreference int

const (
	// Either accepts a service with an address of any family. URL
	// builders fall back from IPv4 to IPv6.
	Either IPPreference = iota
	// V4Only requires an IPv4 address.
	V4Only
	// V6Only requires an IPv6 address.
	V6Only
)

func (p IPPreference) String() string {
	switch p {
	case V4Only:
		return "ipv4"
	case V6Only:
		return "ipv6"
	default:
		return "either"
	}
}

// EventKind classifies service events.
type EventKind int

const (
	Added EventKind = iota
	Updated
	Removed
)

func (k EventKind) String() string {
	switch k {
	case Added:
		return "added"
	case Updated:
		return "updated"
	case Removed:
		return "removed"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event pairs an event kind with the service it concerns.
type Event struct {
	Kind    EventKind
	Service *Service
}

// RTSPRecord holds the paired _rtsp service details of a device.
type RTSPRecord struct {
	Port           int
	LivePath       string
	RecordingsPath string
}

// Service describes a discovered Glasses 3 device. A service is only
// handed to consumers once its record has been fully populated, including
// an attempt to resolve the paired RTSP record.
type Service struct {
	// Hostname is the device hostname, by default its serial number.
	Hostname string
	// Type is the DNS-SD service type the record came from.
	Type string
	// Server is the name of the service host.
	Server string
	// Port is the control API port.
	Port int
	// IPv4 and IPv6 are the parsed addresses; either may be nil.
	IPv4 net.IP
	IPv6 net.IP
	// RTSP is the paired media record, nil when the lookup failed.
	RTSP *RTSPRecord
}

func serviceFromEntry(entry *zeroconf.ServiceEntry) *Service {
	s := &Service{
		Hostname: entry.Instance,
		Type:     entry.Service,
		Server:   entry.HostName,
		Port:     entry.Port,
	}
	if len(entry.AddrIPv4) > 0 {
		s.IPv4 = entry.AddrIPv4[0]
	}
	if len(entry.AddrIPv6) > 0 {
		s.IPv6 = entry.AddrIPv6[0]
	}
	return s
}

func rtspRecordFromEntry(entry *zeroconf.ServiceEntry) *RTSPRecord {
	record := &RTSPRecord{Port: entry.Port}
	for _, txt := range entry.Text {
		key, value, ok := strings.Cut(txt, "=")
		if !ok {
			continue
		}
		switch key {
		case "path":
			record.LivePath = value
		case "recordings":
			record.RecordingsPath = value
		}
	}
	return record
}

// complete reports whether the record carries enough detail to be exposed
// to consumers.
func (s *Service) complete() bool {
	return s.Hostname != "" && s.Port != 0 && (s.IPv4 != nil || s.IPv6 != nil)
}

// matches reports whether the service satisfies the address-family
// preference.
func (s *Service) matches(pref IPPreference) bool {
	switch pref {
	case V4Only:
		return s.IPv4 != nil
	case V6Only:
		return s.IPv6 != nil
	default:
		return s.IPv4 != nil || s.IPv6 != nil
	}
}

// hostOrIP returns the connection host: the bare hostname, or the
// preferred address when useIP is set.
func (s *Service) hostOrIP(useIP bool, pref IPPreference) (string, error) {
	if !useIP {
		return s.Hostname, nil
	}
	switch pref {
	case V4Only:
		if s.IPv4 == nil {
			return "", &IncompleteServiceError{Hostname: s.Hostname, Missing: "IPv4 address"}
		}
		return s.IPv4.String(), nil
	case V6Only:
		if s.IPv6 == nil {
			return "", &IncompleteServiceError{Hostname: s.Hostname, Missing: "IPv6 address"}
		}
		return formatV6(s.IPv6), nil
	default:
		if s.IPv4 != nil {
			return s.IPv4.String(), nil
		}
		if s.IPv6 != nil {
			return formatV6(s.IPv6), nil
		}
		return "", &IncompleteServiceError{Hostname: s.Hostname, Missing: "address"}
	}
}

func formatV6(ip net.IP) string {
	return "[" + ip.String() + "]"
}

// WSURL builds the control channel URL.
func (s *Service) WSURL(useIP bool, pref IPPreference) (string, error) {
	host, err := s.hostOrIP(useIP, pref)
	if err != nil {
		return "", err
	}
	return "ws://" + host + DefaultWebSocketPath, nil
}

// RTSPURL builds the live-stream URL. The empty string (with a nil error)
// means the device announced no reachable RTSP service.
func (s *Service) RTSPURL(useIP bool, pref IPPreference) (string, error) {
	if s.RTSP == nil {
		return "", nil
	}
	host, err := s.hostOrIP(useIP, pref)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("rtsp://%s:%d%s", host, s.RTSP.Port, s.RTSP.LivePath), nil
}

// HTTPURL builds the base URL for HTTP requests to the device.
func (s *Service) HTTPURL(useIP bool, pref IPPreference) (string, error) {
	host, err := s.hostOrIP(useIP, pref)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("http://%s:%d", host, s.Port), nil
}
