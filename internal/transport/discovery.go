// SPDX-License-Identifier: MIT
package transport

import (
	"fmt"
	"net"

	"github.com/hashicorp/mdns"

	applog "audiolens/internal/log"
)

// ServiceType is the mDNS service clients browse for.
const ServiceType = "_audiolens._tcp"

// Advertiser announces the WebSocket endpoint on the local network.
type Advertiser struct {
	server  *mdns.Server
	service *mdns.MDNSService
}

// NewService builds the mDNS record for instance on port. When ips is
// empty the non-loopback IPv4 addresses of the host are used.
func NewService(instance string, port int, ips []net.IP) (*mdns.MDNSService, error) {
	if instance == "" {
		return nil, fmt.Errorf("mdns instance name is empty")
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("mdns port %d out of range", port)
	}
	if len(ips) == 0 {
		var err error
		if ips, err = localIPs(); err != nil {
			return nil, err
		}
	}
	service, err := mdns.NewMDNSService(
		instance,
		ServiceType,
		"",
		"",
		port,
		ips,
		[]string{"path=" + WebSocketPath},
	)
	if err != nil {
		return nil, fmt.Errorf("create mdns service: %w", err)
	}
	return service, nil
}

// Advertise starts answering mDNS queries for the given endpoint.
func Advertise(instance string, port int) (*Advertiser, error) {
	service, err := NewService(instance, port, nil)
	if err != nil {
		return nil, err
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("start mdns server: %w", err)
	}
	applog.Infof("Discovery: Advertising %s as %q on port %d", ServiceType, instance, port)
	return &Advertiser{server: server, service: service}, nil
}

// Close stops advertising.
func (a *Advertiser) Close() error {
	if a == nil || a.server == nil {
		return nil
	}
	applog.Debugf("Discovery: Stopping advertisement")
	return a.server.Shutdown()
}

func localIPs() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}

	var ips []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			if ip4 := ipnet.IP.To4(); ip4 != nil {
				ips = append(ips, ip4)
			}
		}
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("no non-loopback IPv4 address found")
	}
	return ips, nil
}
