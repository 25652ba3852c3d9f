package adapter

import (
	"fmt"
	"net"
	"strings"

	"golang.org/x/sys/windows/registry"

	"github.com/safing/sdfw/base/log"
	"github.com/safing/sdfw/base/utils/osdetail"
	"github.com/safing/sdfw/model"
)

const tcpipInterfacesKey = `SYSTEM\CurrentControlSet\Services\Tcpip\Parameters\Interfaces`

type windowsPlatform struct{}

func newPlatform() platform {
	return &windowsPlatform{}
}

func (p *windowsPlatform) list(connectedOnly bool) ([]model.Adapter, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}

	adapters := make([]model.Adapter, 0, len(ifaces))
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		// Tunnel (and PPP) adapters are reported as point-to-point.
		if iface.Flags&net.FlagPointToPoint != 0 {
			continue
		}
		connected := iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagRunning != 0
		if connectedOnly && !connected {
			continue
		}
		adapters = append(adapters, model.Adapter{
			ID:        iface.Name,
			Name:      iface.Name,
			IfIndex:   iface.Index,
			Connected: connected,
		})
	}
	return adapters, nil
}

// currentDNS reads the per-interface NameServer value from the registry.
// An empty value means the adapter is DHCP-assigned.
func (p *windowsPlatform) currentDNS(a model.Adapter) (ipv4, ipv6 []string, dhcp bool, err error) {
	guid, err := interfaceGUID(a.Name)
	if err != nil {
		return nil, nil, false, err
	}

	key, err := registry.OpenKey(registry.LOCAL_MACHINE, tcpipInterfacesKey+`\`+guid, registry.QUERY_VALUE)
	if err != nil {
		return nil, nil, false, fmt.Errorf("open interface key: %w", err)
	}
	defer key.Close() //nolint:errcheck

	nameServer, _, err := key.GetStringValue("NameServer")
	if err != nil && err != registry.ErrNotExist {
		return nil, nil, false, fmt.Errorf("read NameServer: %w", err)
	}

	if strings.TrimSpace(nameServer) == "" {
		return nil, nil, true, nil
	}

	for _, server := range strings.Split(nameServer, ",") {
		server = strings.TrimSpace(server)
		if ip := net.ParseIP(server); ip != nil {
			if ip.To4() != nil {
				ipv4 = append(ipv4, server)
			} else {
				ipv6 = append(ipv6, server)
			}
		}
	}
	return ipv4, ipv6, false, nil
}

func (p *windowsPlatform) setLoopbackDNS(a model.Adapter) error {
	if _, err := osdetail.RunTerminalCmd("netsh", "interface", "ip", "set", "dns", a.Name, "static", "127.0.0.1"); err != nil {
		return fmt.Errorf("netsh set ipv4 dns: %w", err)
	}
	if _, err := osdetail.RunTerminalCmd("netsh", "interface", "ipv6", "set", "dns", a.Name, "static", "::1"); err != nil {
		return fmt.Errorf("netsh set ipv6 dns: %w", err)
	}
	return nil
}

func (p *windowsPlatform) restoreDNS(a model.Adapter, backup model.AdapterBackup) error {
	if backup.WasDHCP {
		if _, err := osdetail.RunTerminalCmd("netsh", "interface", "ip", "set", "dns", a.Name, "dhcp"); err != nil {
			return fmt.Errorf("netsh reset to dhcp: %w", err)
		}
		if _, err := osdetail.RunTerminalCmd("netsh", "interface", "ipv6", "set", "dns", a.Name, "dhcp"); err != nil {
			return fmt.Errorf("netsh reset ipv6 to dhcp: %w", err)
		}
		return nil
	}

	for i, server := range backup.OriginalIPv4 {
		verb := "add"
		if i == 0 {
			verb = "set"
		}
		if _, err := osdetail.RunTerminalCmd("netsh", "interface", "ip", verb, "dns", a.Name, "static", server); err != nil {
			return fmt.Errorf("netsh restore ipv4 dns: %w", err)
		}
	}
	for i, server := range backup.OriginalIPv6 {
		verb := "add"
		if i == 0 {
			verb = "set"
		}
		if _, err := osdetail.RunTerminalCmd("netsh", "interface", "ipv6", verb, "dns", a.Name, "static", server); err != nil {
			return fmt.Errorf("netsh restore ipv6 dns: %w", err)
		}
	}
	return nil
}

func (p *windowsPlatform) flushCache() error {
	if _, err := osdetail.RunTerminalCmd("ipconfig", "/flushdns"); err != nil {
		log.Warningf("adapter: ipconfig /flushdns failed: %s", err)
		return err
	}
	return nil
}

// interfaceGUID resolves a friendly adapter name to the registry GUID key
// name used under Tcpip\Parameters\Interfaces. net.Interface does not expose
// the GUID directly, so this walks the interfaces key looking for the one
// whose DhcpIPAddress/IPAddress set matches the adapter's bound addresses.
func interfaceGUID(name string) (string, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return "", fmt.Errorf("lookup interface %s: %w", name, err)
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return "", fmt.Errorf("lookup addresses for %s: %w", name, err)
	}

	root, err := registry.OpenKey(registry.LOCAL_MACHINE, tcpipInterfacesKey, registry.ENUMERATE_SUB_KEYS)
	if err != nil {
		return "", fmt.Errorf("open interfaces key: %w", err)
	}
	defer root.Close() //nolint:errcheck

	guids, err := root.ReadSubKeyNames(-1)
	if err != nil {
		return "", fmt.Errorf("enumerate interfaces: %w", err)
	}

	for _, guid := range guids {
		key, err := registry.OpenKey(registry.LOCAL_MACHINE, tcpipInterfacesKey+`\`+guid, registry.QUERY_VALUE)
		if err != nil {
			continue
		}
		ip, _, _ := key.GetStringValue("DhcpIPAddress")
		if ip == "" {
			ip, _, _ = key.GetStringValue("IPAddress")
		}
		key.Close() //nolint:errcheck

		for _, addr := range addrs {
			if ipNet, ok := addr.(*net.IPNet); ok && ipNet.IP.String() == ip {
				return guid, nil
			}
		}
	}

	return "", fmt.Errorf("could not resolve registry GUID for interface %s", name)
}
