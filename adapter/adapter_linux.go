package adapter

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"

	"github.com/safing/sdfw/base/log"
	"github.com/safing/sdfw/base/utils"
	"github.com/safing/sdfw/model"
)

const resolvConfPath = "/etc/resolv.conf"

type linuxPlatform struct {
	resolvectl *utils.CallLimiter2
}

func newPlatform() platform {
	return &linuxPlatform{
		resolvectl: utils.NewCallLimiter2(0),
	}
}

// runResolvectl dedupes/serializes concurrent resolvectl invocations via
// CallLimiter2, which bundles concurrent callers onto a single execution.
func (p *linuxPlatform) runResolvectl(args ...string) error {
	var err error
	p.resolvectl.Do(func() {
		err = exec.Command("resolvectl", args...).Run() //nolint:gosec
	})
	return err
}

func (p *linuxPlatform) list(connectedOnly bool) ([]model.Adapter, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}

	adapters := make([]model.Adapter, 0, len(ifaces))
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if strings.HasPrefix(iface.Name, "tun") || strings.HasPrefix(iface.Name, "tap") ||
			strings.HasPrefix(iface.Name, "wg") {
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

// currentDNS reads the system-wide resolver configuration from
// /etc/resolv.conf the way environment_linux.go's getNameserversFromResolvconf
// does. Linux does not expose a reliable per-adapter DNS list outside of
// NetworkManager/systemd-resolved, so every adapter reports the same
// machine-wide view. Without resolvectl, takeover rewrites that one file once
// per targeted adapter.
func (p *linuxPlatform) currentDNS(_ model.Adapter) (ipv4, ipv6 []string, dhcp bool, err error) {
	f, err := os.Open(resolvConfPath)
	if err != nil {
		return nil, nil, false, fmt.Errorf("open %s: %w", resolvConfPath, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || fields[0] != "nameserver" {
			continue
		}
		ip := net.ParseIP(fields[1])
		if ip == nil {
			continue
		}
		if ip.To4() != nil {
			ipv4 = append(ipv4, ip.String())
		} else {
			ipv6 = append(ipv6, ip.String())
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, false, fmt.Errorf("scan %s: %w", resolvConfPath, err)
	}

	// A resolv.conf managed by a DHCP client typically carries this marker
	// comment; absence doesn't prove static config but is the best signal
	// available without a NetworkManager/systemd-resolved dependency.
	dhcp = resolvConfLooksManaged()

	return ipv4, ipv6, dhcp, nil
}

func resolvConfLooksManaged() bool {
	raw, err := os.ReadFile(resolvConfPath)
	if err != nil {
		return false
	}
	return strings.Contains(string(raw), "generated by")
}

func (p *linuxPlatform) setLoopbackDNS(a model.Adapter) error {
	if hasResolvectl() {
		return p.runResolvectl("dns", a.Name, "127.0.0.1", "::1")
	}
	return writeResolvConf([]string{"127.0.0.1", "::1"})
}

func (p *linuxPlatform) restoreDNS(a model.Adapter, backup model.AdapterBackup) error {
	if backup.WasDHCP && hasResolvectl() {
		return p.runResolvectl("revert", a.Name)
	}

	servers := append(append([]string(nil), backup.OriginalIPv4...), backup.OriginalIPv6...)
	if hasResolvectl() {
		return p.runResolvectl(append([]string{"dns", a.Name}, servers...)...)
	}
	return writeResolvConf(servers)
}

func (p *linuxPlatform) flushCache() error {
	if hasResolvectl() {
		return p.runResolvectl("flush-caches")
	}
	log.Info("adapter: resolvectl not found, skipping cache flush")
	return nil
}

func hasResolvectl() bool {
	_, err := exec.LookPath("resolvectl")
	return err == nil
}

func writeResolvConf(servers []string) error {
	var b strings.Builder
	b.WriteString("# managed by sdfw\n")
	for _, s := range servers {
		fmt.Fprintf(&b, "nameserver %s\n", s)
	}
	return os.WriteFile(resolvConfPath, []byte(b.String()), 0o644) //nolint:gosec
}
