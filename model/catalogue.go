package model

import (
	"github.com/gofrs/uuid"

	"github.com/safing/sdfw/base/utils"
)

// builtinID derives a stable UUID for a built-in provider from its name, so
// the catalogue is reproducible without hardcoding opaque literals.
func builtinID(name string) uuid.UUID {
	return utils.DerivedUUID("sdfw-builtin-provider:" + name)
}

// BuiltinProviders returns the shipped provider catalogue used to seed a
// fresh settings document. Standard and DoH variants are both fixed-ID
// presets; user-added providers get random IDs and BuiltIn=false.
func BuiltinProviders() []*Provider {
	mk := func(name, description string, p Provider) *Provider {
		id := builtinID(name)
		p.ID = id
		p.Name = name
		p.Description = description
		p.BuiltIn = true
		return &p
	}

	return []*Provider{
		mk("Cloudflare", "Cloudflare public DNS", Provider{
			Type:      ProviderStandard,
			PrimaryV4: "1.1.1.1", SecondaryV4: "1.0.0.1",
			PrimaryV6: "2606:4700:4700::1111", SecondaryV6: "2606:4700:4700::1001",
		}),
		mk("Cloudflare (DoH)", "Cloudflare DNS-over-HTTPS", Provider{
			Type: ProviderDoH, DohURL: "https://cloudflare-dns.com/dns-query",
			BootstrapIPs: []string{"1.1.1.1", "1.0.0.1"},
		}),
		mk("Google", "Google public DNS", Provider{
			Type:      ProviderStandard,
			PrimaryV4: "8.8.8.8", SecondaryV4: "8.8.4.4",
			PrimaryV6: "2001:4860:4860::8888", SecondaryV6: "2001:4860:4860::8844",
		}),
		mk("Google (DoH)", "Google DNS-over-HTTPS", Provider{
			Type: ProviderDoH, DohURL: "https://dns.google/dns-query",
			BootstrapIPs: []string{"8.8.8.8", "8.8.4.4"},
		}),
		mk("Quad9", "Quad9 secured DNS", Provider{
			Type:      ProviderStandard,
			PrimaryV4: "9.9.9.9", SecondaryV4: "149.112.112.112",
			PrimaryV6: "2620:fe::fe", SecondaryV6: "2620:fe::9",
		}),
		mk("Quad9 (DoH)", "Quad9 DNS-over-HTTPS", Provider{
			Type: ProviderDoH, DohURL: "https://dns.quad9.net/dns-query",
			BootstrapIPs: []string{"9.9.9.9", "149.112.112.112"},
		}),
		mk("OpenDNS", "Cisco OpenDNS", Provider{
			Type:      ProviderStandard,
			PrimaryV4: "208.67.222.222", SecondaryV4: "208.67.220.220",
			PrimaryV6: "2620:119:35::35", SecondaryV6: "2620:119:53::53",
		}),
		mk("OpenDNS (DoH)", "Cisco OpenDNS DNS-over-HTTPS", Provider{
			Type: ProviderDoH, DohURL: "https://doh.opendns.com/dns-query",
			BootstrapIPs: []string{"208.67.222.222", "208.67.220.220"},
		}),
		mk("AdGuard", "AdGuard DNS", Provider{
			Type:      ProviderStandard,
			PrimaryV4: "94.140.14.14", SecondaryV4: "94.140.15.15",
			PrimaryV6: "2a10:50c0::ad1:ff", SecondaryV6: "2a10:50c0::ad2:ff",
		}),
		mk("AdGuard (DoH)", "AdGuard DNS-over-HTTPS", Provider{
			Type: ProviderDoH, DohURL: "https://dns.adguard-dns.com/dns-query",
			BootstrapIPs: []string{"94.140.14.14", "94.140.15.15"},
		}),
	}
}
