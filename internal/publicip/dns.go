package publicip

import (
	"context"
	"fmt"
	"time"

	"github.com/miekg/dns"
)

const (
	DefaultDNSServer = "resolver1.opendns.com:53"
	openDNSMyIP      = "myip.opendns.com."
)

// DNSProvider asks a resolver that answers myip.opendns.com with the
// address the query arrived from.
type DNSProvider struct {
	server string
	name   string
	client *dns.Client
}

func NewDNSProvider(server string, timeout time.Duration) *DNSProvider {
	if server == "" {
		server = DefaultDNSServer
	}
	return &DNSProvider{
		server: server,
		name:   openDNSMyIP,
		client: &dns.Client{Net: "udp", Timeout: timeout},
	}
}

func (p *DNSProvider) WhoAmI(ctx context.Context) (string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(p.name), dns.TypeA)
	msg.RecursionDesired = false

	r, _, err := p.client.ExchangeContext(ctx, msg, p.server)
	if err != nil {
		return "", fmt.Errorf("query %s: %w", p.server, err)
	}
	if r.Rcode != dns.RcodeSuccess {
		return "", fmt.Errorf("query %s: %s", p.server, dns.RcodeToString[r.Rcode])
	}
	for _, rr := range r.Answer {
		switch a := rr.(type) {
		case *dns.A:
			return a.A.String(), nil
		case *dns.AAAA:
			return a.AAAA.String(), nil
		}
	}
	return "", fmt.Errorf("query %s: no address in answer", p.server)
}
