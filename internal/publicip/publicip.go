// Package publicip discovers the caller's public address, either by asking
// a resolver that echoes the querier (OpenDNS) or an HTTP echo service.
package publicip

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/saveenergy/ispcheck/internal/logging"
	ispErrors "github.com/saveenergy/ispcheck/pkg/errors"
)

type Provider interface {
	WhoAmI(ctx context.Context) (string, error)
}

// Chain tries providers in order and returns the first address found.
type Chain []Provider

func (c Chain) WhoAmI(ctx context.Context) (string, error) {
	if len(c) == 0 {
		return "", ispErrors.ErrPublicIP("no public IP providers configured", nil)
	}
	var errs []error
	for _, p := range c {
		ip, err := p.WhoAmI(ctx)
		if err == nil {
			return ip, nil
		}
		logging.Debug("public ip provider failed", logging.F("provider", fmt.Sprintf("%T", p)), logging.Err(err))
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return "", ispErrors.ErrPublicIP("all providers failed", errors.Join(errs...))
}

func normalize(raw string) (string, error) {
	ip := net.ParseIP(raw)
	if ip == nil {
		return "", fmt.Errorf("invalid address %q", raw)
	}
	return ip.String(), nil
}
