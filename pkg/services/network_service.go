package services

import (
	"context"

	"github.com/othello-os/go-othello/internal/netstack"
	"github.com/othello-os/go-othello/internal/netstack/httpclient"
)

// networkService implements the NetworkService interface
type networkService struct {
	stack  *netstack.Stack
	client *httpclient.Client
}

// NewNetworkService wraps a booted stack. The stack itself reports ErrNoNIC
// on every operation when the machine has no adapter, and the service
// surfaces that unchanged.
func NewNetworkService(stack *netstack.Stack) NetworkService {
	return &networkService{
		stack:  stack,
		client: httpclient.NewClient(stack, nil),
	}
}

// Resolve turns a hostname into an IPv4 address
func (s *networkService) Resolve(ctx context.Context, host string) ([4]byte, error) {
	if err := ctx.Err(); err != nil {
		return [4]byte{}, err
	}
	return s.stack.ResolveA(host)
}

// Ping sends one ICMP echo request and waits for the reply
func (s *networkService) Ping(ctx context.Context, host string, seq uint16) (PingResult, error) {
	if err := ctx.Err(); err != nil {
		return PingResult{}, err
	}

	dst, err := s.stack.ResolveA(host)
	if err != nil {
		return PingResult{}, err
	}
	reply, err := s.stack.Ping(dst, seq)
	if err != nil {
		return PingResult{}, err
	}
	return PingResult{Seq: reply.Seq, TTL: reply.TTL, RTTCycles: reply.RTTCycles}, nil
}

// Fetch issues an HTTP GET, following redirects
func (s *networkService) Fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, err := s.client.Get(rawURL)
	if err != nil {
		return nil, err
	}
	return &FetchResult{
		Status:      resp.Status,
		ContentType: resp.ContentType,
		Body:        resp.Body,
	}, nil
}

// AcquireAddress leases an IPv4 binding over DHCP
func (s *networkService) AcquireAddress(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.stack.AcquireDHCP()
}

// Info reports the interface state
func (s *networkService) Info() NetworkInfo {
	cfg := s.stack.Config()
	return NetworkInfo{
		NICPresent:   cfg.NICPresent,
		MAC:          cfg.MAC,
		DHCPBound:    cfg.DHCPBound,
		IP:           cfg.IP,
		Mask:         cfg.Mask,
		Gateway:      cfg.Gateway,
		DNS:          cfg.DNS,
		LeaseSeconds: cfg.LeaseSeconds,
	}
}
