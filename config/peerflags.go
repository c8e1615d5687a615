package config

import (
	"fmt"
	"net/netip"
	"slices"
	"strconv"
	"strings"
)

// peerFlags map switch ids to the IPv4 addresses used as the remote
// encapsulation destination, given as id=ip pairs or as a yaml map.
type peerFlags struct {
	values map[uint32]netip.Addr
}

func newPeerFlags() *peerFlags {
	return &peerFlags{}
}

func parsePeer(id uint64, ip string) (uint32, netip.Addr, error) {
	a, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return 0, netip.Addr{}, fmt.Errorf("invalid peer address for switch %d: %w", id, err)
	}

	if !a.Is4() {
		return 0, netip.Addr{}, fmt.Errorf("invalid peer address for switch %d: %s is not IPv4", id, a)
	}

	return uint32(id), a, nil
}

func (p *peerFlags) String() string {
	if p == nil {
		return ""
	}

	ids := make([]uint32, 0, len(p.values))
	for id := range p.values {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	pairs := make([]string, 0, len(ids))
	for _, id := range ids {
		pairs = append(pairs, fmt.Sprint(id, "=", p.values[id]))
	}

	return strings.Join(pairs, ",")
}

func (p *peerFlags) Set(value string) error {
	if p == nil {
		return nil
	}

	p.values = make(map[uint32]netip.Addr)
	if value == "" {
		return nil
	}

	for _, pair := range strings.Split(value, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("invalid peer, expected format id=ip but got: '%s'", pair)
		}

		id, err := strconv.ParseUint(strings.TrimSpace(k), 10, 32)
		if err != nil {
			return fmt.Errorf("invalid peer id: '%s'", k)
		}

		sid, a, err := parsePeer(id, v)
		if err != nil {
			return err
		}

		p.values[sid] = a
	}

	return nil
}

func (p *peerFlags) UnmarshalYAML(unmarshal func(any) error) error {
	var values map[uint32]string
	if err := unmarshal(&values); err != nil {
		return err
	}

	p.values = make(map[uint32]netip.Addr, len(values))
	for id, ip := range values {
		sid, a, err := parsePeer(uint64(id), ip)
		if err != nil {
			return err
		}

		p.values[sid] = a
	}

	return nil
}
