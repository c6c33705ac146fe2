package aida

import (
	"fmt"
	"strings"
	"sync"

	orberrors "github.com/orizon-lang/aida/internal/errors"
)

// InprocScheme is the only transport scheme: both ends live in one process.
const InprocScheme = "inproc://"

var (
	endpointMutex sync.RWMutex
	endpoints     = map[string]*ServerConnection{}
)

func validateProtocol(protocol string) error {
	if !strings.HasPrefix(protocol, InprocScheme) {
		return orberrors.ConnectionFailure(protocol, "unsupported transport scheme")
	}
	if len(protocol) == len(InprocScheme) {
		return orberrors.ConnectionFailure(protocol, "missing endpoint name")
	}
	return nil
}

func registerEndpoint(protocol string, s *ServerConnection) error {
	if err := validateProtocol(protocol); err != nil {
		return err
	}
	endpointMutex.Lock()
	defer endpointMutex.Unlock()
	if _, exists := endpoints[protocol]; exists {
		return orberrors.ConnectionFailure(protocol, "address already in use")
	}
	endpoints[protocol] = s
	return nil
}

func unregisterEndpoint(protocol string, s *ServerConnection) {
	endpointMutex.Lock()
	defer endpointMutex.Unlock()
	if endpoints[protocol] == s {
		delete(endpoints, protocol)
	}
}

func lookupEndpoint(protocol string) (*ServerConnection, error) {
	if err := validateProtocol(protocol); err != nil {
		return nil, err
	}
	endpointMutex.RLock()
	s := endpoints[protocol]
	endpointMutex.RUnlock()
	if s == nil {
		return nil, orberrors.ConnectionFailure(protocol, fmt.Sprintf("no server bound at %s", protocol))
	}
	return s, nil
}

// Endpoints lists the currently bound addresses.
func Endpoints() []string {
	endpointMutex.RLock()
	defer endpointMutex.RUnlock()
	out := make([]string, 0, len(endpoints))
	for addr := range endpoints {
		out = append(out, addr)
	}
	return out
}
