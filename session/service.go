// File: session/service.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Service registration and resolution for loopback dispatch.

package session

import (
	"context"
	"errors"
	"fmt"
)

// HandlerFunc executes one request on behalf of a registered service. The
// context is cancelled when the caller requests interrupting cancellation.
type HandlerFunc func(ctx context.Context, request any) (any, error)

// RegisterService binds a handler to a service name.
func (s *Session) RegisterService(name string, h HandlerFunc) error {
	if h == nil {
		return errors.New("nil handler")
	}
	s.svcMu.Lock()
	defer s.svcMu.Unlock()
	if _, dup := s.services[name]; dup {
		return fmt.Errorf("service %q already registered", name)
	}
	s.services[name] = h
	return nil
}

func (s *Session) serviceHandler(name string) HandlerFunc {
	s.svcMu.RLock()
	defer s.svcMu.RUnlock()
	return s.services[name]
}

// Services returns the registered service names.
func (s *Session) Services() []string {
	s.svcMu.RLock()
	defer s.svcMu.RUnlock()
	names := make([]string, 0, len(s.services))
	for name := range s.services {
		names = append(names, name)
	}
	return names
}
