package keys

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrSigningUnavailable is returned when the secret scalar has already been
// released and zeroized.
var ErrSigningUnavailable = errors.New("signing unavailable: secret material released")

// Secret holds a private scalar for the lifetime of an identity. The raw
// bytes never leave the container: callers pass a function to Use, and the
// container guarantees the buffer is zeroized on Release, after which every
// Use fails with ErrSigningUnavailable.
type Secret struct {
	mu       sync.Mutex
	buf      []byte
	released bool
}

func newSecret(b []byte) *Secret {
	buf := make([]byte, len(b))
	copy(buf, b)
	return &Secret{buf: buf}
}

// Use runs fn with the raw scalar bytes while holding the container lock.
// fn must not retain the slice beyond the call.
func (s *Secret) Use(fn func([]byte) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrSigningUnavailable
	}
	return fn(s.buf)
}

// Release overwrites the scalar with zeros. Safe to call more than once.
func (s *Secret) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	for i := range s.buf {
		s.buf[i] = 0
	}
	s.buf = nil
	s.released = true
}

// Released reports whether the scalar has been zeroized.
func (s *Secret) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// String implements fmt.Stringer so the scalar cannot leak through logging.
func (s *Secret) String() string { return "Secret([redacted])" }

// GoString keeps %#v output redacted as well.
func (s *Secret) GoString() string { return s.String() }
