package vault

import "sync"

// Secret holds decrypted credential bytes. Close zeroes them; after Close the
// Secret reads as empty.
type Secret struct {
	mu     sync.Mutex
	data   []byte
	closed bool
}

func newSecret(data []byte) *Secret {
	return &Secret{data: data}
}

// Bytes returns the live backing slice. It is zeroed by Close, so callers must not retain it.
func (s *Secret) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.data
}

// String copies the secret into an immutable string that Close cannot reach.
func (s *Secret) String() string {
	return string(s.Bytes())
}

func (s *Secret) Len() int {
	return len(s.Bytes())
}

func (s *Secret) IsEmpty() bool {
	return s.Len() == 0
}

// Close zeroes the secret. Safe to call more than once.
func (s *Secret) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	clear(s.data)
	s.data = nil
	s.closed = true
}
