package mediasession

import "time"

// NoOp is used when no OS media session integration is available, so the
// rest of the player never has to nil-check the session.
type NoOp struct{}

// NewNoOp creates a no-op session.
func NewNoOp() *NoOp { return &NoOp{} }

func (s *NoOp) UpdateMetadata(Metadata) error { return nil }

func (s *NoOp) UpdateTransport(TransportState, time.Duration) error { return nil }

func (s *NoOp) UpdateShuffle(bool) error { return nil }

func (s *NoOp) SetCommandHandler(CommandHandler) {}

func (s *NoOp) Close() error { return nil }
