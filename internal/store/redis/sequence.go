package redis

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// NextSeq returns the owner's next event sequence number, starting at 1.
func (s *Store) NextSeq(ctx context.Context, owner uuid.UUID) (int64, error) {
	n, err := s.client.Incr(ctx, SeqKey(owner)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to advance sequence: %w", err)
	}
	return n, nil
}
