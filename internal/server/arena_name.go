package server

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/fsgeek/finesse/internal/wire"
)

// parseArenaName reads a NUL-terminated UUID string out of a wire message's
// fixed-size ArenaName field.
func parseArenaName(raw []byte) (uuid.UUID, error) {
	s := wire.GetString(raw)
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("server: invalid arena name %q: %w", s, err)
	}
	return id, nil
}
