package entity

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"

	"github.com/merchstream/writeback/errors"
	"github.com/merchstream/writeback/pkg/timestamp"
)

const (
	idSuffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	idMaxAttempts    = 100
)

// ExistsFunc reports whether an id is already taken.
type ExistsFunc func(ctx context.Context, id string) (bool, error)

// NewID generates a globally unique id for t: 3-letter type prefix, 3-digit
// number, 3-character alphanumeric suffix (e.g. "usr042k3f"). Candidates are
// checked against exists and regenerated up to 100 times on collision; when
// every candidate collides the id falls back to a timestamp-derived form.
// A nil exists skips collision checking.
func NewID(ctx context.Context, t Type, exists ExistsFunc) (string, error) {
	if !t.Valid() {
		return "", errors.WrapValidation(
			fmt.Errorf("unknown entity type %q", t), "Entity", "NewID", "check type")
	}

	for attempt := 0; attempt < idMaxAttempts; attempt++ {
		id, err := randomID(t)
		if err != nil {
			return "", err
		}
		if exists == nil {
			return id, nil
		}
		taken, err := exists(ctx, id)
		if err != nil {
			return "", errors.WrapInfrastructure(err, "Entity", "NewID", "check collision")
		}
		if !taken {
			return id, nil
		}
	}

	// Every candidate collided; derive from the clock instead.
	return t.Prefix() + strconv.FormatInt(timestamp.Now(), 36), nil
}

func randomID(t Type) (string, error) {
	num, err := rand.Int(rand.Reader, big.NewInt(1000))
	if err != nil {
		return "", errors.WrapInfrastructure(err, "Entity", "NewID", "generate number")
	}

	suffix := make([]byte, 3)
	alphabetLen := big.NewInt(int64(len(idSuffixAlphabet)))
	for i := range suffix {
		idx, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", errors.WrapInfrastructure(err, "Entity", "NewID", "generate suffix")
		}
		suffix[i] = idSuffixAlphabet[idx.Int64()]
	}

	return fmt.Sprintf("%s%03d%s", t.Prefix(), num.Int64(), suffix), nil
}
