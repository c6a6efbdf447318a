package artifact

import "fmt"

// IdentifierStrategy selects how the deduplication key for an upload is
// derived from the blob sink's write result.
type IdentifierStrategy string

const (
	// IdentifyByContent derives the identifier from a BLAKE3 digest of the
	// uploaded bytes, so identical content deduplicates regardless of the
	// generated storage name.
	IdentifyByContent IdentifierStrategy = "content"

	// IdentifyByName derives the identifier from the generated storage
	// name. This matches the original system's behavior and is kept for
	// compatibility testing; because generated names embed a timestamp,
	// identical content uploaded twice will not collide under this
	// strategy.
	IdentifyByName IdentifierStrategy = "name"
)

// Deriver maps a blob write result to a stable content identifier.
type Deriver struct {
	strategy IdentifierStrategy
}

// NewDeriver returns a Deriver for the named strategy. An empty strategy
// defaults to IdentifyByContent.
func NewDeriver(strategy string) (Deriver, error) {
	switch IdentifierStrategy(strategy) {
	case "", IdentifyByContent:
		return Deriver{strategy: IdentifyByContent}, nil
	case IdentifyByName:
		return Deriver{strategy: IdentifyByName}, nil
	default:
		return Deriver{}, fmt.Errorf("unknown identifier strategy %q", strategy)
	}
}

// Strategy reports the active strategy.
func (d Deriver) Strategy() IdentifierStrategy {
	return d.strategy
}

// Identifier picks the deduplication key for an upload. storedName is the
// generated on-disk name; contentDigest is the hex digest computed by the
// blob sink while writing the bytes.
func (d Deriver) Identifier(storedName, contentDigest string) string {
	if d.strategy == IdentifyByName {
		return storedName
	}
	return contentDigest
}
