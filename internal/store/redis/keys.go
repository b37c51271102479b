package redis

import "github.com/google/uuid"

const (
	// KeyPrefixTags is the prefix for cached tag lists
	KeyPrefixTags = "linkvault:tags:"
	// KeyPrefixTagsGen is the prefix for per-owner tag cache generations
	KeyPrefixTagsGen = "linkvault:tags-gen:"
	// KeyPrefixSeq is the prefix for per-owner event sequences
	KeyPrefixSeq = "linkvault:seq:"
	// KeyDeadLetters is the list of undelivered events
	KeyDeadLetters = "linkvault:outbox:dead"
)

// TagsKey returns the Redis key for an owner's cached tag list
func TagsKey(owner uuid.UUID) string {
	return KeyPrefixTags + owner.String()
}

// TagsGenKey returns the Redis key for an owner's tag cache generation
func TagsGenKey(owner uuid.UUID) string {
	return KeyPrefixTagsGen + owner.String()
}

// SeqKey returns the Redis key for an owner's event sequence
func SeqKey(owner uuid.UUID) string {
	return KeyPrefixSeq + owner.String()
}

// DeadLettersKey returns the key of the dead-letter list
func DeadLettersKey() string {
	return KeyDeadLetters
}
