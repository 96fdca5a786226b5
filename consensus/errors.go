package consensus

import "errors"

var (
	// ErrInsufficientVotes is returned when a commit is attempted
	// without a greater-than-two-thirds precommit quorum for the block.
	ErrInsufficientVotes = errors.New("insufficient precommit power")

	// ErrNoSigner is returned when an operation that produces signed
	// consensus messages is invoked on an engine built without a signer.
	ErrNoSigner = errors.New("engine has no signer")

	// ErrAmbiguousPayload is returned when a consensus payload does not
	// carry exactly one message variant.
	ErrAmbiguousPayload = errors.New("payload must carry exactly one consensus message")
)
