// Package domain contains entity without logic, just meta-data
package domain

type (
	// UserID is a verified principal id. It is only ever produced by the
	// token verifier; adapters never accept one from a client payload.
	UserID string

	// ConnID identifies one live transport session. Ephemeral, never
	// persisted.
	ConnID string
)
