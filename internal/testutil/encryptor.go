package testutil

import (
	"declutter-go/internal/declutter"
	"declutter-go/internal/encryption"
)

// NewTestEncryptor returns the header-only encryptor.
func NewTestEncryptor() declutter.Encryptor {
	return encryption.NewTestEncryptor()
}
