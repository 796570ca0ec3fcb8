package epoch

import "errors"

// ErrActiveKeyMissing is returned by VerifyIntegrity when the active key
// version has no corresponding key in the vault.
var ErrActiveKeyMissing = errors.New("epoch: active key version missing from vault")

// ErrActiveKeyRevoked is returned by VerifyIntegrity when the state is
// internally inconsistent: the active key version also appears revoked.
var ErrActiveKeyRevoked = errors.New("epoch: active key version is also marked revoked")
