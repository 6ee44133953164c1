package secret

import "go.uber.org/fx"

// Module provides the secretbox port.SecretCipher.
var Module = fx.Options(
	fx.Provide(NewSecretCipherProvider),
)
