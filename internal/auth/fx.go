package auth

import (
	"go.uber.org/fx"
)

var Module = fx.Module("auth",
	fx.Provide(
		NewVerifierFromConfig,
		func(v *JWTVerifier) Verifier { return v },
	),
)
