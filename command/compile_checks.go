package command

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-credentials/core"
)

var (
	_ gocmd.Commander[InitiateAuthorizationMessage] = (*InitiateAuthorizationCommand)(nil)
	_ gocmd.Commander[CompleteAuthorizationMessage] = (*CompleteAuthorizationCommand)(nil)
	_ gocmd.Commander[GetCredentialsMessage]        = (*GetCredentialsCommand)(nil)

	_ LifecycleService = (*core.Manager)(nil)
)
