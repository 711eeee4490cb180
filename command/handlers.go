package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-credentials/core"
)

type LifecycleService interface {
	InitiateAuthorization(ctx context.Context, req core.InitiateAuthorizationRequest) (core.BeginAuthResponse, error)
	CompleteAuthorization(ctx context.Context, req core.CompleteAuthorizationRequest) (core.StoredCredential, error)
	GetCredentials(ctx context.Context, req core.GetCredentialsRequest) (core.GetCredentialsResult, error)
}

type InitiateAuthorizationCommand struct {
	service LifecycleService
}

func NewInitiateAuthorizationCommand(service LifecycleService) *InitiateAuthorizationCommand {
	return &InitiateAuthorizationCommand{service: service}
}

func (c *InitiateAuthorizationCommand) Execute(ctx context.Context, msg InitiateAuthorizationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: authorization service is required")
	}
	out, err := c.service.InitiateAuthorization(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CompleteAuthorizationCommand struct {
	service LifecycleService
}

func NewCompleteAuthorizationCommand(service LifecycleService) *CompleteAuthorizationCommand {
	return &CompleteAuthorizationCommand{service: service}
}

func (c *CompleteAuthorizationCommand) Execute(ctx context.Context, msg CompleteAuthorizationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: authorization service is required")
	}
	out, err := c.service.CompleteAuthorization(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type GetCredentialsCommand struct {
	service LifecycleService
}

func NewGetCredentialsCommand(service LifecycleService) *GetCredentialsCommand {
	return &GetCredentialsCommand{service: service}
}

func (c *GetCredentialsCommand) Execute(ctx context.Context, msg GetCredentialsMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: credentials service is required")
	}
	out, err := c.service.GetCredentials(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
