// Package command exposes the manager operations as go-command messages
// so callers can dispatch them through a command bus.
package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-credentials/core"
)

const (
	TypeInitiateAuthorization = "credentials.command.authorization.initiate"
	TypeCompleteAuthorization = "credentials.command.authorization.complete"
	TypeGetCredentials        = "credentials.command.credentials.get"
)

type InitiateAuthorizationMessage struct {
	Request core.InitiateAuthorizationRequest
}

func (InitiateAuthorizationMessage) Type() string { return TypeInitiateAuthorization }

func (m InitiateAuthorizationMessage) Validate() error {
	if strings.TrimSpace(string(m.Request.Provider)) == "" {
		return fmt.Errorf("command: provider is required")
	}
	if strings.TrimSpace(string(m.Request.Service)) == "" {
		return fmt.Errorf("command: service is required")
	}
	return nil
}

type CompleteAuthorizationMessage struct {
	Request core.CompleteAuthorizationRequest
}

func (CompleteAuthorizationMessage) Type() string { return TypeCompleteAuthorization }

func (m CompleteAuthorizationMessage) Validate() error {
	if strings.TrimSpace(string(m.Request.Provider)) == "" {
		return fmt.Errorf("command: provider is required")
	}
	if strings.TrimSpace(string(m.Request.Service)) == "" {
		return fmt.Errorf("command: service is required")
	}
	if strings.TrimSpace(m.Request.Payload.State) == "" {
		return fmt.Errorf("command: callback state is required")
	}
	return nil
}

type GetCredentialsMessage struct {
	Request core.GetCredentialsRequest
}

func (GetCredentialsMessage) Type() string { return TypeGetCredentials }

func (m GetCredentialsMessage) Validate() error {
	if strings.TrimSpace(m.Request.Principal) == "" {
		return fmt.Errorf("command: principal is required")
	}
	if strings.TrimSpace(string(m.Request.Provider)) == "" {
		return fmt.Errorf("command: provider is required")
	}
	if strings.TrimSpace(string(m.Request.Service)) == "" {
		return fmt.Errorf("command: service is required")
	}
	return nil
}
