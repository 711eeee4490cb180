package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	CredentialPayloadFormatJSONV1 = "credential_record_json"
	CredentialPayloadVersionV1    = 1
)

// JSONCredentialCodec is the default storage codec. Round-trip fidelity is
// load-bearing: an absent refresh token must decode back to the empty
// string, never a placeholder.
type JSONCredentialCodec struct{}

func (JSONCredentialCodec) Format() string {
	return CredentialPayloadFormatJSONV1
}

func (JSONCredentialCodec) Version() int {
	return CredentialPayloadVersionV1
}

type jsonCredentialPayload struct {
	Principal    string         `json:"principal"`
	Provider     string         `json:"provider"`
	Service      string         `json:"service"`
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time      `json:"expires_at"`
	Scopes       []string       `json:"scopes,omitempty"`
	Raw          map[string]any `json:"raw,omitempty"`
}

func (JSONCredentialCodec) Encode(record CredentialRecord) ([]byte, error) {
	payload := jsonCredentialPayload{
		Principal:    strings.TrimSpace(record.Principal),
		Provider:     string(record.Provider.Normalized()),
		Service:      string(record.Service.Normalized()),
		AccessToken:  strings.TrimSpace(record.AccessToken),
		RefreshToken: strings.TrimSpace(record.RefreshToken),
		ExpiresAt:    record.ExpiresAt.UTC(),
		Scopes:       append([]string(nil), record.Scopes...),
		Raw:          copyAnyMap(record.Raw),
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("core: encode credential payload: %w", err)
	}
	return encoded, nil
}

func (JSONCredentialCodec) Decode(payload []byte) (CredentialRecord, error) {
	if len(payload) == 0 {
		return CredentialRecord{}, fmt.Errorf("core: credential payload is empty")
	}
	decoded := jsonCredentialPayload{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return CredentialRecord{}, fmt.Errorf("core: decode credential payload: %w", err)
	}
	return CredentialRecord{
		Principal:    strings.TrimSpace(decoded.Principal),
		Provider:     Provider(decoded.Provider).Normalized(),
		Service:      Service(decoded.Service).Normalized(),
		AccessToken:  strings.TrimSpace(decoded.AccessToken),
		RefreshToken: strings.TrimSpace(decoded.RefreshToken),
		ExpiresAt:    decoded.ExpiresAt.UTC(),
		Scopes:       append([]string(nil), decoded.Scopes...),
		Raw:          copyAnyMap(decoded.Raw),
	}, nil
}
