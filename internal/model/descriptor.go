// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// DefaultEndpoint is the chat completions endpoint used by the built-in
// models and by custom models that don't name one.
const DefaultEndpoint = "https://openrouter.ai/api/v1/chat/completions"

// =============================================================================
// MODEL DESCRIPTOR
// =============================================================================

// ModelDescriptor is everything the generation engine needs to talk to a model.
type ModelDescriptor struct {
	// ID is the registry key (e.g. "gpt-oss" or "custom-1700000000000").
	ID string `json:"id"`

	DisplayName string `json:"display_name"`

	// Endpoint is the exact URL requests are POSTed to.
	Endpoint string `json:"endpoint"`

	// ModelIdentifier is sent as the request's "model" field.
	ModelIdentifier string `json:"model_identifier"`

	// Credential is the bearer token. Empty until resolved against settings.
	Credential string `json:"-"`

	// CredentialSlot names the settings key holding a built-in's credential.
	CredentialSlot string `json:"credential_slot,omitempty"`

	VisionCapable bool `json:"vision_capable"`
	BuiltIn       bool `json:"built_in"`
}

// =============================================================================
// CUSTOM MODEL
// =============================================================================

// CustomModel is a user-defined model as persisted. The name doubles as the
// model identifier sent upstream.
type CustomModel struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
	Vision  bool   `json:"vision"`
}

// Descriptor converts the custom model to a resolved descriptor.
func (c CustomModel) Descriptor() ModelDescriptor {
	endpoint := c.BaseURL
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return ModelDescriptor{
		ID:              c.ID,
		DisplayName:     c.Name,
		Endpoint:        endpoint,
		ModelIdentifier: c.Name,
		Credential:      c.APIKey,
		VisionCapable:   c.Vision,
	}
}
