// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package registry resolves model ids to descriptors.
//
// Built-in models are fixed configuration and take their credential from a
// named slot in the user's settings. Custom models are user-defined, carry
// their own credential and are persisted by the caller.
package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/freechat-tui/internal/model"
)

// DefaultModelID is selected when nothing else is.
const DefaultModelID = "gpt-oss"

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrUnknownModel is returned when an id matches no built-in or custom model.
	ErrUnknownModel = errors.New("unknown model")

	// ErrMissingCredential is returned when the resolved model has no API key.
	ErrMissingCredential = errors.New("no API key configured for this model")

	// ErrModelNameRequired is returned when a custom model has no name.
	ErrModelNameRequired = errors.New("model name is required")

	// ErrInvalidEndpoint is returned for a custom endpoint that is not an
	// absolute http(s) URL.
	ErrInvalidEndpoint = errors.New("endpoint must be an absolute http(s) URL")

	// ErrBuiltInModel is returned when trying to remove a built-in model.
	ErrBuiltInModel = errors.New("built-in models cannot be removed")
)

// CredentialError names the model whose credential is missing.
type CredentialError struct {
	ModelID     string
	DisplayName string
	// Slot is the settings key to fill for built-ins; empty for custom models.
	Slot string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("no API key configured for %q", e.DisplayName)
}

func (e *CredentialError) Unwrap() error { return ErrMissingCredential }

// =============================================================================
// BUILT-IN MODELS
// =============================================================================

var builtIns = []model.ModelDescriptor{
	{
		ID:              "gpt-oss",
		DisplayName:     "ChatGPT",
		Endpoint:        model.DefaultEndpoint,
		ModelIdentifier: "openai/gpt-oss-20b:free",
		CredentialSlot:  model.SlotChatGPT,
		BuiltIn:         true,
	},
	{
		ID:              "deepseek",
		DisplayName:     "DeepSeek",
		Endpoint:        model.DefaultEndpoint,
		ModelIdentifier: "deepseek/deepseek-chat",
		CredentialSlot:  model.SlotDeepSeek,
		BuiltIn:         true,
	},
	{
		ID:              "qwen",
		DisplayName:     "Qwen (Vision)",
		Endpoint:        model.DefaultEndpoint,
		ModelIdentifier: "qwen/qwen2.5-vl-32b-instruct:free",
		CredentialSlot:  model.SlotQwen,
		VisionCapable:   true,
		BuiltIn:         true,
	},
}

// BuiltIns returns copies of the built-in descriptors without credentials.
func BuiltIns() []model.ModelDescriptor {
	out := make([]model.ModelDescriptor, len(builtIns))
	copy(out, builtIns)
	return out
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry holds the custom model list on top of the built-ins.
type Registry struct {
	mu     sync.RWMutex
	custom []model.CustomModel
	now    func() time.Time
}

// New creates a registry with the given custom models.
func New(custom []model.CustomModel) *Registry {
	r := &Registry{now: time.Now}
	r.custom = append(r.custom, custom...)
	return r
}

// Custom returns a copy of the custom model list.
func (r *Registry) Custom() []model.CustomModel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.CustomModel, len(r.custom))
	copy(out, r.custom)
	return out
}

// ReplaceCustom swaps the whole custom model list, as after an external
// reload.
func (r *Registry) ReplaceCustom(custom []model.CustomModel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.custom = append([]model.CustomModel(nil), custom...)
}

// List returns the built-ins followed by the custom models, credentials
// resolved against settings.
func (r *Registry) List(settings model.Settings) []model.ModelDescriptor {
	out := BuiltIns()
	for i := range out {
		out[i].Credential = settings.APIKeys[out[i].CredentialSlot]
	}
	for _, c := range r.Custom() {
		out = append(out, c.Descriptor())
	}
	return out
}

// Exists reports whether id names a known model.
func (r *Registry) Exists(id string) bool {
	_, err := r.Resolve(id, model.Settings{})
	return err == nil
}

// Resolve returns the descriptor for id with its credential filled in.
func (r *Registry) Resolve(id string, settings model.Settings) (model.ModelDescriptor, error) {
	for _, b := range builtIns {
		if b.ID == id {
			b.Credential = settings.APIKeys[b.CredentialSlot]
			return b, nil
		}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.custom {
		if c.ID == id {
			return c.Descriptor(), nil
		}
	}
	return model.ModelDescriptor{}, fmt.Errorf("%w: %q", ErrUnknownModel, id)
}

// RequireCredential fails with a *CredentialError if desc has no key.
func RequireCredential(desc model.ModelDescriptor) error {
	if strings.TrimSpace(desc.Credential) != "" {
		return nil
	}
	return &CredentialError{ModelID: desc.ID, DisplayName: desc.DisplayName, Slot: desc.CredentialSlot}
}

// AddCustom validates and appends a custom model. An empty baseURL means
// the default endpoint.
func (r *Registry) AddCustom(name, baseURL, apiKey string, vision bool) (model.CustomModel, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.CustomModel{}, ErrModelNameRequired
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = model.DefaultEndpoint
	} else if err := ValidateEndpoint(baseURL); err != nil {
		return model.CustomModel{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextCustomID()
	m := model.CustomModel{
		ID:      id,
		Name:    name,
		BaseURL: baseURL,
		APIKey:  strings.TrimSpace(apiKey),
		Vision:  vision,
	}
	r.custom = append(r.custom, m)
	return m, nil
}

// RemoveCustom deletes a custom model.
func (r *Registry) RemoveCustom(id string) error {
	for _, b := range builtIns {
		if b.ID == id {
			return ErrBuiltInModel
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.custom {
		if c.ID == id {
			r.custom = append(r.custom[:i], r.custom[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownModel, id)
}

// nextCustomID returns "custom-<unix ms>", bumped past any existing id.
// Callers hold r.mu.
func (r *Registry) nextCustomID() string {
	ms := r.now().UnixMilli()
	for {
		id := "custom-" + strconv.FormatInt(ms, 10)
		taken := false
		for _, c := range r.custom {
			if c.ID == id {
				taken = true
				break
			}
		}
		if !taken {
			return id
		}
		ms++
	}
}

// ValidateEndpoint checks that raw is an absolute http or https URL.
func ValidateEndpoint(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: %q", ErrInvalidEndpoint, raw)
	}
	return nil
}

// Fingerprint returns a short non-reversible tag for a credential, for logs.
func Fingerprint(credential string) string {
	if credential == "" {
		return "none"
	}
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:4])
}
