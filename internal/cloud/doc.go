// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud talks to OpenAI-compatible chat completion endpoints.
//
// Requests go to the exact endpoint URL carried by the model descriptor
// (OpenRouter by default, any compatible base URL for custom models). The
// wire protocol is handled by go-openai; this package adds per-request
// endpoints and credentials, the application headers OpenRouter expects,
// rate limiting and error classification.
//
// # Key Types
//
//   - Client: streams replies or completes short prompts
//   - Request: endpoint, credential, model identifier and messages
//   - APIError: non-2xx response, classified with errors.Is
//
// # Usage
//
//	client := cloud.New(cloud.WithAppHeaders(referer, title))
//	tokens, errc := client.Stream(ctx, cloud.Request{
//	    Endpoint:   desc.Endpoint,
//	    Credential: desc.Credential,
//	    Model:      desc.ModelIdentifier,
//	    Messages:   messages,
//	})
//	for tok := range tokens {
//	    fmt.Print(tok)
//	}
//	if err := <-errc; err != nil {
//	    // handle
//	}
package cloud
