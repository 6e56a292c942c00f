// Package openaicompat provides a shared base implementation for
// OpenAI-compatible chat providers.
//
// OpenAI, DeepSeek and self-hosted gateways share the same Chat Completions
// wire format. They embed openaicompat.Provider and only override what differs:
//
//   - Provider name and default model
//   - Base URL and endpoint path
//   - Custom headers (if any)
//
// Usage:
//
//	p := openaicompat.New(openaicompat.Config{
//	    ProviderName:  "deepseek",
//	    APIKey:        cfg.APIKey,
//	    BaseURL:       "https://api.deepseek.com",
//	    EndpointPath:  "/chat/completions",
//	    FallbackModel: "deepseek-chat",
//	}, logger)
package openaicompat
