// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.Embedder and
// ai.AIProvider for use in unit tests. The mocks allow tests to run without
// external AI service dependencies and enable controlled, deterministic behavior.
//
// # Usage in Tests
//
//	// Basic usage with default behavior
//	provider := mock.NewMockProvider()
//	embedder, _ := provider.Embedder("test-model", 0)
//	result, err := embedder.Embed(ctx, []string{"test"})
//
//	// Custom behavior injection
//	mockEmbedder := provider.GetMockEmbedder("test-model")
//	mockEmbedder.EmbedFunc = func(ctx context.Context, texts []string) (*ai.Result, error) {
//	    return nil, ai.ErrRateLimited
//	}
//
//	// Check call counts
//	count := mockEmbedder.CallCount()
//
// # Default Behavior
//
// MockEmbedder returns deterministic unit vectors derived from a hash of each
// text. They have DefaultDimensions components unless the provider was asked
// for another size.
package mock
