package matching

import "fmt"

// Config holds the resolver knobs. Zero values are not usable; start from DefaultConfig.
type Config struct {
	// SimilarityThreshold is the minimum trigram similarity for the fallback stage.
	SimilarityThreshold float64 `koanf:"similarity_threshold" yaml:"similarity_threshold"`
	// TopK caps the similarity stage. The substring stage is never capped here.
	TopK int `koanf:"top_k" yaml:"top_k"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.35,
		TopK:                5,
	}
}

func (c Config) Validate() error {
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("matching.similarity_threshold must be in (0,1], got %v", c.SimilarityThreshold)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("matching.top_k must be > 0, got %d", c.TopK)
	}
	return nil
}
