package search

import (
	"os"

	"github.com/ChamsBouzaiene/ibis/internal/engine"
)

// NewProviderFromEnv picks a search provider from environment variables.
// SEARCH_PROVIDER selects explicitly; otherwise the first configured API
// key wins and DuckDuckGo is the keyless fallback.
func NewProviderFromEnv() (engine.SearchProvider, string) {
	switch os.Getenv("SEARCH_PROVIDER") {
	case "tavily":
		return NewTavily(os.Getenv("TAVILY_API_KEY"), os.Getenv("TAVILY_DEPTH")), "tavily"
	case "brave":
		return NewBrave(os.Getenv("BRAVE_API_KEY")), "brave"
	case "duckduckgo":
		return NewDuckDuckGo(), "duckduckgo"
	}

	if key := os.Getenv("TAVILY_API_KEY"); key != "" {
		return NewTavily(key, os.Getenv("TAVILY_DEPTH")), "tavily"
	}
	if key := os.Getenv("BRAVE_API_KEY"); key != "" {
		return NewBrave(key), "brave"
	}
	return NewDuckDuckGo(), "duckduckgo"
}
