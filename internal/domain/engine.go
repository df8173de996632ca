package domain

import "time"

type EngineDescriptor struct {
	Key        string `json:"key" yaml:"key"`
	Name       string `json:"name" yaml:"name"`
	BaseURL    string `json:"baseUrl" yaml:"base_url"`
	SearchPath string `json:"searchPath" yaml:"search_path"`
	APIPath    string `json:"apiPath,omitempty" yaml:"api_path"`
	// CategoryParams overrides the query parameter sent for a category.
	// Missing entries fall back to category_<name>=1.
	CategoryParams map[Category]string `json:"categoryParams,omitempty" yaml:"category_params"`
	Structured     bool                `json:"structured" yaml:"structured"`
}

// CategoryParam returns the query parameter name enabling the category.
// General has no parameter.
func (d EngineDescriptor) CategoryParam(category Category) string {
	if category == "" || category == CategoryGeneral {
		return ""
	}
	if param, ok := d.CategoryParams[category]; ok {
		return param
	}
	return "category_" + string(category)
}

type EngineInfo struct {
	EngineDescriptor
	Current bool `json:"current"`
}

type BackendDiagnostics struct {
	Engine              string     `json:"engine"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	BlockedUntil        *time.Time `json:"blockedUntil,omitempty"`
	LastError           string     `json:"lastError,omitempty"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
	LastLatencyMS       int64      `json:"lastLatencyMs,omitempty"`
	LastTimeout         bool       `json:"lastTimeout,omitempty"`
	LastQuery           string     `json:"lastQuery,omitempty"`
	TotalRequests       int64      `json:"totalRequests,omitempty"`
	TotalFailures       int64      `json:"totalFailures,omitempty"`
	TimeoutCount        int64      `json:"timeoutCount,omitempty"`
}
