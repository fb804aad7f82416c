package tracker

// Request and response bodies of the tracking endpoints.

type startRequest struct {
	ID               string `json:"id"`
	UserAgent        string `json:"userAgent,omitempty"`
	Referrer         string `json:"referrer,omitempty"`
	LandingPage      string `json:"landingPage,omitempty"`
	UTMSource        string `json:"utmSource,omitempty"`
	UTMMedium        string `json:"utmMedium,omitempty"`
	UTMCampaign      string `json:"utmCampaign,omitempty"`
	UTMTerm          string `json:"utmTerm,omitempty"`
	UTMContent       string `json:"utmContent,omitempty"`
	DeviceType       string `json:"deviceType,omitempty"`
	Browser          string `json:"browser,omitempty"`
	OS               string `json:"os,omitempty"`
	ScreenResolution string `json:"screenResolution,omitempty"`
	Language         string `json:"language,omitempty"`
	Timezone         string `json:"timezone,omitempty"`
	StartedAt        string `json:"startedAt"`
}

type updateRequest struct {
	SessionID    string `json:"sessionId"`
	Duration     int    `json:"duration"`
	PageViews    int    `json:"pageViews"`
	Bounce       *bool  `json:"bounce,omitempty"`
	LastActivity string `json:"lastActivity"`
}

type eventRequest struct {
	SessionID     string `json:"sessionId"`
	EventType     string `json:"eventType"`
	EventCategory string `json:"eventCategory,omitempty"`
	EventAction   string `json:"eventAction,omitempty"`
	EventLabel    string `json:"eventLabel,omitempty"`
	EventValue    string `json:"eventValue,omitempty"`
	PageURL       string `json:"pageUrl,omitempty"`
	PageTitle     string `json:"pageTitle,omitempty"`
	ElementID     string `json:"elementId,omitempty"`
	ElementText   string `json:"elementText,omitempty"`
	Timestamp     string `json:"timestamp"`
}

type conversionRequest struct {
	SessionID       string                 `json:"sessionId"`
	ConversionType  string                 `json:"conversionType"`
	ConversionValue float64                `json:"conversionValue"`
	FormData        map[string]interface{} `json:"formData,omitempty"`
	PageURL         string                 `json:"pageUrl,omitempty"`
	Timestamp       string                 `json:"timestamp"`
}

type leadRequest struct {
	Name        string                 `json:"name"`
	Email       string                 `json:"email,omitempty"`
	Phone       string                 `json:"phone,omitempty"`
	City        string                 `json:"city,omitempty"`
	State       string                 `json:"state,omitempty"`
	StoreType   string                 `json:"storeType,omitempty"`
	HasCNPJ     string                 `json:"hasCnpj,omitempty"`
	CNPJStatus  string                 `json:"cnpjStatus,omitempty"`
	Message     string                 `json:"message,omitempty"`
	Source      string                 `json:"source,omitempty"`
	SessionID   string                 `json:"sessionId,omitempty"`
	UTMSource   string                 `json:"utmSource,omitempty"`
	UTMMedium   string                 `json:"utmMedium,omitempty"`
	UTMCampaign string                 `json:"utmCampaign,omitempty"`
	PageURL     string                 `json:"pageUrl,omitempty"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

type leadResponse struct {
	Success   bool `json:"success"`
	LeadID    uint `json:"leadId"`
	Duplicate bool `json:"duplicate"`
}
