package model

// Tier is a user's subscription tier as reported by the entitlement backend.
type Tier string

const (
	TierFree       Tier = "free"
	TierSubscribed Tier = "subscribed"
	TierPastDue    Tier = "past_due"
)

// ParseTier maps a backend status string to a Tier. Unknown or empty values
// fall back to the free tier.
func ParseTier(s string) Tier {
	switch Tier(s) {
	case TierSubscribed:
		return TierSubscribed
	case TierPastDue:
		return TierPastDue
	default:
		return TierFree
	}
}

// Credential is the stored authentication state. It is either wholly present
// or wholly absent; readers never observe a partial credential.
type Credential struct {
	Token     string `json:"token"`
	Email     string `json:"email"`
	UserID    string `json:"userId"`
	SessionID string `json:"clerkSessionId"`
	Tier      Tier   `json:"subscriptionStatus"`
}

// UsageRecord is the persisted daily analysis counter. Count is only
// meaningful for its own Date (YYYY-MM-DD, UTC).
type UsageRecord struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Quota is the result of checking the daily usage against a tier's limit.
type Quota struct {
	Allowed   bool `json:"canAnalyze"`
	Remaining int  `json:"remaining"`
	Limit     int  `json:"limit"`
	Used      int  `json:"used"`
}

// PaperInput is the extracted bibliographic content submitted for analysis.
type PaperInput struct {
	Text   string `json:"text"`
	Title  string `json:"title,omitempty"`
	URL    string `json:"url,omitempty"`
	PDFURL string `json:"pdfUrl,omitempty"`
}

// JournalInfo carries optional journal metadata from the scoring backend.
type JournalInfo struct {
	Name         string `json:"name,omitempty"`
	ImpactFactor string `json:"impact_factor,omitempty"`
	Quartile     string `json:"quartile,omitempty"`
}

// AnalysisPayload is the canonical, normalized scoring result. Optional
// fields from the backend are filled with empty defaults so consumers and
// the cache never see missing fields.
type AnalysisPayload struct {
	Score               int          `json:"score"`
	QualityPercentage   int          `json:"quality_percentage"`
	TrafficLight        string       `json:"traffic_light"`
	PositiveAspects     []string     `json:"positive_aspects"`
	NegativeAspects     []string     `json:"negative_aspects"`
	AreasForImprovement []string     `json:"areas_for_improvement"`
	JournalInfo         *JournalInfo `json:"journal_info"`
}

// CacheEntry is a stored analysis result. Freshness (24h TTL) is checked at
// lookup time; physical removal happens at the 7 day retention horizon.
type CacheEntry struct {
	Key       string          `json:"key"`
	Payload   AnalysisPayload `json:"analysis"`
	SourceURL string          `json:"url,omitempty"`
	StoredAt  int64           `json:"timestamp"`
}
