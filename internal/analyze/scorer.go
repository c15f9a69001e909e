package analyze

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strings"

	"github.com/JonasPrenissl/qsci-browser-extension/internal/model"
)

type evaluateRequest struct {
	Text      string `json:"text"`
	PDFURL    string `json:"pdf_url,omitempty"`
	SourceURL string `json:"source_url"`
	Title     string `json:"title"`
}

type evaluateResult struct {
	QualityPercentage   *float64           `json:"quality_percentage"`
	Score               *float64           `json:"score"`
	TrafficLight        string             `json:"traffic_light"`
	PositiveAspects     []string           `json:"positive_aspects"`
	NegativeAspects     []string           `json:"negative_aspects"`
	AreasForImprovement []string           `json:"areas_for_improvement"`
	JournalInfo         *model.JournalInfo `json:"journal_info"`
}

type evaluateResponse struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Result  *evaluateResult `json:"result"`
}

// Scorer submits paper content to the remote quality-scoring endpoint.
type Scorer struct {
	client  *http.Client
	apiBase string
}

func NewScorer(apiBase string) *Scorer {
	return &Scorer{client: &http.Client{}, apiBase: apiBase}
}

// Evaluate calls the scoring endpoint and returns its raw result. The
// caller bounds the context; a deadline surfaces as ErrTimeout.
func (s *Scorer) Evaluate(ctx context.Context, input model.PaperInput) (*evaluateResult, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = "Unknown Title"
	}
	body, err := json.Marshal(evaluateRequest{
		Text:      strings.TrimSpace(input.Text),
		PDFURL:    input.PDFURL,
		SourceURL: input.URL,
		Title:     title,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiBase+"/evaluate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RemoteError{Status: resp.StatusCode}
	}

	var decoded evaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &RemoteError{Status: resp.StatusCode, Reason: "invalid response format"}
	}
	if !decoded.Success || decoded.Result == nil {
		reason := decoded.Error
		if reason == "" {
			reason = "invalid response format"
		}
		return nil, &RemoteError{Status: resp.StatusCode, Reason: reason}
	}
	return decoded.Result, nil
}

// Normalize maps a raw scorer result to the canonical payload, filling
// absent optional fields with empty defaults. The backend has historically
// used both quality_percentage and score for the same value.
func Normalize(raw *evaluateResult) model.AnalysisPayload {
	score := 0
	switch {
	case raw.QualityPercentage != nil:
		score = int(math.Round(*raw.QualityPercentage))
	case raw.Score != nil:
		score = int(math.Round(*raw.Score))
	}

	trafficLight := raw.TrafficLight
	if trafficLight == "" {
		trafficLight = "Unknown"
	}

	positive := raw.PositiveAspects
	if positive == nil {
		positive = []string{}
	}
	negative := raw.NegativeAspects
	if negative == nil {
		negative = []string{}
	}
	areas := raw.AreasForImprovement
	if areas == nil {
		areas = negative
	}

	journal := raw.JournalInfo
	if journal == nil {
		journal = &model.JournalInfo{}
	}

	return model.AnalysisPayload{
		Score:               score,
		QualityPercentage:   score,
		TrafficLight:        trafficLight,
		PositiveAspects:     positive,
		NegativeAspects:     negative,
		AreasForImprovement: areas,
		JournalInfo:         journal,
	}
}
