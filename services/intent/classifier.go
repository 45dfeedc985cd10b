package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"agentplane/pkg/config"
	"agentplane/services/workitem"
)

// ErrClassification marks input that could not be mapped to a work item kind.
// Callers reject the command instead of retrying: reclassifying the same text
// yields the same answer.
var ErrClassification = errors.New("intent classification failed")

// Classification is the structured interpretation of a free-form command.
type Classification struct {
	Kind                 workitem.Kind   `json:"kind"`
	Payload              json.RawMessage `json:"payload,omitempty"`
	Priority             string          `json:"priority,omitempty"`
	Confidence           float64         `json:"confidence"`
	RequiresConfirmation bool            `json:"requires_confirmation"`
}

type Classifier interface {
	Classify(ctx context.Context, ownerID, text string) (*Classification, error)
}

// HTTPClassifier delegates classification to an external model service.
type HTTPClassifier struct {
	client *resty.Client
}

func NewHTTPClassifier(cfg *config.Config) *HTTPClassifier {
	return &HTTPClassifier{
		client: resty.New().
			SetBaseURL(cfg.Intent.Addr).
			SetTimeout(cfg.Intent.Timeout),
	}
}

func (c *HTTPClassifier) Classify(ctx context.Context, ownerID, text string) (*Classification, error) {
	var out Classification
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"owner_id": ownerID, "text": text}).
		SetResult(&out).
		Post("/v1/classify")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClassification, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: classifier returned %d", ErrClassification, resp.StatusCode())
	}
	if !out.Kind.Valid() {
		return nil, fmt.Errorf("%w: classifier returned unknown kind %q", ErrClassification, out.Kind)
	}
	return &out, nil
}

// KeywordClassifier is the built-in fallback used when no classifier service
// is configured. It matches on leading verbs and a few domain nouns.
type KeywordClassifier struct{}

var keywordKinds = []struct {
	kind  workitem.Kind
	words []string
}{
	{workitem.KindPayment, []string{"pay", "payment", "charge", "refund"}},
	{workitem.KindOrder, []string{"order", "purchase", "buy"}},
	{workitem.KindReminder, []string{"remind", "reminder"}},
	{workitem.KindNotification, []string{"notify", "alert", "tell"}},
	{workitem.KindFileOperation, []string{"file", "upload", "download", "archive"}},
	{workitem.KindSystemCommand, []string{"run", "restart", "execute"}},
	{workitem.KindDataOperation, []string{"record", "store", "update", "delete", "count"}},
	{workitem.KindExternalCall, []string{"call", "fetch", "webhook", "sync"}},
}

func (KeywordClassifier) Classify(ctx context.Context, ownerID, text string) (*Classification, error) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return nil, fmt.Errorf("%w: empty command", ErrClassification)
	}

	for _, entry := range keywordKinds {
		for _, word := range entry.words {
			if strings.Contains(normalized, word) {
				payload, _ := json.Marshal(map[string]string{"text": text})
				return &Classification{
					Kind:       entry.kind,
					Payload:    payload,
					Confidence: 0.5,
					// Money movement and shell access always get a human gate.
					RequiresConfirmation: entry.kind == workitem.KindPayment ||
						entry.kind == workitem.KindSystemCommand,
				}, nil
			}
		}
	}

	payload, _ := json.Marshal(map[string]string{"text": text})
	return &Classification{
		Kind:       workitem.KindFreeformIntent,
		Payload:    payload,
		Confidence: 0.1,
	}, nil
}
