package intent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"agentplane/services/workitem"
)

func TestKeywordClassifier(t *testing.T) {
	classifier := KeywordClassifier{}
	ctx := context.Background()

	tests := []struct {
		text        string
		wantKind    workitem.Kind
		wantConfirm bool
	}{
		{"pay the electricity bill", workitem.KindPayment, true},
		{"order two more standing desks", workitem.KindOrder, false},
		{"remind me about the retro", workitem.KindReminder, false},
		{"notify the on-call channel", workitem.KindNotification, false},
		{"upload the quarterly report", workitem.KindFileOperation, false},
		{"restart the staging node", workitem.KindSystemCommand, true},
		{"update the customer record", workitem.KindDataOperation, false},
		{"fetch the latest exchange rates", workitem.KindExternalCall, false},
		{"do something clever", workitem.KindFreeformIntent, false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := classifier.Classify(ctx, "owner-1", tt.text)
			require.NoError(t, err)
			require.Equal(t, tt.wantKind, got.Kind)
			require.Equal(t, tt.wantConfirm, got.RequiresConfirmation)
			require.NotEmpty(t, got.Payload)
		})
	}
}

func TestKeywordClassifierEmptyText(t *testing.T) {
	_, err := KeywordClassifier{}.Classify(context.Background(), "owner-1", "   ")
	require.ErrorIs(t, err, ErrClassification)
}
