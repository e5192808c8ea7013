package main

import (
	"encoding/json"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/segyhp/payout-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestFromEvent(t *testing.T) {
	tests := []struct {
		name    string
		event   events.CloudWatchEvent
		want    domain.PipelineRequest
		wantErr bool
	}{
		{
			name: "request id from detail",
			event: events.CloudWatchEvent{
				ID:     "evt-1",
				Detail: json.RawMessage(`{"trigger":"weekly-payout","request_id":"weekly-2025-03-17"}`),
			},
			want: domain.PipelineRequest{Trigger: domain.TriggerWeeklyPayout, RequestID: "weekly-2025-03-17"},
		},
		{
			name: "event id fills missing request id",
			event: events.CloudWatchEvent{
				ID:     "evt-2",
				Detail: json.RawMessage(`{"trigger":"auto-confirm"}`),
			},
			want: domain.PipelineRequest{Trigger: domain.TriggerAutoConfirm, RequestID: "evt-2"},
		},
		{
			name:    "malformed detail",
			event:   events.CloudWatchEvent{ID: "evt-3", Detail: json.RawMessage(`{"trigger":`)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := requestFromEvent(tt.event)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
