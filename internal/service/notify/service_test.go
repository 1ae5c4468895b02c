package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jadidihosein68/osaconnect/internal/domain"
)

type mockRepo struct {
	created []*domain.Notification
}

func (m *mockRepo) CreateNotification(_ context.Context, n *domain.Notification) error {
	m.created = append(m.created, n)
	return nil
}

func TestBroadcastToOrg_NormalizesTypeAndSeverity(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)

	n, err := svc.BroadcastToOrg(context.Background(), "org-1", "campaign", "success",
		"Campaign completed", "Spring sale finished", "/campaigns/c1", map[string]any{"campaign_id": "c1"})
	require.NoError(t, err)

	assert.Equal(t, "CAMPAIGN", n.Type)
	assert.Equal(t, "SUCCESS", n.Severity)
	assert.Equal(t, "/campaigns/c1", n.TargetURL)
	require.Len(t, repo.created, 1)
	assert.Equal(t, "c1", repo.created[0].Data["campaign_id"])
}

func TestBroadcastToOrg_RequiresTitle(t *testing.T) {
	svc := NewService(&mockRepo{})
	_, err := svc.BroadcastToOrg(context.Background(), "org-1", "campaign", "info", "", "", "", nil)
	assert.ErrorIs(t, err, ErrMissingTitle)
}

func TestCampaignFinished(t *testing.T) {
	tests := []struct {
		name     string
		f        *domain.Finalization
		wantN    int
		severity string
		title    string
	}{
		{"not finalized", &domain.Finalization{JobFinalized: true}, 0, "", ""},
		{"completed", &domain.Finalization{
			OrganizationID: "org-1", CampaignID: "c1", CampaignName: "Spring",
			CampaignStatus: domain.CampaignCompleted, CampaignFinalized: true, SentCount: 8,
		}, 1, "SUCCESS", "Campaign completed"},
		{"failed", &domain.Finalization{
			OrganizationID: "org-1", CampaignID: "c1",
			CampaignStatus: domain.CampaignFailed, CampaignFinalized: true, SentCount: 7, FailedCount: 1,
		}, 1, "WARNING", "Campaign finished with failures"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRepo{}
			svc := NewService(repo)
			require.NoError(t, svc.CampaignFinished(context.Background(), tt.f))
			require.Len(t, repo.created, tt.wantN)
			if tt.wantN == 0 {
				return
			}
			n := repo.created[0]
			assert.Equal(t, "CAMPAIGN", n.Type)
			assert.Equal(t, tt.severity, n.Severity)
			assert.Equal(t, tt.title, n.Title)
			assert.Equal(t, "/campaigns/c1", n.TargetURL)
		})
	}
}
