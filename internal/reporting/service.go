package reporting

import (
	"context"
	"fmt"

	"leadbridge/internal/leads"
)

// SnapshotSource lists settled leads. Implemented by the archive repos.
type SnapshotSource interface {
	ListSnapshots(ctx context.Context) ([]leads.Snapshot, error)
}

// Summary aggregates settled-lead outcomes for operators.
type Summary struct {
	TotalLeads int `json:"total_leads"`

	Bridged              int `json:"bridged"`
	Voicemail            int `json:"voicemail"`
	Declined             int `json:"declined"`
	SalesTeamUnavailable int `json:"sales_team_unavailable"`
	NoAnswer             int `json:"no_answer"`
	Incomplete           int `json:"incomplete"`

	NeedsFollowUp int `json:"needs_follow_up"`

	// BridgeRate is bridged / total, 0 when there are no leads.
	BridgeRate float64 `json:"bridge_rate"`

	IntentBreakdown map[string]int `json:"intent_breakdown"`
}

// Service summarizes archived snapshots.
type Service struct {
	source SnapshotSource
}

func NewService(source SnapshotSource) *Service {
	return &Service{source: source}
}

func (s *Service) Summarize(ctx context.Context) (Summary, error) {
	snaps, err := s.source.ListSnapshots(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("reporting: list snapshots: %w", err)
	}

	sum := Summary{IntentBreakdown: make(map[string]int)}
	for _, snap := range snaps {
		sum.TotalLeads++
		switch snap.Outcome {
		case leads.OutcomeBridged:
			sum.Bridged++
		case leads.OutcomeVoicemail:
			sum.Voicemail++
		case leads.OutcomeDeclined:
			sum.Declined++
		case leads.OutcomeSalesUnavailable:
			sum.SalesTeamUnavailable++
		case leads.OutcomeNoAnswer:
			sum.NoAnswer++
		default:
			sum.Incomplete++
		}
		if snap.NeedsFollowUp {
			sum.NeedsFollowUp++
		}
		if snap.DerivedIntent != nil && snap.DerivedIntent.Primary != "" {
			sum.IntentBreakdown[snap.DerivedIntent.Primary]++
		}
	}
	if sum.TotalLeads > 0 {
		sum.BridgeRate = float64(sum.Bridged) / float64(sum.TotalLeads)
	}
	return sum, nil
}
