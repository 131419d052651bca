package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vietddude/acumba/internal/core/domain"
)

func TestComputeRates(t *testing.T) {
	r := ComputeRates(domain.CampaignStats{
		TotalDelivered: 1000,
		Opened:         250,
		UniqueClicks:   30,
		TotalClicks:    45,
		HardBounces:    20,
		Unsubscribes:   5,
	})
	assert.InDelta(t, 25.0, r.OpenRate, 1e-9)
	assert.InDelta(t, 3.0, r.ClickRate, 1e-9)
	assert.InDelta(t, 2.0, r.BounceRate, 1e-9)
	assert.InDelta(t, 0.5, r.UnsubscribeRate, 1e-9)
}

func TestComputeRates_NothingDelivered(t *testing.T) {
	assert.Equal(t, Rates{}, ComputeRates(domain.CampaignStats{Opened: 10}))
}

func TestAssess(t *testing.T) {
	tests := []struct {
		name  string
		rates Rates
		want  Assessment
	}{
		{"top", Rates{OpenRate: 25, ClickRate: 3, BounceRate: 2}, Assessment{GradeExcellent, GradeExcellent, GradeExcellent}},
		{"good", Rates{OpenRate: 15, ClickRate: 1, BounceRate: 5}, Assessment{GradeGood, GradeGood, GradeGood}},
		{"average open", Rates{OpenRate: 10, ClickRate: 0.5, BounceRate: 5.1}, Assessment{GradeAverage, GradeLow, GradeHigh}},
		{"low open", Rates{OpenRate: 9.99}, Assessment{GradeLow, GradeLow, GradeExcellent}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Assess(tt.rates))
		})
	}
}

func TestAssessment_Advice(t *testing.T) {
	assert.Empty(t, Assessment{GradeGood, GradeGood, GradeGood}.Advice())
	assert.Len(t, Assessment{GradeLow, GradeLow, GradeHigh}.Advice(), 3)
	assert.Equal(t,
		[]string{"high bounce rate: clean your list"},
		Assessment{GradeAverage, GradeGood, GradeHigh}.Advice())
}
