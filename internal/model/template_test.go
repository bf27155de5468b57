package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validOverviewTemplate() Template {
	return Template{
		ID:                    uuid.New(),
		Name:                  "Engineering Baseline",
		Goal:                  GoalOverview,
		Blueprint:             Blueprint{Goal: GoalOverview},
		CompetencyIDs:         []uuid.UUID{uuid.New()},
		QuestionsPerIndicator: 3,
		PassingScore:          70,
	}
}

func TestValidateTemplate(t *testing.T) {
	require.NoError(t, ValidateTemplate(validOverviewTemplate()))

	tests := []struct {
		name   string
		mutate func(*Template)
	}{
		{"missing name", func(t *Template) { t.Name = "" }},
		{"no competencies", func(t *Template) { t.CompetencyIDs = nil }},
		{"zero questions per indicator", func(t *Template) { t.QuestionsPerIndicator = 0 }},
		{"passing score over 100", func(t *Template) { t.PassingScore = 101 }},
		{"negative passing score", func(t *Template) { t.PassingScore = -1 }},
		{"blueprint goal mismatch", func(t *Template) { t.Blueprint.Goal = GoalJobFit }},
		{"unknown goal", func(t *Template) { t.Goal = "vibes"; t.Blueprint.Goal = "vibes" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl := validOverviewTemplate()
			tt.mutate(&tmpl)
			err := ValidateTemplate(tmpl)
			require.Error(t, err)
			assert.Equal(t, CodeInvalidArgument, CodeOf(err))
		})
	}
}

func TestValidateTemplateGoalSpecificRequirements(t *testing.T) {
	jf := validOverviewTemplate()
	jf.Goal = GoalJobFit
	jf.Blueprint = Blueprint{Goal: GoalJobFit}
	assert.Error(t, ValidateTemplate(jf), "job_fit needs an occupation code")
	jf.Blueprint.ONetOccupationCode = "15-1252.00"
	assert.NoError(t, ValidateTemplate(jf))

	tf := validOverviewTemplate()
	tf.Goal = GoalTeamFit
	tf.Blueprint = Blueprint{Goal: GoalTeamFit}
	assert.Error(t, ValidateTemplate(tf), "team_fit needs a team id")
	teamID := uuid.New()
	tf.Blueprint.TeamID = &teamID
	assert.NoError(t, ValidateTemplate(tf))

	// Team-fit may leave competencies empty; the team profile supplies them.
	tf.CompetencyIDs = nil
	assert.NoError(t, ValidateTemplate(tf))
}

func TestPassportMaxAge(t *testing.T) {
	assert.Equal(t, 180*24*time.Hour, Blueprint{}.PassportMaxAge())
	assert.Equal(t, 30*24*time.Hour, Blueprint{PassportMaxAgeDays: 30}.PassportMaxAge())
	assert.Equal(t, 180*24*time.Hour, Blueprint{PassportMaxAgeDays: -5}.PassportMaxAge())
}
