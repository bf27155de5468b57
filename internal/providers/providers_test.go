package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metriq-ai/metriq/internal/model"
)

func TestONetProfile(t *testing.T) {
	compID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/occupations/15-1252.00/profile", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"occupation_code": "15-1252.00",
			"title": "Software Developers",
			"required_levels": {"` + compID.String() + `": 4.5},
			"importance": {"` + compID.String() + `": 3}
		}`))
	}))
	defer srv.Close()

	client := NewONetClient(srv.URL, time.Second)
	profile, err := client.Profile(context.Background(), "15-1252.00")
	require.NoError(t, err)
	assert.Equal(t, "15-1252.00", profile.OccupationCode)
	assert.Equal(t, "Software Developers", profile.Title)
	assert.InDelta(t, 4.5, profile.RequiredLevels[compID], 1e-9)
	assert.InDelta(t, 3, profile.Importance[compID], 1e-9)
}

func TestONetProfileFillsMissingCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"title": "Software Developers"}`))
	}))
	defer srv.Close()

	client := NewONetClient(srv.URL, time.Second)
	profile, err := client.Profile(context.Background(), "15-1252.00")
	require.NoError(t, err)
	assert.Equal(t, "15-1252.00", profile.OccupationCode)
}

func TestONetProfileUnknownOccupation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client := NewONetClient(srv.URL, time.Second)
	_, err := client.Profile(context.Background(), "99-9999.99")
	require.Error(t, err)
	assert.Equal(t, model.CodePreconditionFailed, model.CodeOf(err))
}

func TestONetProfileUnconfigured(t *testing.T) {
	client := NewONetClient("", time.Second)
	_, err := client.Profile(context.Background(), "15-1252.00")
	require.Error(t, err)
	assert.Equal(t, model.CodePreconditionFailed, model.CodeOf(err))
}

func TestTeamsProfile(t *testing.T) {
	teamID := uuid.New()
	compID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/teams/"+teamID.String()+"/profile", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"member_count": 4,
			"saturation": {"` + compID.String() + `": 0.2},
			"undersaturated": ["` + compID.String() + `"]
		}`))
	}))
	defer srv.Close()

	client := NewTeamsClient(srv.URL, time.Second)
	profile, err := client.Profile(context.Background(), teamID)
	require.NoError(t, err)
	assert.Equal(t, teamID, profile.TeamID, "missing team id falls back to the requested one")
	assert.Equal(t, 4, profile.MemberCount)
	assert.InDelta(t, 0.2, profile.Saturation[compID], 1e-9)
	assert.Equal(t, []uuid.UUID{compID}, profile.Undersaturated)
}

func TestTeamsProfileUnknownTeam(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client := NewTeamsClient(srv.URL, time.Second)
	_, err := client.Profile(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, model.CodePreconditionFailed, model.CodeOf(err))
}
