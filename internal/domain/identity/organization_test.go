package identity

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrganization(t *testing.T) {
	t.Run("applies default settings", func(t *testing.T) {
		org, err := NewOrganization("org_123", "Maple Street Rentals", DefaultOrganizationSettings())

		require.NoError(t, err)
		assert.Equal(t, "org_123", org.ID)
		assert.Equal(t, "Maple Street Rentals", org.Name)
		assert.Equal(t, "America/New_York", org.Settings.Timezone)
		assert.Equal(t, "USD", org.Settings.Currency)
		assert.True(t, decimal.NewFromInt(50).Equal(org.Settings.LateFeeAmount))
		assert.Equal(t, 5, org.Settings.GracePeriodDays)

		events := org.GetDomainEvents()
		require.Len(t, events, 1)
		assert.Equal(t, EventTypeOrganizationCreated, events[0].EventType())
		assert.Equal(t, "org_123", events[0].OrgID())
	})

	t.Run("empty name falls back to id", func(t *testing.T) {
		org, err := NewOrganization("org_123", "  ", DefaultOrganizationSettings())

		require.NoError(t, err)
		assert.Equal(t, "org_123", org.Name)
	})

	t.Run("rejects empty id", func(t *testing.T) {
		_, err := NewOrganization("", "Name", DefaultOrganizationSettings())
		assert.Error(t, err)
	})

	t.Run("rejects unknown timezone", func(t *testing.T) {
		s := DefaultOrganizationSettings()
		s.Timezone = "Mars/Olympus"
		_, err := NewOrganization("org_1", "Name", s)
		assert.Error(t, err)
	})

	t.Run("rejects negative late fee", func(t *testing.T) {
		s := DefaultOrganizationSettings()
		s.LateFeeAmount = decimal.NewFromInt(-1)
		_, err := NewOrganization("org_1", "Name", s)
		assert.Error(t, err)
	})

	t.Run("normalizes currency", func(t *testing.T) {
		s := DefaultOrganizationSettings()
		s.Currency = "cad"
		org, err := NewOrganization("org_1", "Name", s)
		require.NoError(t, err)
		assert.Equal(t, "CAD", org.Settings.Currency)
	})
}

func TestOrganization_Rename(t *testing.T) {
	org, err := NewOrganization("org_1", "Old", DefaultOrganizationSettings())
	require.NoError(t, err)
	org.ClearDomainEvents()

	require.NoError(t, org.Rename("New"))
	assert.Equal(t, "New", org.Name)
	require.Len(t, org.GetDomainEvents(), 1)
	assert.Equal(t, EventTypeOrganizationUpdated, org.GetDomainEvents()[0].EventType())

	assert.Error(t, org.Rename(""))
}
