package fleet

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/busalloc/core/model"
)

func TestDefaultRegistry(t *testing.T) {
	r := NewDefaultRegistry()
	assert.Len(t, r.Routes(), 2)
	assert.Len(t, r.Buses(), 3)

	rt, ok := r.RouteForStop("F005")
	require.True(t, ok)
	assert.Equal(t, "R002", rt.ID)
	_, ok = r.RouteForStop("F999")
	assert.False(t, ok)
}

func TestFindAvailableBusFallbackChain(t *testing.T) {
	seed := Seed{
		Routes: []model.Route{
			{ID: "R1", Name: "one", StopIDs: []string{"S1", "S2"}},
			{ID: "R2", Name: "two", StopIDs: []string{"S3"}},
		},
		Buses: []model.Bus{
			{ID: "busy-r2", RouteID: "R2", Status: model.BusInService, CurrentPassengers: 5},
			{ID: "busy-r1-full", RouteID: "R1", Status: model.BusInService, CurrentPassengers: 40},
			{ID: "busy-r1-light", RouteID: "R1", Status: model.BusInService, CurrentPassengers: 10},
			{ID: "free-r2", RouteID: "R2", Status: model.BusAvailable},
			{ID: "free-r1", RouteID: "R1", Status: model.BusAvailable},
			{ID: "free-at-s2", RouteID: "R2", Status: model.BusAvailable, StopID: "S2"},
			{ID: "shop", RouteID: "R1", Status: model.BusMaintenance, StopID: "S2"},
		},
	}
	r, err := NewMemoryRegistry(seed)
	require.NoError(t, err)

	pick := func(stop string) string {
		b, ok := r.FindAvailableBus(stop)
		if !ok {
			return ""
		}
		return b.ID
	}
	park := func(id string) {
		_, _, err := r.Reassign(id, "R2", "S3")
		require.NoError(t, err)
	}

	assert.Equal(t, "free-at-s2", pick("S2"))
	assert.Equal(t, "free-r1", pick("S1"))
	park("free-at-s2")
	assert.Equal(t, "free-r1", pick("S2"))
	park("free-r1")
	assert.Equal(t, "free-r2", pick("S2"))
	park("free-r2")
	assert.Equal(t, "busy-r1-light", pick("S2"))
	// parked buses are in service and empty; ties keep seed order
	assert.Equal(t, "free-r2", pick("unknown-stop"))
}

func TestFindAvailableBusNoneAvailable(t *testing.T) {
	r, err := NewMemoryRegistry(Seed{
		Routes: []model.Route{{ID: "R1", StopIDs: []string{"S1"}}},
		Buses:  []model.Bus{{ID: "B1", RouteID: "R1", Status: model.BusMaintenance}},
	})
	require.NoError(t, err)
	_, ok := r.FindAvailableBus("S1")
	assert.False(t, ok)
}

func TestReassign(t *testing.T) {
	r := NewDefaultRegistry()
	before, after, err := r.Reassign("B003", "R001", "F001")
	require.NoError(t, err)
	assert.Equal(t, "R002", before.RouteID)
	assert.Equal(t, model.BusAvailable, before.Status)
	assert.Equal(t, "R001", after.RouteID)
	assert.Equal(t, "Bole - Merkato", after.RouteName)
	assert.Equal(t, "F001", after.StopID)
	assert.Equal(t, model.BusInService, after.Status)

	got, ok := r.Bus("B003")
	require.True(t, ok)
	assert.Equal(t, after, got)
	routes := r.Routes()
	assert.Equal(t, []string{"B001", "B002", "B003"}, routes[0].BusIDs)
	assert.Empty(t, routes[1].BusIDs)

	_, _, err = r.Reassign("nope", "R001", "F001")
	assert.ErrorIs(t, err, ErrBusNotFound)
	_, _, err = r.Reassign("B001", "R999", "F001")
	assert.ErrorIs(t, err, ErrRouteNotFound)
}

func TestSeedValidate(t *testing.T) {
	tests := []struct {
		name string
		seed Seed
	}{
		{"duplicate route", Seed{Routes: []model.Route{{ID: "R"}, {ID: "R"}}}},
		{"duplicate bus", Seed{Buses: []model.Bus{{ID: "B", Status: model.BusAvailable}, {ID: "B", Status: model.BusAvailable}}}},
		{"unknown route", Seed{Buses: []model.Bus{{ID: "B", RouteID: "R", Status: model.BusAvailable}}}},
		{"bad status", Seed{Buses: []model.Bus{{ID: "B", Status: "parked"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMemoryRegistry(tt.seed)
			assert.Error(t, err)
		})
	}
}

func TestDecodeSeed(t *testing.T) {
	yml := `
routes:
  - id: R9
    name: Ring
    stop_ids: [S1, S2]
    bus_ids: [B9]
buses:
  - id: B9
    route_id: R9
    status: available
    capacity: 30
`
	s, err := DecodeSeed(strings.NewReader(yml), "yaml")
	require.NoError(t, err)
	require.Len(t, s.Routes, 1)
	assert.Equal(t, []string{"S1", "S2"}, s.Routes[0].StopIDs)
	require.Len(t, s.Buses, 1)
	assert.Equal(t, 30, s.Buses[0].Capacity)

	js := `{"routes":[{"id":"R9","name":"Ring","fermataIds":["S1"]}],"buses":[{"id":"B9","routeId":"R9","status":"in_service"}]}`
	s, err = DecodeSeed(strings.NewReader(js), "json")
	require.NoError(t, err)
	assert.Equal(t, model.BusInService, s.Buses[0].Status)

	_, err = DecodeSeed(strings.NewReader(""), "toml")
	assert.Error(t, err)
}
