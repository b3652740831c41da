package store

import (
	"image"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vigia-labs/plategate/internal/pipeline"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "plategate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInsertAndRecentDetections(t *testing.T) {
	db := openTestDB(t)

	r := pipeline.Result{
		Plate:              "ABC123",
		Valid:              true,
		DetectorConfidence: 0.75,
		OCRConfidence:      0.6,
		PlateBox:           image.Rect(10, 20, 110, 60),
		VehicleBox:         image.Rect(10, 20, 110, 60),
		Location:           "entrada_principal",
		Authorized:         true,
		Timestamp:          time.Now().UTC(),
	}
	require.NoError(t, db.InsertDetection(r))

	got, err := db.RecentDetections(24, 100)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "ABC123", got[0].Plate)
	require.True(t, got[0].Valid)
	require.Equal(t, 0.75, got[0].DetectorConfidence)
	require.Equal(t, "[10,20,100,40]", got[0].PlateBox)
	require.Equal(t, "entrada_principal", got[0].Location)

	// The matching access_log row is written in the same call.
	var granted bool
	var plate string
	err = db.QueryRow(`SELECT plate_number, access_granted FROM access_log LIMIT 1`).
		Scan(&plate, &granted)
	require.NoError(t, err)
	require.Equal(t, "ABC123", plate)
	require.True(t, granted)
}

func TestRecentDetectionsExcludesOld(t *testing.T) {
	db := openTestDB(t)

	old := pipeline.Result{
		Plate:     "OLD999",
		Timestamp: time.Now().UTC().Add(-48 * time.Hour),
	}
	require.NoError(t, db.InsertDetection(old))

	got, err := db.RecentDetections(24, 100)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestIsAuthorized(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC()

	require.NoError(t, db.RegisterVehicle(Vehicle{
		Plate: "ABC123", OwnerName: "Ana", Authorized: true,
	}))
	require.NoError(t, db.RegisterVehicle(Vehicle{
		Plate: "XYZ789", Authorized: false,
	}))
	require.NoError(t, db.RegisterVehicle(Vehicle{
		Plate:      "CD1234",
		Authorized: true,
		ValidFrom:  now.Add(-30 * 24 * time.Hour),
		ValidUntil: now.Add(-24 * time.Hour), // expired yesterday
	}))

	tests := []struct {
		plate string
		want  bool
	}{
		{"ABC123", true},
		{"XYZ789", false},
		{"CD1234", false},
		{"NOP000", false},
	}
	for _, tt := range tests {
		got, err := db.IsAuthorized(tt.plate)
		require.NoError(t, err)
		require.Equal(t, tt.want, got, "plate %s", tt.plate)
	}
}

func TestRegisterVehicleUpsert(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.RegisterVehicle(Vehicle{Plate: "ABC123", Authorized: true}))
	require.NoError(t, db.RegisterVehicle(Vehicle{Plate: "ABC123", Authorized: false}))

	got, err := db.IsAuthorized("ABC123")
	require.NoError(t, err)
	require.False(t, got, "upsert did not replace the authorization flag")
}
