package licenses

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/wdir-license-backend/pkg/db/dbtest"
	"github.com/angelmondragon/wdir-license-backend/pkg/db/models"
)

func TestRepositoryListWithDevicesPagesByID(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()

	for i, count := range []int{2, 0, 1, 4} {
		require.NoError(t, repo.Create(ctx, &models.License{
			LicenseKey:       fmt.Sprintf("AAAA-BBBB-CCCC-DDD%d", i+2),
			Email:            fmt.Sprintf("inspector%d@example.com", i),
			CompanyName:      "Acme",
			InspectorName:    "Ada",
			InspectorLicense: "WDI-1",
			LicenseType:      "individual",
			IsActive:         true,
			DeviceCount:      count,
		}))
	}

	first, err := repo.ListWithDevices(ctx, uuid.Nil, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Less(t, first[0].ID.String(), first[1].ID.String())

	rest, err := repo.ListWithDevices(ctx, first[1].ID, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.NotZero(t, rest[0].DeviceCount)
}
