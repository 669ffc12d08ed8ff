package devices

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/wdir-license-backend/pkg/config"
	"github.com/angelmondragon/wdir-license-backend/pkg/db/dbtest"
	"github.com/angelmondragon/wdir-license-backend/pkg/db/models"
	"github.com/angelmondragon/wdir-license-backend/pkg/mailer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubMailer struct {
	sent []mailer.Message
	err  error
}

func (s *stubMailer) Send(_ context.Context, msg mailer.Message) error {
	s.sent = append(s.sent, msg)
	return s.err
}

type fixture struct {
	conn *gorm.DB
	svc  Service
	mail *stubMailer
	now  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		conn: dbtest.Open(t),
		mail: &stubMailer{},
		now:  time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC),
	}
	svc, err := NewService(ServiceParams{
		Repo:       NewRepository(f.conn),
		Mailer:     f.mail,
		Licensing:  config.LicensingConfig{MultiDeviceThreshold: 3, DeviceLookbackMonths: 12, AlertDeviceLimit: 5},
		AlertEmail: "ops@wdirapp.com",
		Now:        func() time.Time { return f.now },
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) seedLicense(t *testing.T) *models.License {
	t.Helper()
	license := &models.License{
		LicenseKey:       "ABCD-EFGH-JKLM-NPQR",
		Email:            "owner@example.com",
		CompanyName:      "Acme Inspections",
		InspectorName:    "Pat Doe",
		InspectorLicense: "INS-1",
		LicenseType:      "individual",
		IsActive:         true,
		CreatedAt:        f.now,
		UpdatedAt:        f.now,
	}
	require.NoError(t, f.conn.Create(license).Error)
	return license
}

func (f *fixture) bindAt(t *testing.T, license *models.License, deviceID string, at time.Time) {
	t.Helper()
	saved := f.now
	f.now = at
	_, err := f.svc.BindDevice(context.Background(), license, DeviceInfo{DeviceID: deviceID, DeviceModel: "iPad " + deviceID})
	require.NoError(t, err)
	f.now = saved
}

func (f *fixture) reload(t *testing.T, id any) *models.License {
	t.Helper()
	var license models.License
	require.NoError(t, f.conn.First(&license, "id = ?", id).Error)
	return &license
}

func TestRecomputeMultiDeviceFlagWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	license := f.seedLicense(t)

	f.bindAt(t, license, "old", f.now.AddDate(0, -13, 0))
	f.bindAt(t, license, "two-months", f.now.AddDate(0, -2, 0))
	f.bindAt(t, license, "one-month", f.now.AddDate(0, -1, 0))

	result, err := f.svc.RecomputeMultiDeviceFlag(ctx, license)
	require.NoError(t, err)
	assert.Equal(t, 2, result.RecentDevices)
	assert.False(t, result.Flagged)
	assert.Empty(t, f.mail.sent)

	f.bindAt(t, license, "today", f.now)
	result, err = f.svc.RecomputeMultiDeviceFlag(ctx, license)
	require.NoError(t, err)
	assert.Equal(t, 3, result.RecentDevices)
	assert.True(t, result.Flagged)
	assert.True(t, result.Alerted)
	require.Len(t, f.mail.sent, 1)
	assert.Equal(t, "ops@wdirapp.com", f.mail.sent[0].To)

	stored := f.reload(t, license.ID)
	assert.True(t, stored.FlaggedMultiDevice)
	assert.Equal(t, 3, stored.DeviceCount)

	f.bindAt(t, license, "fifth", f.now)
	result, err = f.svc.RecomputeMultiDeviceFlag(ctx, license)
	require.NoError(t, err)
	assert.Equal(t, 4, result.RecentDevices)
	assert.False(t, result.Alerted)
	assert.Len(t, f.mail.sent, 1)
}

func TestRecomputeAlertsOnceWithStaleLicense(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	license := f.seedLicense(t)
	for _, id := range []string{"a", "b", "c"} {
		f.bindAt(t, license, id, f.now)
	}

	first := *license
	second := *license
	r1, err := f.svc.RecomputeMultiDeviceFlag(ctx, &first)
	require.NoError(t, err)
	r2, err := f.svc.RecomputeMultiDeviceFlag(ctx, &second)
	require.NoError(t, err)

	assert.True(t, r1.Alerted)
	assert.False(t, r2.Alerted)
	assert.True(t, r2.Flagged)
	assert.Len(t, f.mail.sent, 1)
}

func TestRecomputeAlertFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	f.mail.err = errors.New("sendgrid down")
	license := f.seedLicense(t)
	for _, id := range []string{"a", "b", "c"} {
		f.bindAt(t, license, id, f.now)
	}

	result, err := f.svc.RecomputeMultiDeviceFlag(context.Background(), license)
	require.NoError(t, err)
	assert.True(t, result.Flagged)
	assert.True(t, f.reload(t, license.ID).FlaggedMultiDevice)
}

func TestBindDeviceRegistersAndActivates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	license := f.seedLicense(t)
	first := f.now.Add(-time.Hour)

	f.now = first
	device, err := f.svc.BindDevice(ctx, license, DeviceInfo{DeviceID: "dev-1", DeviceModel: "iPad Pro", OSVersion: "17.2"})
	require.NoError(t, err)
	assert.True(t, device.IsActive)
	assert.True(t, device.FirstActivatedAt.Equal(first))

	f.now = first.Add(30 * time.Minute)
	device, err = f.svc.BindDevice(ctx, license, DeviceInfo{DeviceID: "dev-1", OSVersion: "17.3"})
	require.NoError(t, err)
	assert.True(t, device.FirstActivatedAt.Equal(first))
	assert.True(t, device.LastUsedAt.Equal(f.now))
	require.NotNil(t, device.DeviceModel)
	assert.Equal(t, "iPad Pro", *device.DeviceModel)
	require.NotNil(t, device.OSVersion)
	assert.Equal(t, "17.3", *device.OSVersion)

	all, err := f.svc.ListDevices(ctx, license.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	stored := f.reload(t, license.ID)
	require.NotNil(t, stored.ActivatedAt)
	assert.True(t, stored.ActivatedAt.Equal(first))

	_, err = f.svc.BindDevice(ctx, license, DeviceInfo{DeviceID: "  "})
	require.Error(t, err)
}

func TestFindRegistrationsAndTouch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	license := f.seedLicense(t)
	f.bindAt(t, license, "dev-1", f.now.Add(-48*time.Hour))

	regs, err := f.svc.FindRegistrations(ctx, "dev-1")
	require.NoError(t, err)
	require.Len(t, regs, 1)

	require.NoError(t, f.svc.TouchDevice(ctx, regs[0].ID))
	regs, err = f.svc.FindRegistrations(ctx, "dev-1")
	require.NoError(t, err)
	assert.True(t, regs[0].LastUsedAt.Equal(f.now))

	none, err := f.svc.FindRegistrations(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, none)
}
