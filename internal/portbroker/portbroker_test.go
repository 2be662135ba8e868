package portbroker

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quicklaunch/internal/models"
)

type fakeConfigReader struct {
	doc *models.ConfigDocument
}

func (f *fakeConfigReader) Snapshot() *models.ConfigDocument { return f.doc }

func newDoc(apps []models.AppConfig, reserved models.ReservedPorts) *models.ConfigDocument {
	if reserved == nil {
		reserved = models.ReservedPorts{}
	}
	return &models.ConfigDocument{Apps: apps, ReservedPorts: reserved}
}

func TestCheckReservedPortUnavailable(t *testing.T) {
	doc := newDoc(nil, models.ReservedPorts{8000: "QuickLaunch supervisor"})
	b := New(&fakeConfigReader{doc: doc}, nil)

	result := b.Check(8000, "")
	assert.False(t, result.Available, "expected a reserved port to be unavailable")
	assert.Equal(t, "reserved", result.RegistryReason)
}

func TestCheckAppOwnedPortUnavailableUnlessExcluded(t *testing.T) {
	doc := newDoc([]models.AppConfig{{ID: "web", Port: 5173}}, nil)
	b := New(&fakeConfigReader{doc: doc}, nil)

	result := b.Check(5173, "")
	assert.False(t, result.Available, "expected an app-owned port to be unavailable for a different caller")
	assert.Equal(t, "app", result.RegistryReason)
	assert.Equal(t, "web", result.RegistryUsedBy)

	result = b.Check(5173, "web")
	assert.True(t, result.RegistryAvailable, "expected the owning app to be excluded from its own port conflict")
}

func TestCheckDetectsLiveSystemOccupancy(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	doc := newDoc(nil, nil)
	b := New(&fakeConfigReader{doc: doc}, nil)

	result := b.Check(port, "")
	assert.True(t, result.SystemInUse, "expected SystemInUse=true for a port actually bound")
	assert.False(t, result.Available, "expected Available=false for a port actually bound")
}

func TestSuggestSkipsReservedAndAppPorts(t *testing.T) {
	doc := newDoc(
		[]models.AppConfig{{ID: "web", Port: 5174}},
		models.ReservedPorts{5175: "reserved"},
	)
	b := New(&fakeConfigReader{doc: doc}, nil)

	got, err := b.Suggest(5174)
	require.NoError(t, err)
	assert.Equal(t, 5176, got)
}

func TestSuggestDefaultsBasePort(t *testing.T) {
	doc := newDoc(nil, nil)
	b := New(&fakeConfigReader{doc: doc}, nil)

	got, err := b.Suggest(0)
	require.NoError(t, err)
	assert.Equal(t, 5174, got, "Suggest(0) should default to base port 5174")
}

func TestIdentifyAndFreePortWithoutPlatformSupport(t *testing.T) {
	b := New(&fakeConfigReader{doc: newDoc(nil, nil)}, nil)

	_, ok := b.Identify(5173)
	assert.False(t, ok, "expected Identify to report false with no platform identifier")
	assert.Error(t, b.FreePort(5173), "expected FreePort to fail with no platform identifier")
}

type fakeIdentifier struct {
	pid  int
	name string
	ok   bool
	kill error
}

func (f *fakeIdentifier) Identify(port int) (int, string, bool) { return f.pid, f.name, f.ok }
func (f *fakeIdentifier) Kill(pid int) error                    { return f.kill }

func TestFreePortKillsIdentifiedProcess(t *testing.T) {
	ident := &fakeIdentifier{pid: 4242, name: "node", ok: true}
	b := New(&fakeConfigReader{doc: newDoc(nil, nil)}, ident)

	assert.NoError(t, b.FreePort(5173))
}
