package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	diag "github.com/coreman2200/pca9634/internal/diagnostics"
	"github.com/coreman2200/pca9634/internal/fade"
	"github.com/coreman2200/pca9634/model"
	"github.com/coreman2200/pca9634/pca9634"
	"github.com/coreman2200/pca9634/pca9634/pca9634test"
)

func newServer(t *testing.T) (*pca9634test.Chip, *State, *httptest.Server) {
	t.Helper()
	chip := pca9634test.NewChip(0x20)
	dev, err := pca9634.New(chip, &pca9634.Opts{Addr: 0x20})
	require.NoError(t, err)
	s := NewState(dev, "sim", zerolog.Nop())

	mux := http.NewServeMux()
	mux.HandleFunc("/control", s.HandleControlWS)
	mux.HandleFunc("/diag", s.HandleDiagWS)
	mux.HandleFunc("/health", s.HandleHealth)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return chip, s, srv
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, cmd Command) Reply {
	t.Helper()
	require.NoError(t, conn.WriteJSON(cmd))
	var rep Reply
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&rep))
	return rep
}

func TestControlBrightness(t *testing.T) {
	chip, _, srv := newServer(t)
	conn := dial(t, srv, "/control")

	rep := roundTrip(t, conn, Command{Op: "wake"})
	require.True(t, rep.OK, rep.Error)
	require.NotNil(t, rep.Status)
	assert.False(t, rep.Status.Sleeping)

	rep = roundTrip(t, conn, Command{Op: "brightness", Channel: 2, Value: 77})
	require.True(t, rep.OK, rep.Error)
	assert.Equal(t, uint16(77), rep.Status.Channels[2].Level)
	assert.Equal(t, byte(77), chip.Registers().PWM[2])
	assert.Equal(t, model.BrightnessControl, chip.Registers().Mode(2))
}

func TestControlEffects(t *testing.T) {
	chip, _, srv := newServer(t)
	conn := dial(t, srv, "/control")

	for _, cmd := range []Command{
		{Op: "brightness", Channel: 1, Value: 10},
		{Op: "blink", PeriodS: 1, Duty: 0.5},
		{Op: "effect", Channel: 1, On: true},
		{Op: "outputs", Trigger: "ack", Structure: "open-drain", WhenDisabled: "high-z"},
		{Op: "subaddr", Slot: 3, Addr: 0x44},
		{Op: "allcall", On: false},
	} {
		rep := roundTrip(t, conn, cmd)
		require.True(t, rep.OK, "%s: %s", cmd.Op, rep.Error)
	}

	r := chip.Registers()
	assert.True(t, r.Blinking())
	assert.Equal(t, model.BrightnessWithDimBlink, r.Mode(1))
	assert.Equal(t, model.OnAck, r.Trigger())
	assert.True(t, r.SubAddressEnabled(3))
	assert.Equal(t, uint8(0x44), r.SubAddress(3))
	assert.False(t, r.AllCallEnabled())
}

func TestControlErrors(t *testing.T) {
	chip, _, srv := newServer(t)
	control := dial(t, srv, "/control")
	diags := dial(t, srv, "/diag")
	// Let the diag client register before anything is pushed.
	time.Sleep(50 * time.Millisecond)

	rep := roundTrip(t, control, Command{Op: "explode"})
	assert.False(t, rep.OK)
	assert.Contains(t, rep.Error, "unknown op")

	var d diag.Diagnostic
	require.NoError(t, diags.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, diags.ReadJSON(&d))
	assert.Equal(t, diag.CmdUnknown, d.Code)

	chip.Err = pca9634test.ErrNACK
	rep = roundTrip(t, control, Command{Op: "sleep"})
	assert.False(t, rep.OK)
	assert.Nil(t, rep.Status)
	require.NoError(t, diags.ReadJSON(&d))
	assert.Equal(t, diag.BusTx, d.Code)

	rep = roundTrip(t, control, Command{Op: "oe", On: true})
	assert.False(t, rep.OK)
	assert.Contains(t, rep.Error, "output enable")
}

func TestControlFade(t *testing.T) {
	chip, s, srv := newServer(t)
	conn := dial(t, srv, "/control")
	roundTrip(t, conn, Command{Op: "wake"})

	rep := roundTrip(t, conn, Command{Op: "fade"})
	assert.False(t, rep.OK, "no program loaded yet")

	prog := &fade.Program{Clips: []fade.Clip{{
		Name:      "ramp",
		DurationS: 2,
		Levels:    map[int]fade.Envelope{4: {Keys: []fade.Keyframe{{T: 0, V: 0}, {T: 2, V: 200}}}},
	}}}
	rep = roundTrip(t, conn, Command{Op: "fade", Program: prog})
	require.True(t, rep.OK, rep.Error)
	assert.Equal(t, fade.Running, rep.Fade)

	s.Player.With(func(p *fade.Player) { p.Tick(1) })
	assert.Equal(t, byte(100), chip.Registers().PWM[4])

	rep = roundTrip(t, conn, Command{Op: "stop"})
	assert.Equal(t, fade.Idle, rep.Fade)
}

func TestHealth(t *testing.T) {
	chip, _, srv := newServer(t)

	res, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	var body struct {
		Driver string       `json:"driver"`
		Status model.Status `json:"status"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, "sim", body.Driver)
	assert.True(t, body.Status.Sleeping)
	assert.Empty(t, body.Status.SubAddresses)
	assert.Equal(t, 0x70, body.Status.AllCall)

	chip.Err = pca9634test.ErrNACK
	res2, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	res2.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, res2.StatusCode)
}

func TestControlTestPattern(t *testing.T) {
	chip, s, srv := newServer(t)
	conn := dial(t, srv, "/control")

	rep := roundTrip(t, conn, Command{Op: "test", Pattern: "plane_z"})
	assert.False(t, rep.OK)
	assert.Equal(t, fade.Idle, rep.Fade)

	rep = roundTrip(t, conn, Command{Op: "test", Pattern: fade.AllOn})
	require.True(t, rep.OK, rep.Error)
	assert.Equal(t, fade.Running, rep.Fade)
	for ch := 0; ch < 8; ch++ {
		assert.Equal(t, model.FullyOn, chip.Registers().Mode(ch), "channel %d", ch)
	}

	s.Player.With(func(p *fade.Player) { p.Tick(1.2) })
	assert.Equal(t, uint16(0), chip.Registers().Level(5))
}
