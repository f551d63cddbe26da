package output

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"libdb.so/beatglow/internal/led"
	"libdb.so/beatglow/internal/validate"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestMailboxLatestWins(t *testing.T) {
	m := newMailbox()

	_, ok := m.Take()
	assert.False(t, ok)

	m.Put(led.Red)
	m.Put(led.Green)
	m.Put(led.Blue)

	select {
	case <-m.Notify():
	default:
		t.Fatal("no notification after Put")
	}

	c, ok := m.Take()
	require.True(t, ok)
	assert.Equal(t, led.Blue, c)

	_, ok = m.Take()
	assert.False(t, ok)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Kind: SerialKind, Device: "/dev/ttyUSB0"}
	cfg.SetDefaults()
	assert.Equal(t, 115200, cfg.Baud)
	assert.Equal(t, 1, cfg.LEDs)
	assert.NoError(t, cfg.Validate())

	cfg = Config{Kind: WebsocketKind}
	cfg.SetDefaults()
	assert.Equal(t, "127.0.0.1:8765", cfg.Listen)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		field string
	}{
		{"kind", Config{Kind: "dmx"}, "kind"},
		{"serial device", Config{Kind: SerialKind}, "device"},
		{"leds", Config{Kind: SerialKind, Device: "/dev/ttyACM0", LEDs: 70000}, "leds"},
		{"listen", Config{Kind: WebsocketKind, Listen: "not an address"}, "listen"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.cfg.Validate()

			var verr *validate.Error
			require.ErrorAs(t, err, &verr)
			require.NotEmpty(t, verr.Fields)
			assert.Equal(t, test.field, verr.Fields[0].Field)
		})
	}
}

func TestNew(t *testing.T) {
	s, err := New(Config{Kind: LogKind}, testLogger)
	require.NoError(t, err)
	assert.Equal(t, "log", s.Name())

	s, err = New(Config{Kind: WebsocketKind, Listen: "127.0.0.1:0"}, testLogger)
	require.NoError(t, err)
	assert.Equal(t, "websocket:127.0.0.1:0", s.Name())

	s, err = New(Config{Kind: SerialKind, Device: "/dev/ttyUSB0", Baud: 9600, LEDs: 3}, testLogger)
	require.NoError(t, err)
	assert.Equal(t, "serial:/dev/ttyUSB0", s.Name())

	_, err = New(Config{Kind: "dmx"}, testLogger)
	assert.Error(t, err)
}

func TestLogFlushOnExit(t *testing.T) {
	l := NewLog(testLogger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l.SetColor(led.Red)
	assert.ErrorIs(t, l.Run(ctx), context.Canceled)
	assert.Equal(t, led.Red, l.last)

	_, ok := l.box.Take()
	assert.False(t, ok)
}
