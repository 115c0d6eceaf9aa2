package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allbin/go-valve"
	"github.com/allbin/go-valve/internal/devicetest"
	"github.com/allbin/go-valve/sequence"
)

func newSession(t *testing.T, dev *devicetest.Device, opens *int, extra ...Option) *Session {
	t.Helper()
	opts := append([]Option{WithControllerOptions(
		valve.WithSettleDelay(0),
		valve.WithPositions("ABC"),
		valve.WithOpener(func(string, valve.PortSettings) (valve.Port, error) {
			if opens != nil {
				*opens++
			}
			return dev, nil
		}),
	)}, extra...)
	s, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConnectAndCommand(t *testing.T) {
	s := newSession(t, devicetest.NewValve("ABC"), nil)
	require.NoError(t, s.Connect(context.Background(), "/dev/ttyACM0"))
	assert.True(t, s.IsConnected())
	assert.Equal(t, "/dev/ttyACM0", s.PortName())

	resp, err := s.SendCommand('B')
	require.NoError(t, err)
	assert.Equal(t, "OK:B", resp.Line)

	resp, err = s.QueryState()
	require.NoError(t, err)
	assert.Equal(t, "STATE:B", resp.Line)
}

func TestStartRequiresConnection(t *testing.T) {
	s := newSession(t, devicetest.NewValve("ABC"), nil)
	require.NoError(t, s.Sequence().LoadDemo())
	assert.ErrorIs(t, s.Start(false), valve.ErrNotConnected)
}

func TestProbeThenConnectReusesPort(t *testing.T) {
	opens := 0
	dev := devicetest.NewValve("ABC")
	s := newSession(t, dev, &opens)

	matched, detail := s.Probe(context.Background(), "/dev/ttyACM0")
	require.True(t, matched)
	assert.Equal(t, "STATE:A", detail)

	require.NoError(t, s.Connect(context.Background(), "/dev/ttyACM0"))
	assert.Equal(t, 1, opens, "probed transport is adopted, not reopened")
	assert.False(t, dev.Closed())

	_, err := s.SetPosition(valve.PositionCenter)
	require.NoError(t, err)
}

func TestProbeOtherPortIsReleased(t *testing.T) {
	probed := devicetest.NewValve("AB")
	other := devicetest.NewValve("AB")
	devices := map[string]*devicetest.Device{"/dev/ttyACM0": probed, "/dev/ttyUSB0": other}

	s, err := New(WithControllerOptions(
		valve.WithSettleDelay(0),
		valve.WithOpener(func(name string, _ valve.PortSettings) (valve.Port, error) {
			return devices[name], nil
		}),
	))
	require.NoError(t, err)
	defer s.Close()

	matched, _ := s.Probe(context.Background(), "/dev/ttyACM0")
	require.True(t, matched)
	require.NoError(t, s.Connect(context.Background(), "/dev/ttyUSB0"))
	assert.True(t, probed.Closed(), "unused probe transport must be closed")
	assert.Equal(t, "/dev/ttyUSB0", s.PortName())
}

func TestDetectKeepsHandshakePort(t *testing.T) {
	opens := 0
	dev := devicetest.NewValve("AB")
	s := newSession(t, dev, &opens, WithControllerOptions(valve.WithEnumerator(func() ([]valve.PortCandidate, error) {
		return []valve.PortCandidate{{Name: "/dev/ttyACM0", Product: "Arduino Uno", VID: 0x2341, IsUSB: true}}, nil
	})))

	ports, err := s.DiscoverPorts()
	require.NoError(t, err)
	require.Len(t, ports, 1)

	d, err := s.Detect(context.Background())
	require.NoError(t, err)
	require.Equal(t, valve.ModeHandshake, d.Mode)

	require.NoError(t, s.Connect(context.Background(), d.Candidate.Name))
	assert.Equal(t, 1, opens)
}

// TestDisconnectDuringRun checks the worker is joined before the transport is
// closed, so nothing is written to a closed port.
func TestDisconnectDuringRun(t *testing.T) {
	dev := devicetest.NewValve("ABC")
	s := newSession(t, dev, nil, WithSequenceOptions(sequence.WithNeutral(valve.PositionCenter)))
	require.NoError(t, s.Connect(context.Background(), "/dev/ttyACM0"))

	for _, p := range []valve.Position{'A', 'B'} {
		_, err := s.Sequence().AppendStep(sequence.Step{Position: p, Duration: sequence.MinDuration})
		require.NoError(t, err)
	}
	require.NoError(t, s.Start(true))
	require.Eventually(t, func() bool { return len(dev.Writes()) >= 3 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Disconnect())
	writes := len(dev.Writes())

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 0, dev.WritesAfterClose())
	assert.Equal(t, writes, len(dev.Writes()))
	assert.True(t, dev.Closed())

	st := s.Status()
	assert.Equal(t, sequence.Idle, st.State)
	require.NotNil(t, st.Last)
	assert.Equal(t, sequence.Stopped, st.Last.Outcome)
	assert.Equal(t, sequence.CauseDisconnect, st.Last.Cause)
}

func TestConnectRefusedWhileRunning(t *testing.T) {
	dev := devicetest.NewValve("ABC")
	s := newSession(t, dev, nil)
	require.NoError(t, s.Connect(context.Background(), "/dev/ttyACM0"))
	_, err := s.Sequence().AppendStep(sequence.Step{Position: 'A', Duration: 10 * time.Second})
	require.NoError(t, err)

	require.NoError(t, s.Start(false))
	assert.ErrorIs(t, s.Connect(context.Background(), "/dev/ttyACM1"), sequence.ErrRunning)
	s.Stop()
}

func TestHardwareEventsReachSession(t *testing.T) {
	dev := devicetest.NewValve("AB")
	s := newSession(t, dev, nil)
	require.NoError(t, s.Connect(context.Background(), "/dev/ttyACM0"))

	got := make(chan valve.Position, 1)
	unsubscribe := s.OnHardwareEvent(func(p valve.Position) { got <- p })
	defer unsubscribe()

	dev.Emit("BTN:B")
	select {
	case p := <-got:
		assert.Equal(t, valve.PositionB, p)
	case <-time.After(time.Second):
		t.Fatal("hardware event not delivered")
	}
	require.Eventually(t, func() bool { return len(s.DrainHardwareEvents()) == 1 }, time.Second, 5*time.Millisecond)
}
