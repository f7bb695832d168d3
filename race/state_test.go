package race

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/st-keller/namerace/schedule"
	"github.com/st-keller/namerace/wire"
)

func TestTransitions(t *testing.T) {
	allowed := [][2]State{
		{StateScheduled, StateConnecting},
		{StateScheduled, StateAbandoned},
		{StateScheduled, StateFailed},
		{StateConnecting, StateStaged},
		{StateConnecting, StateFailed},
		{StateStaged, StateTransmitted},
		{StateStaged, StateAbandoned},
		{StateStaged, StateFailed},
		{StateTransmitted, StateAwaitingResponse},
		{StateAwaitingResponse, StateCompleted},
		{StateAwaitingResponse, StateFailed},
	}
	for _, tr := range allowed {
		assert.NoError(t, transition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}

	forbidden := [][2]State{
		{StateConnecting, StateAbandoned},
		{StateTransmitted, StateAbandoned},
		{StateScheduled, StateStaged},
		{StateCompleted, StateScheduled},
		{StateFailed, StateConnecting},
		{StateAbandoned, StateConnecting},
		{StateTransmitted, StateTransmitted},
	}
	for _, tr := range forbidden {
		assert.Error(t, transition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(StateCompleted))
	assert.True(t, IsTerminal(StateFailed))
	assert.True(t, IsTerminal(StateAbandoned))
	assert.False(t, IsTerminal(StateStaged))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindAbandoned, classify("x", fmt.Errorf("w: %w", schedule.ErrAlreadyReleased)).Kind)
	assert.Equal(t, KindCanceled, classify("x", context.Canceled).Kind)
	assert.Equal(t, KindTimeout, classify("x", context.DeadlineExceeded).Kind)
	assert.Equal(t, KindProtocol, classify("x", fmt.Errorf("%w: junk", wire.ErrMalformedStatus)).Kind)
	assert.Equal(t, KindTransport, classify("x", errors.New("reset")).Kind)

	err := classify("dial", errors.New("refused"))
	assert.Equal(t, "transport dial: refused", err.Error())
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestModes(t *testing.T) {
	assert.Equal(t, 2, Regular.Attempts())
	assert.Equal(t, 6, Catalog.Attempts())
	assert.Equal(t, "catalog", Catalog.String())
	assert.Panics(t, func() { Mode(9).Attempts() })

	m, err := ParseMode("GC")
	require.NoError(t, err)
	assert.Equal(t, Catalog, m)
	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, Regular, m)
	_, err = ParseMode("turbo")
	assert.Error(t, err)

	req, err := Regular.Request(wire.DefaultHost, "Dream", "t")
	require.NoError(t, err)
	assert.Contains(t, string(req.Bytes()), "PUT /minecraft/profile/name/Dream")
	_, err = Mode(9).Request(wire.DefaultHost, "Dream", "t")
	assert.Error(t, err)
}
