package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeaconRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   Beacon
	}{
		{"sink origin", Beacon{AdvParent: 1, AdvHops: 1, AdvSeq: 1}},
		{"relay", Beacon{AdvParent: 7, AdvHops: 3, AdvSeq: 65535}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UnmarshalBeacon(tt.in.Marshal())
			require.NoError(t, err)
			assert.Equal(t, tt.in, got)
		})
	}
}

func TestBeaconUnmarshalBadLength(t *testing.T) {
	_, err := UnmarshalBeacon([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestDataRoundTrip(t *testing.T) {
	d := Data{Src: 3, Hops: 2, TempRaw: 6000, DataID: 42}
	got, err := UnmarshalData(d.Marshal())
	require.NoError(t, err)
	assert.Equal(t, d, got)
}

func TestAckRoundTrip(t *testing.T) {
	a := Ack{AckFrom: 2, DataID: 42, OK: 1}
	got, err := UnmarshalAck(a.Marshal())
	require.NoError(t, err)
	assert.Equal(t, a, got)
}

func TestWireLengths(t *testing.T) {
	assert.Len(t, (Beacon{}).Marshal(), 6)
	assert.Len(t, (Data{}).Marshal(), 8)
	assert.Len(t, (Ack{}).Marshal(), 5)
}
