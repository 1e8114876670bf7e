package protocol

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Schema{ID: 10, Name: "Kitchen", Slots: []ArgSlot{
		{Name: "flag", Tag: TagBool},
		{Name: "small", Tag: TagInt16},
		{Name: "medium", Tag: TagInt32},
		{Name: "large", Tag: TagInt64},
		{Name: "ratio", Tag: TagFloat32},
		{Name: "precise", Tag: TagFloat64},
		{Name: "label", Tag: TagString},
		{Name: "blob", Tag: TagBytes},
		{Name: "path", Tag: TagArray | TagInt32},
		{Name: "weights", Tag: TagArray | TagFloat64},
	}}))

	env, err := r.NewEnvelope("Kitchen")
	require.NoError(t, err)
	require.NoError(t, env.Set("flag", true))
	require.NoError(t, env.Set("small", int16(-7)))
	require.NoError(t, env.Set("medium", int32(123456)))
	require.NoError(t, env.Set("large", int64(-9876543210)))
	require.NoError(t, env.Set("ratio", float32(0.5)))
	require.NoError(t, env.Set("precise", 3.141592653589793))
	require.NoError(t, env.Set("label", "héllo"))
	require.NoError(t, env.Set("blob", []byte{0x00, 0xFF, 0x7F}))
	require.NoError(t, env.Set("path", []int32{1, -2, 3}))
	require.NoError(t, env.Set("weights", []float64{0.25, -1.5}))

	encoded, err := Encode(env)
	require.NoError(t, err)

	decoded, err := Decode(r, encoded)
	require.NoError(t, err)
	assert.Equal(t, env.ID(), decoded.ID())

	for _, slot := range env.Schema().Slots {
		want, err := env.Get(slot.Name)
		require.NoError(t, err)
		got, err := decoded.Get(slot.Name)
		require.NoError(t, err)
		assert.Equal(t, want, got, slot.Name)
	}
}

func TestEncodeIncompleteEnvelope(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Schema{ID: 1, Name: "Echo", Slots: []ArgSlot{
		{Name: "text", Tag: TagString},
	}}))

	env, err := r.NewEnvelope("Echo")
	require.NoError(t, err)

	_, err = Encode(env)
	assert.ErrorIs(t, err, ErrIncompleteArgs)
}

// The concrete scenario: Echo(text="hi") survives the wire, and an
// unregistered id 99 decodes to an InvalidMessage naming 99.
func TestEchoScenario(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Schema{ID: 1, Name: "Echo", Slots: []ArgSlot{
		{Name: "text", Tag: TagString},
	}}))

	env, err := r.NewEnvelope("Echo")
	require.NoError(t, err)
	require.NoError(t, env.Set("text", "hi"))

	encoded, err := Encode(env)
	require.NoError(t, err)

	decoded, err := Decode(r, encoded)
	require.NoError(t, err)
	text, err := decoded.String("text")
	require.NoError(t, err)
	assert.Equal(t, "hi", text)

	// Unknown id yields the sentinel, not an error.
	unknown := make([]byte, 4)
	binary.BigEndian.PutUint16(unknown[0:2], 99)
	binary.BigEndian.PutUint16(unknown[2:4], 0)

	sentinel, err := Decode(r, unknown)
	require.NoError(t, err)
	assert.Equal(t, NameInvalidMessage, sentinel.Name())
	id, err := sentinel.Int32("id")
	require.NoError(t, err)
	assert.Equal(t, int32(99), id)
}

func TestDecodeMalformed(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Schema{ID: 1, Name: "Echo", Slots: []ArgSlot{
		{Name: "text", Tag: TagString},
	}}))

	env, _ := r.NewEnvelope("Echo")
	require.NoError(t, env.Set("text", "payload"))
	good, err := Encode(env)
	require.NoError(t, err)

	tests := []struct {
		name string
		buf  []byte
	}{
		{"empty", nil},
		{"short header", good[:3]},
		{"truncated value", good[:len(good)-3]},
		{"lying length prefix", func() []byte {
			b := append([]byte(nil), good...)
			// Inflate the string length past the end of the buffer.
			binary.BigEndian.PutUint16(b[5:7], 500)
			return b
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(r, tt.buf); err == nil {
				t.Errorf("Decode() succeeded on %s", tt.name)
			}
		})
	}
}

func TestDecodeTagMismatch(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Schema{ID: 1, Name: "Echo", Slots: []ArgSlot{
		{Name: "text", Tag: TagString},
	}}))

	env, _ := r.NewEnvelope("Echo")
	require.NoError(t, env.Set("text", "x"))
	buf, err := Encode(env)
	require.NoError(t, err)

	buf[4] = byte(TagInt64) // overwrite the wire tag

	_, err = Decode(r, buf)
	assert.ErrorIs(t, err, ErrTagMismatch)
}

func TestDecodeArgCountMismatch(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Schema{ID: 1, Name: "Echo", Slots: []ArgSlot{
		{Name: "text", Tag: TagString},
	}}))

	buf := make([]byte, 4)
	binary.BigEndian.PutUint16(buf[0:2], 1)
	binary.BigEndian.PutUint16(buf[2:4], 3)

	_, err := Decode(r, buf)
	assert.ErrorIs(t, err, ErrArgCount)
}
