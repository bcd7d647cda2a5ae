package dictionary

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodecRoundTrip(t *testing.T) {
	d := New()
	ids := d.Register("orders", []string{"name", "value", "tag", "vec"})

	doc := Document{
		"name":  VString("alice"),
		"value": VInt64(10),
		"tag":   VString("a"),
		"vec":   VVector([]float32{1, 2, 3, 4}),
	}
	id := DocID{Kind: DocIDString, Bytes: []byte("order-1")}

	encoded, err := Encode(doc, id, toForward(ids))
	require.NoError(t, err)

	reverse := d.Snapshot()
	reverseByID := make(map[ID]string, len(reverse))
	for name, fid := range reverse {
		reverseByID[fid] = name
	}

	decoded, decodedID, err := Decode(encoded, reverseByID)
	require.NoError(t, err)
	require.Equal(t, id, decodedID)
	require.Equal(t, doc["name"], decoded["name"])
	require.Equal(t, doc["value"], decoded["value"])
	require.Equal(t, doc["tag"], decoded["tag"])
	require.Equal(t, doc["vec"], decoded["vec"])
}

func TestEncodeFailsOnUnknownField(t *testing.T) {
	doc := Document{"missing": VString("x")}
	_, err := Encode(doc, DocID{Kind: DocIDString}, map[string]ID{})
	require.Error(t, err)
}

func TestDecodeFailsOnUnknownID(t *testing.T) {
	d := New()
	ids := d.Register("c", []string{"a"})
	encoded, err := Encode(Document{"a": VInt32(1)}, DocID{Kind: DocIDString}, toForward(ids))
	require.NoError(t, err)

	_, _, err = Decode(encoded, map[ID]string{})
	require.Error(t, err)
}

func TestDictionaryMonotonic(t *testing.T) {
	d := New()
	first := d.Register("c", []string{"alpha"})["alpha"]
	second := d.Register("c", []string{"alpha"})["alpha"]
	require.Equal(t, first, second)

	d.Register("c", []string{"beta"})
	third := d.Register("c", []string{"alpha"})["alpha"]
	require.Equal(t, first, third)
}

func TestDictionaryConcurrentRegisterSameName(t *testing.T) {
	d := New()
	const n = 64
	results := make(chan ID, n)
	for i := 0; i < n; i++ {
		go func() {
			m := d.Register("c", []string{"shared"})
			results <- m["shared"]
		}()
	}
	first := <-results
	for i := 1; i < n; i++ {
		require.Equal(t, first, <-results)
	}
}

func toForward(m map[string]ID) map[string]ID { return m }
