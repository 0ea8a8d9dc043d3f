package native

import (
	stderrors "errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/physlink/errors"
	"github.com/wippyai/physlink/handle"
)

func TestLocalHeap_Basic(t *testing.T) {
	h := NewLocalHeap()
	defer h.Close()

	id, err := h.Alloc("MotionState", 16)
	require.NoError(t, err)
	require.NotZero(t, id)

	buf := make([]byte, 16)
	require.NoError(t, h.Load(id, buf))
	assert.Equal(t, make([]byte, 16), buf, "new objects are zeroed")

	require.NoError(t, h.Store(id, []byte{1, 2, 3}))
	require.NoError(t, h.Load(id, buf[:4]))
	assert.Equal(t, []byte{1, 2, 3, 0}, buf[:4])

	kind, ok := h.Kind(id)
	require.True(t, ok)
	assert.Equal(t, "MotionState", kind)

	assert.Equal(t, 1, h.Stats().Objects)
	assert.Equal(t, uint64(16), h.Stats().BytesUsed)

	require.NoError(t, h.Free(id))
	assert.Equal(t, 0, h.Stats().Objects)
}

func TestLocalHeap_DoubleFreeAndStaleIDs(t *testing.T) {
	h := NewLocalHeap()
	defer h.Close()

	first, err := h.Alloc("Body", 8)
	require.NoError(t, err)
	require.NoError(t, h.Free(first))

	err = h.Free(first)
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseHeap, Kind: errors.KindNotFound})

	// The slot is reused under a new generation.
	second, err := h.Alloc("Body", 8)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	assert.Error(t, h.Load(first, make([]byte, 8)))
	assert.Error(t, h.Store(first, make([]byte, 8)))
	assert.NoError(t, h.Load(second, make([]byte, 8)))
}

func TestLocalHeap_Bounds(t *testing.T) {
	h := NewLocalHeap()
	defer h.Close()

	id, err := h.Alloc("Body", 4)
	require.NoError(t, err)

	err = h.Store(id, make([]byte, 5))
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseHeap, Kind: errors.KindOutOfBounds})
	assert.Error(t, h.Load(id, make([]byte, 5)))
	assert.Error(t, h.Load(0, nil))
}

func TestLocalHeap_Close(t *testing.T) {
	h := NewLocalHeap()
	id, err := h.Alloc("Body", 4)
	require.NoError(t, err)

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	_, err = h.Alloc("Body", 4)
	assert.Error(t, err)
	assert.Error(t, h.Free(id))
}

func TestLocalHeap_Each(t *testing.T) {
	h := NewLocalHeap()
	defer h.Close()

	ids := map[handle.ID]bool{}
	for i := 0; i < 4; i++ {
		id, err := h.Alloc("Body", 8)
		require.NoError(t, err)
		ids[id] = true
	}

	seen := 0
	h.Each(func(id handle.ID, kind string, size int) bool {
		assert.True(t, ids[id])
		assert.Equal(t, 8, size)
		seen++
		return seen < 3
	})
	assert.Equal(t, 3, seen)
}

func TestLocalHeap_StoreLoadNeverTear(t *testing.T) {
	h := NewLocalHeap()
	defer h.Close()

	const size = 64
	id, err := h.Alloc("MotionState", size)
	require.NoError(t, err)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		src := make([]byte, size)
		for v := byte(1); ; v++ {
			select {
			case <-stop:
				return
			default:
			}
			for i := range src {
				src[i] = v
			}
			if err := h.Store(id, src); err != nil {
				t.Error(err)
				return
			}
		}
	}()

	dst := make([]byte, size)
	for i := 0; i < 5000; i++ {
		require.NoError(t, h.Load(id, dst))
		for _, b := range dst {
			if b != dst[0] {
				close(stop)
				wg.Wait()
				t.Fatalf("torn read: %v", dst)
			}
		}
	}
	close(stop)
	wg.Wait()
}

func TestInstrumented(t *testing.T) {
	h := Instrument(NewLocalHeap())
	defer h.Close()

	a, err := h.Alloc("Body", 8)
	require.NoError(t, err)
	b, err := h.Alloc("Body", 8)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), h.Allocs())

	boom := stderrors.New("busy")
	h.FailFree(a, boom)
	assert.ErrorIs(t, h.Free(a), boom)
	assert.NoError(t, h.Free(b))

	h.FailFree(a, nil)
	assert.NoError(t, h.Free(a))

	assert.Equal(t, 2, h.Frees(a))
	assert.Equal(t, 1, h.Frees(b))
	assert.Equal(t, uint64(3), h.TotalFrees())
}
