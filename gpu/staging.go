package gpu

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"

	"github.com/aldhinn/celerique/driver"
)

// meshSlot is the device-local geometry buffer for one in-flight frame
// of one surface. The buffer holds vertex bytes followed immediately
// by index bytes.
type meshSlot struct {
	id          uint64
	buf         driver.Buffer
	vertexBytes int
	vertexCount int
	indexCount  int
}

// uploadMesh fills the current frame's mesh slot with the supplied
// geometry through a transient host-visible staging buffer. The slot's
// previous buffer, when too small, is fully released before a
// replacement is created; the staging buffer never outlives the call.
// Safe to call only after the frame's fence wait, which guarantees the
// GPU is done with this slot.
func (m *Manager) uploadMesh(s *surfaceState, mesh *Mesh) (*meshSlot, error) {
	vertexBytes := len(mesh.Vertices)
	total := vertexBytes + 4*len(mesh.Indices)

	slot := s.meshes[s.frameIndex]
	if slot != nil && slot.buf.Size() < total {
		// Drop the slot record with the buffer, so a failed
		// replacement below can never leave a destroyed buffer
		// reachable from the arena.
		slot.buf.Destroy()
		s.meshes[s.frameIndex] = nil
		slot = nil
	}
	if slot == nil {
		buf, err := s.dev.dev.CreateBuffer(total,
			driver.BufferUsageTransferDst|driver.BufferUsageVertex|driver.BufferUsageIndex,
			driver.MemoryDeviceLocal)
		if err != nil {
			m.log.Error("mesh buffer creation failed", "window", uint64(s.handle), "err", err)
			return nil, errors.Wrap(err, "gpu: creating mesh buffer")
		}
		slot = &meshSlot{id: m.bufferIDs.Next(), buf: buf}
		s.meshes[s.frameIndex] = slot
	}
	slot.vertexBytes = vertexBytes
	slot.vertexCount = mesh.VertexCount
	slot.indexCount = len(mesh.Indices)

	staging, err := s.dev.dev.CreateBuffer(total,
		driver.BufferUsageTransferSrc,
		driver.MemoryHostVisible|driver.MemoryHostCoherent)
	if err != nil {
		m.log.Error("staging buffer creation failed", "window", uint64(s.handle), "err", err)
		return nil, errors.Wrap(err, "gpu: creating staging buffer")
	}
	defer staging.Destroy()

	if err := staging.Write(0, mesh.Vertices); err != nil {
		return nil, errors.Wrap(err, "gpu: writing vertex data to staging buffer")
	}
	if len(mesh.Indices) > 0 {
		if err := staging.Write(vertexBytes, encodeIndices(mesh.Indices)); err != nil {
			return nil, errors.Wrap(err, "gpu: writing index data to staging buffer")
		}
	}

	if err := m.copyBuffer(s, staging, slot.buf, total); err != nil {
		return nil, err
	}
	return slot, nil
}

// copyBuffer runs a one-shot transfer on the surface's graphics queue
// and waits for it to drain before returning.
func (m *Manager) copyBuffer(s *surfaceState, src, dst driver.Buffer, size int) error {
	cbs, err := s.pool.Allocate(1)
	if err != nil {
		return errors.Wrap(err, "gpu: allocating transfer command buffer")
	}
	cb := cbs[0]
	defer s.pool.Free(cb)

	if err := cb.Begin(true); err != nil {
		return errors.Wrap(err, "gpu: beginning transfer command buffer")
	}
	cb.CopyBuffer(src, dst, size)
	if err := cb.End(); err != nil {
		return errors.Wrap(err, "gpu: ending transfer command buffer")
	}

	queue := s.dev.graphicsQueue()
	if err := queue.Submit(driver.SubmitInfo{Commands: []driver.CommandBuffer{cb}}); err != nil {
		return errors.Wrap(err, "gpu: submitting transfer")
	}
	if err := queue.WaitIdle(); err != nil {
		return errors.Wrap(err, "gpu: waiting for transfer to complete")
	}
	return nil
}

func encodeIndices(indices []uint32) []byte {
	out := make([]byte, 4*len(indices))
	for i, idx := range indices {
		binary.LittleEndian.PutUint32(out[4*i:], idx)
	}
	return out
}
