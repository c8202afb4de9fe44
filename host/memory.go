package host

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/wasmbind/wasmbind/errors"
)

// memoryView is a bounds-checked adapter over an instance's linear
// memory. Slices returned by wazero's Read alias the current backing
// array, which the guest can replace by growing memory, so a view is
// fetched per access and raw windows are never held across guest calls.
type memoryView struct {
	mod api.Module
}

func (inst *Instance) mem() memoryView {
	return memoryView{mod: inst.module}
}

// read returns a window into guest memory. Callers must copy the bytes
// out before the next guest call.
func (m memoryView) read(offset, length uint32) ([]byte, error) {
	data, ok := m.mod.Memory().Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(offset, length)
	}
	return data, nil
}

func (m memoryView) write(offset uint32, data []byte) error {
	if !m.mod.Memory().Write(offset, data) {
		return errors.OutOfBounds(offset, uint32(len(data)))
	}
	return nil
}

func (m memoryView) writeU32(offset uint32, v uint32) error {
	if !m.mod.Memory().WriteUint32Le(offset, v) {
		return errors.OutOfBounds(offset, 4)
	}
	return nil
}
