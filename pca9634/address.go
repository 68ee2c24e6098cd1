package pca9634

import "github.com/coreman2200/pca9634/model"

// allCallSlot is the index of ALLCALLADR relative to SUBADR1. Its enable bit
// is MODE1 bit 0.
const allCallSlot = 3

// SetSubAddress stores the 7-bit addr in sub-address slot 1, 2 or 3 and makes
// the chip answer it. Other slots are ignored.
func (d *Dev) SetSubAddress(slot int, addr uint8) error {
	if slot < 1 || slot > 3 {
		return nil
	}
	return d.setAddressActive(uint8(slot-1), addr, true)
}

// SetAllCallAddress stores the 7-bit all-call address and enables it. The
// all-call address is enabled by default.
func (d *Dev) SetAllCallAddress(addr uint8) error {
	return d.setAddressActive(allCallSlot, addr, true)
}

// DisableAllCallAddress stops the chip answering its all-call address. The
// address register is left untouched.
func (d *Dev) DisableAllCallAddress() error {
	return d.setAddressActive(allCallSlot, 0, false)
}

// setAddressActive writes the address register, when enabling, before it
// touches the MODE1 enable bit 0x08>>index.
func (d *Dev) setAddressActive(index uint8, addr uint8, enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if enabled {
		if err := d.writeRegister(model.RegSubAdr1+index, addr<<1); err != nil {
			return err
		}
	}
	bit := byte(0x08) >> index
	return d.updateRegister(model.RegMode1, func(v byte) byte {
		if enabled {
			return v | bit
		}
		return v &^ bit
	})
}
