package flasher

import (
	"log"

	"github.com/bee2mp/rtl8762c-flash/pkg/protocol"
)

// Enter opens a scoped session: it brings t into StateRESET, then
// StateFLASH, uploading fw0 as stage-0 and recording the reported
// flash size. Call the returned Session's Close (typically deferred)
// to release it; Close always attempts StateRUN before closing the
// transport, best effort.
func Enter(t Transport, fw0 Stage0Image) (*Session, error) {
	s, err := New(t)
	if err != nil {
		return nil, err
	}
	if err := s.AssertState(StateFLASH, fw0); err != nil {
		return nil, err
	}
	return s, nil
}

// SetBaud asks the device to switch to baud, then reconfigures the
// local transport to match. The device switches autonomously after
// acknowledging; spec.md §9's third Open Question is resolved by
// always updating the transport immediately on success, never
// leaving it mismatched.
func (s *Session) SetBaud(baud uint32) error {
	if err := s.requireFlash("SetBaud"); err != nil {
		return err
	}
	if _, err := protocol.Execute(s.transport, protocol.SetBaud{Baud: baud}); err != nil {
		return err
	}
	if err := s.transport.SetBaud(baud); err != nil {
		return err
	}
	log.Printf("flasher: baud changed to %d", baud)
	return nil
}
