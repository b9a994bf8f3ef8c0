package capture

import (
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
)

const (
	DefaultSnapLen = 65535
	DefaultTimeout = 100 * time.Millisecond
)

// LiveCapture manages a live packet capture session.
type LiveCapture struct {
	handle *pcap.Handle
}

// NewLiveCapture opens a live capture on the given interface.
func NewLiveCapture(iface, bpfFilter string, snapLen int) (*LiveCapture, error) {
	if snapLen <= 0 {
		snapLen = DefaultSnapLen
	}
	handle, err := pcap.OpenLive(iface, int32(snapLen), true, DefaultTimeout)
	if err != nil {
		return nil, fmt.Errorf("open live capture on %s: %w", iface, err)
	}
	if bpfFilter != "" {
		if err := handle.SetBPFFilter(bpfFilter); err != nil {
			handle.Close()
			return nil, fmt.Errorf("set BPF filter %q: %w", bpfFilter, err)
		}
	}
	return &LiveCapture{handle: handle}, nil
}

// Packets returns a gopacket.PacketSource to iterate packets.
func (lc *LiveCapture) Packets() *gopacket.PacketSource {
	return gopacket.NewPacketSource(lc.handle, lc.handle.LinkType())
}

// Close stops the capture.
func (lc *LiveCapture) Close() {
	if lc.handle != nil {
		lc.handle.Close()
	}
}
