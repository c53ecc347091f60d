package flasher

import (
	"fmt"
	"strings"

	"github.com/YEZZESDXHN/DoIP-Client-sub000/uds"
)

// transferDataHeaderSize is the per-frame overhead of a TransferData
// frame: service ID plus block sequence counter.
const transferDataHeaderSize = 2

// resolveExternalData resolves a step's external-data tokens against the
// variable store and concatenates the results in token order.
//
// Failures are soft by design: a malformed token, an unknown file, or an
// out-of-range index contributes no bytes and is reported through the log
// stream where visible. The resulting truncated payload is then caught by
// the step's response validation instead of crashing the run.
func (e *Executor) resolveExternalData(tokens []string) []byte {
	var data []byte
	for _, raw := range tokens {
		if !strings.Contains(raw, "[") {
			continue
		}
		tok, err := parseToken(raw)
		if err != nil {
			e.logf("failed to parse %s", raw)
			continue
		}
		seg, ok := e.store.Segment(tok.file, tok.index)
		if !ok {
			continue
		}
		switch tok.field {
		case fieldData:
			data = append(data, seg.Data...)
		case fieldChecksum:
			data = append(data, seg.Checksum...)
		case fieldAddr:
			width := e.cfg.TransmissionParameters.MemoryAddressParameterLength
			b, err := bigEndianBytes(uint64(seg.Addr), width)
			if err != nil {
				e.logf("failed to serialize %s: %v", raw, err)
				continue
			}
			data = append(data, b...)
		case fieldSize:
			width := e.cfg.TransmissionParameters.MemorySizeParameterLength
			b, err := bigEndianBytes(uint64(seg.Size), width)
			if err != nil {
				e.logf("failed to serialize %s: %v", raw, err)
				continue
			}
			data = append(data, b...)
		}
	}
	return data
}

// bigEndianBytes serializes v as a big-endian unsigned integer of the
// given byte width. Widths outside 1..8 fall back to the default width.
func bigEndianBytes(v uint64, width int) ([]byte, error) {
	if width < 1 || width > 8 {
		width = DefaultParameterLength
	}
	if width < 8 && v >= 1<<(8*width) {
		return nil, fmt.Errorf("value 0x%X does not fit in %d bytes", v, width)
	}
	out := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out, nil
}

// buildSendPayloads produces the ordered wire payloads for one send step.
//
// Three cases:
//
//   - SecurityAccess send-key (0x27 with an even sub-function) with a key
//     available: the key bytes are appended to the template and a single
//     payload is emitted.
//   - TransferData (0x36): the template plus external data is split into
//     frames of at most MaxNumberOfBlockLength bytes. Each frame carries a
//     2-byte header [0x36, seq]; the sequence counter starts at 1 and
//     wraps from 0xFF to 0x00 per the ISO 14229 block sequence counter.
//   - Anything else: template plus external data as one payload.
//
// Frames must be transmitted strictly in list order: the ECU's block
// sequence counter state machine requires gap-free, in-order delivery.
func (e *Executor) buildSendPayloads(step *Step) [][]byte {
	external := e.resolveExternalData(step.ExternalData)

	if len(step.Data) >= 2 && step.Data[0] == uds.ServiceSecurityAccess && step.Data[1]%2 == 0 {
		if key := e.securityKey(); len(key) > 0 {
			payload := make([]byte, 0, len(step.Data)+len(key))
			payload = append(payload, step.Data...)
			payload = append(payload, key...)
			return [][]byte{payload}
		}
	}

	if len(step.Data) >= 1 && step.Data[0] == uds.ServiceTransferData {
		total := make([]byte, 0, len(step.Data)+len(external))
		total = append(total, step.Data...)
		total = append(total, external...)

		maxBlock := e.cfg.TransmissionParameters.MaxNumberOfBlockLength
		maxData := maxBlock - transferDataHeaderSize

		if len(total) <= maxBlock {
			frame := make([]byte, 0, 1+len(total))
			frame = append(frame, uds.ServiceTransferData, 0x01)
			frame = append(frame, total[1:]...)
			return [][]byte{frame}
		}

		var frames [][]byte
		seq := byte(0x01)
		pos := 1 // skip the 0x36 placeholder byte
		for pos < len(total) {
			n := len(total) - pos
			if n > maxData {
				n = maxData
			}
			frame := make([]byte, 0, transferDataHeaderSize+n)
			frame = append(frame, uds.ServiceTransferData, seq)
			frame = append(frame, total[pos:pos+n]...)
			frames = append(frames, frame)
			pos += n
			seq++ // wraps 0xFF -> 0x00
		}
		return frames
	}

	payload := make([]byte, 0, len(step.Data)+len(external))
	payload = append(payload, step.Data...)
	payload = append(payload, external...)
	return [][]byte{payload}
}

// stepUnits estimates the progress units of one step: 1 for ordinary
// steps, and 1 plus the external data length divided by the per-frame
// capacity for TransferData steps. The estimate intentionally mirrors the
// progress counter, which advances once per transmitted frame.
func (e *Executor) stepUnits(step *Step) int {
	if step.IsCall || len(step.Data) == 0 || step.Data[0] != uds.ServiceTransferData {
		return 1
	}
	maxData := e.cfg.TransmissionParameters.MaxNumberOfBlockLength - transferDataHeaderSize
	if maxData <= 0 {
		return 1
	}
	return len(e.resolveExternalData(step.ExternalData))/maxData + 1
}

// totalUnits sums the step-unit estimates for the whole script; the total
// drives the progress range announcement.
func (e *Executor) totalUnits() int {
	total := 0
	for i := range e.cfg.Steps {
		total += e.stepUnits(&e.cfg.Steps[i])
	}
	return total
}
