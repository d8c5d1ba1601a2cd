// Package testmedia generates small H.264/AAC streams and MP4 files for tests.
// The parameter sets are valid; slice payloads are placeholders that
// parsers accept but a real codec cannot decode.
package testmedia

// bitWriter writes an RBSP bit by bit.
type bitWriter struct {
	buf   []byte
	cur   byte
	nbits uint
}

func (w *bitWriter) writeBit(b uint) {
	w.cur = w.cur<<1 | byte(b&1)
	w.nbits++
	if w.nbits == 8 {
		w.buf = append(w.buf, w.cur)
		w.cur, w.nbits = 0, 0
	}
}

func (w *bitWriter) writeBits(v uint, n int) {
	for i := n - 1; i >= 0; i-- {
		w.writeBit(v >> uint(i))
	}
}

// writeUE writes an unsigned Exp-Golomb code.
func (w *bitWriter) writeUE(v uint) {
	v++
	n := 0
	for tmp := v; tmp > 1; tmp >>= 1 {
		n++
	}
	w.writeBits(0, n)
	w.writeBits(v, n+1)
}

// trailing writes rbsp_trailing_bits and returns the RBSP.
func (w *bitWriter) trailing() []byte {
	w.writeBit(1)
	for w.nbits != 0 {
		w.writeBit(0)
	}
	return w.buf
}

// escape inserts emulation prevention bytes.
func escape(rbsp []byte) []byte {
	out := make([]byte, 0, len(rbsp)+4)
	zeros := 0
	for _, b := range rbsp {
		if zeros >= 2 && b <= 3 {
			out = append(out, 3)
			zeros = 0
		}
		out = append(out, b)
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
	}
	return out
}

// SPS returns a baseline-profile sequence parameter set for an even
// width x height picture.
func SPS(width, height int) []byte {
	mbW := (width + 15) / 16
	mbH := (height + 15) / 16
	cropRight := (mbW*16 - width) / 2
	cropBottom := (mbH*16 - height) / 2

	var w bitWriter
	w.writeBits(66, 8)   // profile_idc: baseline
	w.writeBits(0xC0, 8) // constraint_set0/1
	w.writeBits(30, 8)   // level_idc
	w.writeUE(0)         // seq_parameter_set_id
	w.writeUE(0)         // log2_max_frame_num_minus4
	w.writeUE(2)         // pic_order_cnt_type
	w.writeUE(1)         // max_num_ref_frames
	w.writeBit(0)        // gaps_in_frame_num_value_allowed_flag
	w.writeUE(uint(mbW - 1))
	w.writeUE(uint(mbH - 1))
	w.writeBit(1) // frame_mbs_only_flag
	w.writeBit(1) // direct_8x8_inference_flag
	if cropRight > 0 || cropBottom > 0 {
		w.writeBit(1)
		w.writeUE(0)
		w.writeUE(uint(cropRight))
		w.writeUE(0)
		w.writeUE(uint(cropBottom))
	} else {
		w.writeBit(0)
	}
	w.writeBit(0) // vui_parameters_present_flag

	return append([]byte{0x67}, escape(w.trailing())...)
}

// PPS returns a picture parameter set matching SPS.
func PPS() []byte {
	var w bitWriter
	w.writeUE(0)      // pic_parameter_set_id
	w.writeUE(0)      // seq_parameter_set_id
	w.writeBit(0)     // entropy_coding_mode_flag
	w.writeBit(0)     // bottom_field_pic_order_in_frame_present_flag
	w.writeUE(0)      // num_slice_groups_minus1
	w.writeUE(0)      // num_ref_idx_l0_default_active_minus1
	w.writeUE(0)      // num_ref_idx_l1_default_active_minus1
	w.writeBit(0)     // weighted_pred_flag
	w.writeBits(0, 2) // weighted_bipred_idc
	w.writeUE(0)      // pic_init_qp_minus26 (se 0)
	w.writeUE(0)      // pic_init_qs_minus26 (se 0)
	w.writeUE(0)      // chroma_qp_index_offset (se 0)
	w.writeBit(1)     // deblocking_filter_control_present_flag
	w.writeBit(0)     // constrained_intra_pred_flag
	w.writeBit(0)     // redundant_pic_cnt_present_flag

	return append([]byte{0x68}, escape(w.trailing())...)
}

// IDRSlice returns a placeholder IDR slice NAL unit tagged with n.
func IDRSlice(n int) []byte {
	return []byte{0x65, 0x88, 0x84, 0x21, byte(n >> 8), byte(n)}
}

// Slice returns a placeholder non-IDR slice NAL unit tagged with n.
func Slice(n int) []byte {
	return []byte{0x41, 0x9a, 0x02, byte(n >> 8), byte(n)}
}

// AnnexB joins NAL units with 4-byte start codes.
func AnnexB(nalus ...[]byte) []byte {
	var out []byte
	for _, n := range nalus {
		out = append(out, 0, 0, 0, 1)
		out = append(out, n...)
	}
	return out
}

// AVCC joins NAL units with 4-byte big-endian length prefixes.
func AVCC(nalus ...[]byte) []byte {
	var out []byte
	for _, n := range nalus {
		l := len(n)
		out = append(out, byte(l>>24), byte(l>>16), byte(l>>8), byte(l))
		out = append(out, n...)
	}
	return out
}
