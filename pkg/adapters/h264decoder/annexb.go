package h264decoder

import (
	"github.com/Eyevinn/mp4ff/avc"
)

var startCode = []byte{0, 0, 0, 1}

// AVCCToAnnexB converts AVCC format (4-byte length-prefixed NALUs) to
// Annex B format (start code prefixed). A truncated trailing NALU is dropped.
func AVCCToAnnexB(data []byte) []byte {
	result := make([]byte, 0, len(data)+16)
	offset := 0

	for offset+4 <= len(data) {
		naluLen := int(data[offset])<<24 | int(data[offset+1])<<16 |
			int(data[offset+2])<<8 | int(data[offset+3])
		offset += 4

		if naluLen < 0 || offset+naluLen > len(data) {
			break
		}

		result = append(result, startCode...)
		result = append(result, data[offset:offset+naluLen]...)
		offset += naluLen
	}

	return result
}

// ParameterSetsAnnexB joins SPS and PPS NAL units into one Annex B buffer.
func ParameterSetsAnnexB(sps, pps [][]byte) []byte {
	var out []byte
	for _, nalu := range sps {
		out = append(out, startCode...)
		out = append(out, nalu...)
	}
	for _, nalu := range pps {
		out = append(out, startCode...)
		out = append(out, nalu...)
	}
	return out
}

// NALUSummary describes the NAL units found in an Annex B buffer.
type NALUSummary struct {
	SPS      [][]byte
	PPS      [][]byte
	HasSlice bool
	HasIDR   bool
	Count    int
}

// ParameterSetsOnly reports whether the buffer carries SPS/PPS and no picture data.
func (s NALUSummary) ParameterSetsOnly() bool {
	return !s.HasSlice && (len(s.SPS) > 0 || len(s.PPS) > 0)
}

// ClassifyNALUs splits an Annex B buffer and records what it contains.
func ClassifyNALUs(annexB []byte) NALUSummary {
	var s NALUSummary
	for _, nalu := range avc.ExtractNalusFromByteStream(annexB) {
		if len(nalu) == 0 {
			continue
		}
		s.Count++
		switch avc.GetNaluType(nalu[0]) {
		case avc.NALU_SPS:
			s.SPS = append(s.SPS, nalu)
		case avc.NALU_PPS:
			s.PPS = append(s.PPS, nalu)
		case avc.NALU_IDR:
			s.HasSlice = true
			s.HasIDR = true
		case avc.NALU_NON_IDR:
			s.HasSlice = true
		}
	}
	return s
}

// spsDimensions returns the cropped picture size encoded in an SPS.
func spsDimensions(sps []byte) (width, height int, err error) {
	parsed, err := avc.ParseSPSNALUnit(sps, false)
	if err != nil {
		return 0, 0, err
	}
	return int(parsed.Width), int(parsed.Height), nil
}

// PictureAVCC returns the picture NAL units of an Annex B access unit as
// AVCC with 4-byte lengths. Parameter sets and delimiters are left out.
func PictureAVCC(annexB []byte) []byte {
	var out []byte
	for _, nalu := range avc.ExtractNalusFromByteStream(annexB) {
		if len(nalu) == 0 {
			continue
		}
		switch avc.GetNaluType(nalu[0]) {
		case avc.NALU_SPS, avc.NALU_PPS, avc.NALU_AUD:
			continue
		}
		n := len(nalu)
		out = append(out, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
		out = append(out, nalu...)
	}
	return out
}
