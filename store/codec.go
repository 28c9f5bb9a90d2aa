package store

import (
	"encoding/binary"
	"fmt"

	"github.com/x448/float16"

	"github.com/vantagecv/go-planartrack/match"
)

// keyPointBytes is the encoded size of one keypoint, three half precision
// floats for x, y and response
const keyPointBytes = 6

// encodeKeyPoints packs keypoints as half precision floats.  Half
// precision keeps feature positions within a pixel at common reference
// image sizes while halving the stored size
func encodeKeyPoints(kps []match.KeyPoint) []byte {

	buf := make([]byte, len(kps)*keyPointBytes)

	for i, kp := range kps {
		off := i * keyPointBytes

		binary.LittleEndian.PutUint16(buf[off:], float16.Fromfloat32(kp.X).Bits())
		binary.LittleEndian.PutUint16(buf[off+2:], float16.Fromfloat32(kp.Y).Bits())
		binary.LittleEndian.PutUint16(buf[off+4:], float16.Fromfloat32(kp.Response).Bits())
	}

	return buf
}

// decodeKeyPoints unpacks an encoded keypoint blob
func decodeKeyPoints(buf []byte) ([]match.KeyPoint, error) {

	if len(buf)%keyPointBytes != 0 {
		return nil, fmt.Errorf("keypoint blob length %d is not a multiple of %d",
			len(buf), keyPointBytes)
	}

	kps := make([]match.KeyPoint, len(buf)/keyPointBytes)

	for i := range kps {
		off := i * keyPointBytes

		kps[i] = match.KeyPoint{
			X:        float16.Frombits(binary.LittleEndian.Uint16(buf[off:])).Float32(),
			Y:        float16.Frombits(binary.LittleEndian.Uint16(buf[off+2:])).Float32(),
			Response: float16.Frombits(binary.LittleEndian.Uint16(buf[off+4:])).Float32(),
		}
	}

	return kps, nil
}

// encodeDescriptors packs binary descriptors back to back
func encodeDescriptors(descs []match.Descriptor) []byte {

	buf := make([]byte, 0, len(descs)*len(match.Descriptor{}))

	for _, d := range descs {
		buf = append(buf, d[:]...)
	}

	return buf
}

// decodeDescriptors unpacks an encoded descriptor blob
func decodeDescriptors(buf []byte) ([]match.Descriptor, error) {

	size := len(match.Descriptor{})

	if len(buf)%size != 0 {
		return nil, fmt.Errorf("descriptor blob length %d is not a multiple of %d",
			len(buf), size)
	}

	descs := make([]match.Descriptor, len(buf)/size)

	for i := range descs {
		copy(descs[i][:], buf[i*size:])
	}

	return descs, nil
}
