package codec

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/iotaledger/hive.go/ierrors"
	"github.com/iotaledger/hive.go/lo"
	"github.com/klauspost/compress/gzip"

	"github.com/raj/lww/pkg/metrics"
)

// Encoding names how a frame's payload is stored.
type Encoding string

const (
	// EncodingJSON embeds the payload as plain JSON.
	EncodingJSON Encoding = ""
	// EncodingGzip stores the gzipped JSON payload as a base64 string.
	EncodingGzip Encoding = "gzip"
)

// NeverCompress passed to Encode keeps every payload plain.
const NeverCompress = -1

// ErrUnknownEncoding is returned by Decode for frames it cannot unpack.
var ErrUnknownEncoding = ierrors.New("unknown frame encoding")

var separator = []byte{'\n'}

// frame wraps every encoded message.
type frame struct {
	Encoding Encoding        `json:"enc,omitempty"`
	Payload  json.RawMessage `json:"payload"`
}

// Encode marshals msg into a frame. Payloads longer than compressAbove bytes
// are gzipped when that makes the frame smaller.
func Encode(msg any, compressAbove int) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, ierrors.Wrap(err, "marshal message")
	}

	f := frame{Encoding: EncodingJSON, Payload: payload}
	if compressAbove >= 0 && len(payload) > compressAbove {
		if packed, ok := gzipPayload(payload); ok {
			f = frame{Encoding: EncodingGzip, Payload: packed}
		}
	}

	return json.Marshal(f)
}

// Decode unpacks a frame produced by Encode into target.
func Decode(data []byte, target any) error {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return ierrors.Wrap(err, "decode frame")
	}

	payload := []byte(f.Payload)
	switch f.Encoding {
	case EncodingJSON:
	case EncodingGzip:
		var err error
		if payload, err = gunzipPayload(payload); err != nil {
			return ierrors.Wrap(err, "decompress payload")
		}
	default:
		return ierrors.Wrapf(ErrUnknownEncoding, "%q", f.Encoding)
	}

	if err := json.Unmarshal(payload, target); err != nil {
		return ierrors.Wrap(err, "decode payload")
	}
	return nil
}

// gzipPayload returns the compressed payload as a JSON string, or false when
// compression does not pay off.
func gzipPayload(payload []byte) (json.RawMessage, bool) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		metrics.SetGossipCompressionRatio("error", 1.0)
		return nil, false
	}
	if err := gz.Close(); err != nil {
		metrics.SetGossipCompressionRatio("error", 1.0)
		return nil, false
	}

	packed, err := json.Marshal(buf.Bytes())
	if err != nil {
		return nil, false
	}
	metrics.SetGossipCompressionRatio(string(EncodingGzip), float64(len(packed))/float64(len(payload)))

	return packed, len(packed) < len(payload)
}

func gunzipPayload(packed []byte) ([]byte, error) {
	var compressed []byte
	if err := json.Unmarshal(packed, &compressed); err != nil {
		return nil, err
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	return io.ReadAll(gz)
}

// Batch packs frames into newline separated batches of at most limit bytes.
// A frame longer than limit travels alone. Frames never contain a newline,
// since JSON escapes it inside strings.
func Batch(frames [][]byte, limit int) [][]byte {
	var batches [][]byte
	start, size := 0, 0
	for i, f := range frames {
		switch {
		case i == start:
			size = len(f)
		case size+len(separator)+len(f) > limit:
			batches = append(batches, bytes.Join(frames[start:i], separator))
			start, size = i, len(f)
		default:
			size += len(separator) + len(f)
		}
	}
	if start < len(frames) {
		batches = append(batches, bytes.Join(frames[start:], separator))
	}

	return batches
}

// Unbatch splits a batch back into its frames.
func Unbatch(batch []byte) [][]byte {
	if len(batch) == 0 {
		return nil
	}

	return lo.Filter(bytes.Split(batch, separator), func(part []byte) bool { return len(part) > 0 })
}
