package bencode

import (
	"bytes"
	"io"
	"sort"
	"strconv"
	"time"
)

// Encoder writes bencoded values to an output stream.
type Encoder struct {
	w io.Writer
}

// NewEncoder returns a new Encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes the bencoding of v to the stream.
func (enc *Encoder) Encode(v interface{}) error {
	return marshal(enc.w, v)
}

// Marshal returns the bencoding of v.
func Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := marshal(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func marshal(w io.Writer, data interface{}) error {
	switch v := data.(type) {
	case Marshaler:
		bencoded, err := v.MarshalBencode()
		if err != nil {
			return err
		}
		_, err = w.Write(bencoded)
		return err

	case []byte:
		return marshalBytes(w, v)

	case string:
		return marshalBytes(w, []byte(v))

	case []string:
		return marshalStringSlice(w, v)

	case int:
		return marshalInt(w, int64(v))

	case int32:
		return marshalInt(w, int64(v))

	case int64:
		return marshalInt(w, v)

	case uint:
		return marshalUint(w, uint64(v))

	case uint32:
		return marshalUint(w, uint64(v))

	case uint64:
		return marshalUint(w, v)

	case time.Duration: // encoded as whole seconds
		return marshalInt(w, int64(v/time.Second))

	case Dict:
		return marshalDict(w, v)

	case map[string]interface{}:
		return marshalDict(w, Dict(v))

	case List:
		return marshalList(w, v)

	case []interface{}:
		return marshalList(w, List(v))

	case []Dict:
		list := make(List, len(v))
		for i, d := range v {
			list[i] = d
		}
		return marshalList(w, list)

	default:
		return ErrUnsupportedValue
	}
}

func marshalInt(w io.Writer, v int64) error {
	_, err := io.WriteString(w, "i"+strconv.FormatInt(v, 10)+"e")
	return err
}

func marshalUint(w io.Writer, v uint64) error {
	_, err := io.WriteString(w, "i"+strconv.FormatUint(v, 10)+"e")
	return err
}

func marshalBytes(w io.Writer, v []byte) error {
	if _, err := io.WriteString(w, strconv.Itoa(len(v))+":"); err != nil {
		return err
	}
	_, err := w.Write(v)
	return err
}

func marshalStringSlice(w io.Writer, v []string) error {
	if _, err := io.WriteString(w, "l"); err != nil {
		return err
	}
	for _, val := range v {
		if err := marshalBytes(w, []byte(val)); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "e")
	return err
}

func marshalList(w io.Writer, v List) error {
	if _, err := io.WriteString(w, "l"); err != nil {
		return err
	}
	for _, val := range v {
		if err := marshal(w, val); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "e")
	return err
}

// marshalDict writes a dictionary with keys sorted by unsigned byte
// comparison, per BEP 3. This is what keeps a bencoded info dictionary
// hashing to the same info-hash no matter how the caller built the map.
func marshalDict(w io.Writer, v Dict) error {
	if _, err := io.WriteString(w, "d"); err != nil {
		return err
	}

	keys := make([]string, 0, len(v))
	for key := range v {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := marshalBytes(w, []byte(key)); err != nil {
			return err
		}
		if err := marshal(w, v[key]); err != nil {
			return err
		}
	}

	_, err := io.WriteString(w, "e")
	return err
}
