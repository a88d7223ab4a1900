package bolt

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"time"

	"github.com/omri0111-web/facepace-public/internal/database"
)

// sep joins the parts of composite keys; ids never contain NUL.
const sep = 0x00

var errCorruptRecord = errors.New("corrupt embedding record")

// present marks index entries whose key carries all the data.
var present = []byte{1}

func idKey(id int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(id)) //nolint:gosec // ids come from NextSequence
	return k
}

func keyID(k []byte) int64 {
	return int64(binary.BigEndian.Uint64(k)) //nolint:gosec // written by idKey
}

func compositeKey(parts ...[]byte) []byte {
	return bytes.Join(parts, []byte{sep})
}

func prefixKey(s string) []byte {
	return append([]byte(s), sep)
}

// encodeEmbedding lays out a record as
// personID length (uint16) | personID | created_at unix nanos (int64) | float32 values,
// all little-endian.
func encodeEmbedding(personID string, emb []float32, createdAt time.Time) []byte {
	buf := make([]byte, 2+len(personID)+8+4*len(emb))
	binary.LittleEndian.PutUint16(buf, uint16(len(personID))) //nolint:gosec // ids are short
	n := 2 + copy(buf[2:], personID)
	binary.LittleEndian.PutUint64(buf[n:], uint64(createdAt.UnixNano())) //nolint:gosec // round-trips
	n += 8
	for _, x := range emb {
		binary.LittleEndian.PutUint32(buf[n:], math.Float32bits(x))
		n += 4
	}
	return buf
}

func decodeEmbedding(id int64, data []byte) (database.StoredEmbedding, error) {
	if len(data) < 2 {
		return database.StoredEmbedding{}, errCorruptRecord
	}
	idLen := int(binary.LittleEndian.Uint16(data))
	if len(data) < 2+idLen+8 || (len(data)-2-idLen-8)%4 != 0 {
		return database.StoredEmbedding{}, errCorruptRecord
	}
	n := 2 + idLen
	emb := database.StoredEmbedding{
		ID:        id,
		PersonID:  string(data[2:n]),
		CreatedAt: time.Unix(0, int64(binary.LittleEndian.Uint64(data[n:]))).UTC(), //nolint:gosec // round-trips
	}
	n += 8
	emb.Embedding = make([]float32, (len(data)-n)/4)
	for i := range emb.Embedding {
		emb.Embedding[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[n+4*i:]))
	}
	emb.Dim = len(emb.Embedding)
	return emb, nil
}
