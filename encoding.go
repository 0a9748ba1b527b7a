package tzgrid

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

const (
	bucketPolygons    = "polygons"     // Key: zone name. Value: [PolyCount]{[RingCount]{[VertexCount](lng lat)*}}
	bucketShortcutLng = "shortcut_lng" // Key: int32 BE cell. Value: [ZoneCount]{[NameLen][Name][IdxCount]idx*}
	bucketShortcutLat = "shortcut_lat" // Key: int32 BE cell. Value: same as shortcut_lng
	bucketMeta        = "meta"
)

const formatVersion = 1

var (
	metaKeyVersion  = []byte("format_version")
	metaKeyDataset  = []byte("dataset_id")
	metaKeyZones    = []byte("zones")
	metaKeyPolygons = []byte("polygons")
	metaKeyVertices = []byte("vertices")
)

// BuildMeta describes a built artifact database.
type BuildMeta struct {
	FormatVersion uint64
	DatasetID     uuid.UUID // SHA1 UUID of the decompressed input bytes
	Zones         uint64
	Polygons      uint64
	Vertices      uint64
}

func putUvarint(buf *bytes.Buffer, v uint64) {
	var b [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(b[:], v)
	buf.Write(b[:n])
}

func putFloat64(buf *bytes.Buffer, v float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	buf.Write(b[:])
}

func readFloat64(r *bytes.Reader) (float64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b[:])), nil
}

// encodeZonePolygons encodes every polygon of one zone. Ring 0 is the
// exterior, the rest are holes.
func encodeZonePolygons(polys []*Polygon) []byte {
	var buf bytes.Buffer
	putUvarint(&buf, uint64(len(polys)))
	for _, p := range polys {
		putUvarint(&buf, uint64(1+len(p.Holes)))
		encodeRing(&buf, &p.Exterior)
		for i := range p.Holes {
			encodeRing(&buf, &p.Holes[i])
		}
	}
	return buf.Bytes()
}

func encodeRing(buf *bytes.Buffer, r *Ring) {
	putUvarint(buf, uint64(len(r.Lngs)))
	for i := range r.Lngs {
		putFloat64(buf, r.Lngs[i])
		putFloat64(buf, r.Lats[i])
	}
}

func decodeZonePolygons(data []byte) ([]*Polygon, error) {
	r := bytes.NewReader(data)
	polyCount, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	polys := make([]*Polygon, 0, polyCount)
	for i := uint64(0); i < polyCount; i++ {
		ringCount, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, err
		}
		if ringCount == 0 {
			return nil, errors.New("polygon with no rings")
		}
		exterior, err := decodeRing(r)
		if err != nil {
			return nil, err
		}
		var holes []Ring
		for j := uint64(1); j < ringCount; j++ {
			h, err := decodeRing(r)
			if err != nil {
				return nil, err
			}
			holes = append(holes, h)
		}
		polys = append(polys, NewPolygon(exterior, holes))
	}
	return polys, nil
}

func decodeRing(r *bytes.Reader) (Ring, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return Ring{}, err
	}
	ring := Ring{
		Lngs: make([]float64, n),
		Lats: make([]float64, n),
	}
	for i := uint64(0); i < n; i++ {
		if ring.Lngs[i], err = readFloat64(r); err != nil {
			return Ring{}, err
		}
		if ring.Lats[i], err = readFloat64(r); err != nil {
			return Ring{}, err
		}
	}
	return ring, nil
}

// cellKey encodes a grid cell as a sortable 4-byte key. The sign bit is
// flipped so negative cells order before positive ones in the bucket.
func cellKey(cell int) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(int32(cell))^0x80000000)
	return b[:]
}

func cellFromKey(key []byte) int {
	return int(int32(binary.BigEndian.Uint32(key) ^ 0x80000000))
}

// encodeCell encodes one shortcut cell entry, zones in ascending name order.
func encodeCell(zm map[string][]int) []byte {
	names := make([]string, 0, len(zm))
	for name := range zm {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	putUvarint(&buf, uint64(len(names)))
	for _, name := range names {
		putUvarint(&buf, uint64(len(name)))
		buf.WriteString(name)
		idxs := zm[name]
		putUvarint(&buf, uint64(len(idxs)))
		for _, idx := range idxs {
			putUvarint(&buf, uint64(idx))
		}
	}
	return buf.Bytes()
}

func decodeCell(data []byte) (map[string][]int, error) {
	r := bytes.NewReader(data)
	zoneCount, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	zm := make(map[string][]int, zoneCount)
	for i := uint64(0); i < zoneCount; i++ {
		nameLen, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, err
		}
		name := make([]byte, nameLen)
		if _, err := io.ReadFull(r, name); err != nil {
			return nil, err
		}
		idxCount, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, err
		}
		idxs := make([]int, idxCount)
		for j := uint64(0); j < idxCount; j++ {
			v, err := binary.ReadUvarint(r)
			if err != nil {
				return nil, err
			}
			idxs[j] = int(v)
		}
		zm[string(name)] = idxs
	}
	return zm, nil
}

func encodeUvarintValue(v uint64) []byte {
	var b [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(b[:], v)
	return b[:n]
}

func decodeUvarintValue(data []byte) uint64 {
	v, _ := binary.Uvarint(data)
	return v
}

// saveArtifacts writes the polygons and shortcut artifacts to a bolt
// database in one transaction. Keys are inserted in sorted order so the same
// input always produces the same file bytes on a fresh database.
func saveArtifacts(path string, zones map[string][]*Polygon, idx *ShortcutIndex, meta BuildMeta) error {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return errors.Wrap(err, "open artifact db")
	}
	defer db.Close()

	err = db.Update(func(tx *bolt.Tx) error {
		bPolys, err := tx.CreateBucketIfNotExists([]byte(bucketPolygons))
		if err != nil {
			return err
		}
		names := make([]string, 0, len(zones))
		for name := range zones {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := bPolys.Put([]byte(name), encodeZonePolygons(zones[name])); err != nil {
				return err
			}
		}

		if err := saveShortcutBucket(tx, bucketShortcutLng, idx.Lng); err != nil {
			return err
		}
		if err := saveShortcutBucket(tx, bucketShortcutLat, idx.Lat); err != nil {
			return err
		}

		bMeta, err := tx.CreateBucketIfNotExists([]byte(bucketMeta))
		if err != nil {
			return err
		}
		if err := bMeta.Put(metaKeyDataset, meta.DatasetID[:]); err != nil {
			return err
		}
		if err := bMeta.Put(metaKeyVersion, encodeUvarintValue(formatVersion)); err != nil {
			return err
		}
		if err := bMeta.Put(metaKeyZones, encodeUvarintValue(meta.Zones)); err != nil {
			return err
		}
		if err := bMeta.Put(metaKeyPolygons, encodeUvarintValue(meta.Polygons)); err != nil {
			return err
		}
		return bMeta.Put(metaKeyVertices, encodeUvarintValue(meta.Vertices))
	})
	return errors.Wrap(err, "write artifacts")
}

func saveShortcutBucket(tx *bolt.Tx, bucket string, table map[int]map[string][]int) error {
	b, err := tx.CreateBucketIfNotExists([]byte(bucket))
	if err != nil {
		return err
	}
	cells := make([]int, 0, len(table))
	for c := range table {
		cells = append(cells, c)
	}
	sort.Ints(cells)
	for _, c := range cells {
		if err := b.Put(cellKey(c), encodeCell(table[c])); err != nil {
			return err
		}
	}
	return nil
}

// Open loads the artifacts at path and assembles a ready engine. The
// database is read fully into memory and closed before returning; the
// engine owns all polygon memory afterwards.
func Open(path string, opts Options) (*Engine, error) {
	store, idx, _, err := loadArtifacts(path)
	if err != nil {
		return nil, err
	}
	return NewEngine(store, idx, opts), nil
}

// ReadMeta returns the build metadata of an artifact database.
func ReadMeta(path string) (BuildMeta, error) {
	db, err := bolt.Open(path, 0400, &bolt.Options{ReadOnly: true})
	if err != nil {
		return BuildMeta{}, errors.Wrap(err, "open artifact db")
	}
	defer db.Close()

	var meta BuildMeta
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketMeta))
		if b == nil {
			return errors.New("missing meta bucket")
		}
		return readMetaBucket(b, &meta)
	})
	return meta, err
}

func readMetaBucket(b *bolt.Bucket, meta *BuildMeta) error {
	meta.FormatVersion = decodeUvarintValue(b.Get(metaKeyVersion))
	if meta.FormatVersion != formatVersion {
		return errors.Errorf("unsupported artifact format version %d", meta.FormatVersion)
	}
	if id := b.Get(metaKeyDataset); len(id) == len(meta.DatasetID) {
		copy(meta.DatasetID[:], id)
	}
	meta.Zones = decodeUvarintValue(b.Get(metaKeyZones))
	meta.Polygons = decodeUvarintValue(b.Get(metaKeyPolygons))
	meta.Vertices = decodeUvarintValue(b.Get(metaKeyVertices))
	return nil
}

func loadArtifacts(path string) (*PolygonStore, *ShortcutIndex, BuildMeta, error) {
	var meta BuildMeta

	db, err := bolt.Open(path, 0400, &bolt.Options{ReadOnly: true})
	if err != nil {
		return nil, nil, meta, errors.Wrap(err, "open artifact db")
	}
	defer db.Close()

	zones := make(map[string][]*Polygon)
	idx := &ShortcutIndex{
		Lng: make(map[int]map[string][]int),
		Lat: make(map[int]map[string][]int),
	}

	err = db.View(func(tx *bolt.Tx) error {
		bMeta := tx.Bucket([]byte(bucketMeta))
		if bMeta == nil {
			return errors.New("missing meta bucket")
		}
		if err := readMetaBucket(bMeta, &meta); err != nil {
			return err
		}

		bPolys := tx.Bucket([]byte(bucketPolygons))
		if bPolys == nil {
			return errors.New("missing polygons bucket")
		}
		if err := bPolys.ForEach(func(k, v []byte) error {
			polys, err := decodeZonePolygons(v)
			if err != nil {
				return errors.Wrapf(err, "zone %s", k)
			}
			zones[string(k)] = polys
			return nil
		}); err != nil {
			return err
		}

		if err := loadShortcutBucket(tx, bucketShortcutLng, idx.Lng); err != nil {
			return err
		}
		return loadShortcutBucket(tx, bucketShortcutLat, idx.Lat)
	})
	if err != nil {
		return nil, nil, meta, errors.Wrap(err, "load artifacts")
	}

	return NewPolygonStore(zones), idx, meta, nil
}

func loadShortcutBucket(tx *bolt.Tx, bucket string, table map[int]map[string][]int) error {
	b := tx.Bucket([]byte(bucket))
	if b == nil {
		return errors.Errorf("missing %s bucket", bucket)
	}
	return b.ForEach(func(k, v []byte) error {
		zm, err := decodeCell(v)
		if err != nil {
			return errors.Wrapf(err, "cell %d", cellFromKey(k))
		}
		table[cellFromKey(k)] = zm
		return nil
	})
}
