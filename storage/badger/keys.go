package badger

// Key prefixes for different data types
const (
	indexMetaPrefix   = "idxmeta"
	indexRecordPrefix = "idxrec"
)

// makeIndexMetaKey generates the key holding an index's spec.
func makeIndexMetaKey(index string) []byte {
	return []byte(indexMetaPrefix + ":" + index)
}

// makeRecordPrefix generates the prefix shared by all records of an index.
// Format: prefix:index:
// Index names cannot contain ':' so prefixes of different indexes never nest.
func makeRecordPrefix(index string) []byte {
	return []byte(indexRecordPrefix + ":" + index + ":")
}

// makeRecordKey generates a key for a record by id.
// Format: prefix:index:id
func makeRecordKey(index, id string) []byte {
	prefix := makeRecordPrefix(index)
	buf := make([]byte, len(prefix)+len(id))
	offset := copy(buf, prefix)
	copy(buf[offset:], id)
	return buf
}
