package label

import "hash/crc32"

// crcSeed is LVM's own initial CRC value; stock CRC32 starts from
// 0xffffffff and finishes with a final inversion, LVM's variant starts
// from this seed and never inverts.
const crcSeed uint32 = 0xf597a6cf

// crc32lvm computes LVM's seeded, non-inverted CRC32 over data, reusing
// the standard library's IEEE table (the same 0xEDB88320 polynomial the
// corpus's other CRC32 consumers rely on) via a hand-rolled loop, since
// no published module exposes a seedable, non-finalizing variant of this
// exact algorithm.
func crc32lvm(data []byte) uint32 {
	tab := crc32.IEEETable
	crc := crcSeed
	for _, b := range data {
		crc = tab[byte(crc)^b] ^ (crc >> 8)
	}
	return crc
}

// crcExcluding computes crc32lvm over buf with the 4-byte field at
// [crcOffset, crcOffset+4) removed, the way both the label block and the
// mda_header protect themselves without covering their own checksum.
func crcExcluding(buf []byte, crcOffset int) uint32 {
	combined := make([]byte, 0, len(buf)-4)
	combined = append(combined, buf[:crcOffset]...)
	combined = append(combined, buf[crcOffset+4:]...)
	return crc32lvm(combined)
}
