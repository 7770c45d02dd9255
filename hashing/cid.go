package hashing

import (
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// ContentID returns a CIDv1 using the "raw" multicodec and a sha2-256
// multihash of data. Applied to canonical bytes it gives a stable,
// non-secret identifier for a record.
func ContentID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}

	return cid.NewCidV1(cid.Raw, sum), nil
}
