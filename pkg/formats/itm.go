package formats

import (
	"errors"
	"fmt"

	"github.com/Faultbox/bdae-viewer/pkg/bres"
	"github.com/Faultbox/bdae-viewer/pkg/encoding"
)

// ErrInvalidITM is returned for malformed entity placement files.
var ErrInvalidITM = errors.New("invalid ITM data")

const itmRecordSize = 48

// ITMEntity places one model in the world.
type ITMEntity struct {
	Model    string
	Position [3]float32
	Rotation [4]float32 // x, y, z, w with the stored W negated
	Scale    [3]float32
}

// ParseITM decodes entity placements from a resolved container.
func ParseITM(c *bres.Container, dec *encoding.Decoder) ([]ITMEntity, error) {
	cur := c.Cursor(c.Data())
	n := int(cur.U32())
	cur.Skip(4)
	records := cur.Ptr()
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidITM, err)
	}
	if n > maxCount {
		return nil, fmt.Errorf("%w: %d entities", ErrInvalidITM, n)
	}

	out := make([]ITMEntity, n)
	for i := range out {
		rc := records.At(int64(i * itmRecordSize))
		e := &out[i]
		e.Model = dec.String(rc.Str())
		e.Position = [3]float32{rc.F32(), rc.F32(), rc.F32()}
		e.Rotation = [4]float32{rc.F32(), rc.F32(), rc.F32(), -rc.F32()}
		e.Scale = [3]float32{rc.F32(), rc.F32(), rc.F32()}
		if err := rc.Err(); err != nil {
			return nil, fmt.Errorf("%w: entity %d: %v", ErrInvalidITM, i, err)
		}
	}
	return out, nil
}
